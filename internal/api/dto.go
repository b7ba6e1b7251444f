package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/service"
)

// money marshals as a JSON number with exactly two decimals.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

// number marshals a decimal as a JSON number without padding.
type number decimal.Decimal

func (n number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

func timestamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// Requests

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type createGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	UserIDs     []string `json:"user_ids"`
}

type updateGroupRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	UserIDs     *[]string `json:"user_ids"`
}

type addMembersRequest struct {
	UserIDs []string `json:"user_ids"`
}

type splitRequest struct {
	UserID string `json:"user_id"`

	// Amount is accepted for compatibility and ignored: shares are always
	// allocated by the server.
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

type createExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paid_by"`
	SplitType   string          `json:"split_type"`
	Splits      []splitRequest  `json:"splits"`
}

// policy turns the wire form (a split_type flag plus a splits list) into a
// closed split policy.
func (r createExpenseRequest) policy() (models.SplitPolicy, error) {
	switch models.SplitType(r.SplitType) {
	case models.SplitEqual:
		ids := make([]string, len(r.Splits))
		for i, s := range r.Splits {
			ids[i] = s.UserID
		}
		return models.EqualPolicy{Participants: ids}, nil

	case models.SplitPercentage:
		if len(r.Splits) == 0 {
			return nil, &service.ValidationError{Message: "percentage split requires splits"}
		}
		shares := make([]models.PercentShare, len(r.Splits))
		for i, s := range r.Splits {
			if s.Percentage == nil {
				return nil, &service.ValidationError{Message: "percentage is required for user " + s.UserID}
			}
			shares[i] = models.PercentShare{UserID: s.UserID, Percent: *s.Percentage}
		}
		return models.PercentagePolicy{Shares: shares}, nil

	case "":
		return nil, &service.ValidationError{Message: "split_type is required"}
	default:
		return nil, &service.ValidationError{Message: "split_type must be \"equal\" or \"percentage\", got \"" + r.SplitType + "\""}
	}
}

type createSettlementRequest struct {
	GroupID     string          `json:"group_id"`
	FromUserID  string          `json:"from_user_id"`
	ToUserID    string          `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Responses

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func toUser(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: timestamp(u.CreatedAt)}
}

func toUsers(users []*models.User) []userResponse {
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUser(u)
	}
	return out
}

type groupResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	CreatedAt     string         `json:"created_at"`
	Members       []userResponse `json:"members"`
	TotalExpenses money          `json:"total_expenses"`
}

func toGroup(g *service.GroupDetail) groupResponse {
	return groupResponse{
		ID:            g.ID,
		Name:          g.Name,
		Description:   g.Description,
		CreatedAt:     timestamp(g.CreatedAt),
		Members:       toUsers(g.Users),
		TotalExpenses: money(g.TotalExpenses),
	}
}

type splitResponse struct {
	UserID     string        `json:"user_id"`
	Amount     money         `json:"amount"`
	Percentage *number       `json:"percentage"`
	User       *userResponse `json:"user,omitempty"`
}

type expenseResponse struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"group_id"`
	Description string          `json:"description"`
	Amount      money           `json:"amount"`
	SplitType   string          `json:"split_type"`
	PaidBy      string          `json:"paid_by"`
	PaidByUser  *userResponse   `json:"paid_by_user,omitempty"`
	Splits      []splitResponse `json:"splits"`
	CreatedAt   string          `json:"created_at"`
}

func lookupUser(users map[string]*models.User, id string) *userResponse {
	u, ok := users[id]
	if !ok {
		return nil
	}
	r := toUser(u)
	return &r
}

func toExpenses(list *service.ExpenseList) []expenseResponse {
	out := make([]expenseResponse, len(list.Expenses))
	for i, e := range list.Expenses {
		splits := make([]splitResponse, len(e.Splits))
		for j, s := range e.Splits {
			splits[j] = splitResponse{
				UserID: s.UserID,
				Amount: money(s.Amount),
				User:   lookupUser(list.Users, s.UserID),
			}
			if s.Percentage != nil {
				p := number(*s.Percentage)
				splits[j].Percentage = &p
			}
		}
		out[i] = expenseResponse{
			ID:          e.ID,
			GroupID:     e.GroupID,
			Description: e.Description,
			Amount:      money(e.Amount),
			SplitType:   string(e.SplitType),
			PaidBy:      e.PaidBy,
			PaidByUser:  lookupUser(list.Users, e.PaidBy),
			Splits:      splits,
			CreatedAt:   timestamp(e.CreatedAt),
		}
	}
	return out
}

type settlementResponse struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Amount      money  `json:"amount"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

func toSettlement(s *models.Settlement) settlementResponse {
	return settlementResponse{
		ID:          s.ID,
		GroupID:     s.GroupID,
		FromUserID:  s.FromUserID,
		ToUserID:    s.ToUserID,
		Amount:      money(s.Amount),
		Description: s.Description,
		CreatedAt:   timestamp(s.CreatedAt),
	}
}

type counterpartyResponse struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Amount   money  `json:"amount"`
}

type balanceResponse struct {
	UserID     string                 `json:"user_id"`
	UserName   string                 `json:"user_name"`
	GroupID    string                 `json:"group_id"`
	GroupName  string                 `json:"group_name"`
	NetBalance money                  `json:"net_balance"`
	OwedBy     []counterpartyResponse `json:"owed_by"`
	OwesTo     []counterpartyResponse `json:"owes_to"`
}

func toCounterparties(cs []models.Counterparty) []counterpartyResponse {
	out := make([]counterpartyResponse, len(cs))
	for i, c := range cs {
		out[i] = counterpartyResponse{UserID: c.UserID, UserName: c.UserName, Amount: money(c.Amount)}
	}
	return out
}

func toBalances(bs []models.Balance) []balanceResponse {
	out := make([]balanceResponse, len(bs))
	for i, b := range bs {
		out[i] = balanceResponse{
			UserID:     b.UserID,
			UserName:   b.UserName,
			GroupID:    b.GroupID,
			GroupName:  b.GroupName,
			NetBalance: money(b.NetBalance),
			OwedBy:     toCounterparties(b.OwedBy),
			OwesTo:     toCounterparties(b.OwesTo),
		}
	}
	return out
}
