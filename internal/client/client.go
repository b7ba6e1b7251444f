// Package client is a small HTTP client for the splitledger REST API, used by
// the splitctl command.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type HTTP struct {
	Base string
	HTTP *http.Client
}

func New(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Group struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Members       []User          `json:"members"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
}

type Split struct {
	UserID     string           `json:"user_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

type Expense struct {
	ID          string          `json:"id,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paid_by"`
	SplitType   string          `json:"split_type"`
	Splits      []Split         `json:"splits"`
}

type Settlement struct {
	ID          string          `json:"id,omitempty"`
	GroupID     string          `json:"group_id"`
	FromUserID  string          `json:"from_user_id"`
	ToUserID    string          `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type Counterparty struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Amount   decimal.Decimal `json:"amount"`
}

type Balance struct {
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	GroupID    string          `json:"group_id"`
	GroupName  string          `json:"group_name"`
	NetBalance decimal.Decimal `json:"net_balance"`
	OwedBy     []Counterparty  `json:"owed_by"`
	OwesTo     []Counterparty  `json:"owes_to"`
}

// Health checks that the server answers on /healthz.
func (c *HTTP) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", out.Status)
	}
	return nil
}

func (c *HTTP) CreateUser(ctx context.Context, name, email string) (*User, error) {
	var out User
	in := map[string]string{"name": name, "email": email}
	if err := c.do(ctx, http.MethodPost, "/users/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) CreateGroup(ctx context.Context, name, description string, userIDs []string) (*Group, error) {
	var out Group
	in := map[string]any{"name": name, "description": description, "user_ids": userIDs}
	if err := c.do(ctx, http.MethodPost, "/groups/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) CreateExpense(ctx context.Context, groupID string, e Expense) (*Expense, error) {
	if e.Splits == nil {
		e.Splits = []Split{}
	}
	var out Expense
	if err := c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/expenses", e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) RecordSettlement(ctx context.Context, s Settlement) (*Settlement, error) {
	var out Settlement
	if err := c.do(ctx, http.MethodPost, "/settlements/", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTP) GroupBalances(ctx context.Context, groupID string) ([]Balance, error) {
	var out []Balance
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/balances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) UserBalances(ctx context.Context, userID string) ([]Balance, error) {
	var out []Balance
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/balances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
