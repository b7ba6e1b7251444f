package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/service"
	"github.com/gnan700/splitledger/internal/storage/sqlstore"
)

type testServer struct {
	t   *testing.T
	url string
}

// setupTestServer starts the API on a temporary SQLite database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-api-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlstore.OpenSQLite(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create store: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(service.New(store, nil)).Register(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		store.Close()
		os.RemoveAll(tempDir)
	})
	return &testServer{t: t, url: server.URL}
}

// do sends a JSON request and decodes the response into out (when non-nil).
// It returns the status code and the raw body.
func (s *testServer) do(method, path string, body any, out any) (int, string) {
	s.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.url+path, reader)
	if err != nil {
		s.t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatalf("failed to read body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			s.t.Fatalf("failed to decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, string(raw)
}

type user struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type group struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Members       []user          `json:"members"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
}

type split struct {
	UserID     string           `json:"user_id"`
	Amount     decimal.Decimal  `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage"`
}

type expense struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	SplitType  string          `json:"split_type"`
	PaidBy     string          `json:"paid_by"`
	PaidByUser *user           `json:"paid_by_user"`
	Splits     []split         `json:"splits"`
}

type counterparty struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Amount   decimal.Decimal `json:"amount"`
}

type balance struct {
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	GroupID    string          `json:"group_id"`
	GroupName  string          `json:"group_name"`
	NetBalance decimal.Decimal `json:"net_balance"`
	OwedBy     []counterparty  `json:"owed_by"`
	OwesTo     []counterparty  `json:"owes_to"`
}

type apiError struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Detail   string `json:"detail"`
	Blockers []struct {
		UserID string          `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"blockers"`
}

func decodeError(t *testing.T, raw string) apiError {
	t.Helper()
	var e apiError
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("error body is not JSON: %s", raw)
	}
	if e.Status != "error" || e.Message == "" || e.Detail != e.Message {
		t.Errorf("unexpected error body: %s", raw)
	}
	return e
}

func (s *testServer) createUser(name, email string) user {
	s.t.Helper()
	var u user
	if code, raw := s.do("POST", "/users/", map[string]string{"name": name, "email": email}, &u); code != http.StatusOK {
		s.t.Fatalf("create user: status %d: %s", code, raw)
	}
	return u
}

func (s *testServer) createGroup(name string, members ...user) group {
	s.t.Helper()
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	var g group
	if code, raw := s.do("POST", "/groups/", map[string]any{"name": name, "user_ids": ids}, &g); code != http.StatusOK {
		s.t.Fatalf("create group: status %d: %s", code, raw)
	}
	return g
}

func (s *testServer) balances(groupID string) map[string]balance {
	s.t.Helper()
	var bs []balance
	if code, raw := s.do("GET", "/groups/"+groupID+"/balances", nil, &bs); code != http.StatusOK {
		s.t.Fatalf("group balances: status %d: %s", code, raw)
	}
	out := make(map[string]balance, len(bs))
	for _, b := range bs {
		out[b.UserID] = b
	}
	return out
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRootAndHealth(t *testing.T) {
	s := setupTestServer(t)

	if code, raw := s.do("GET", "/", nil, nil); code != http.StatusOK || !strings.Contains(raw, "message") {
		t.Errorf("GET / = %d %s", code, raw)
	}
	if code, raw := s.do("GET", "/healthz", nil, nil); code != http.StatusOK || !strings.Contains(raw, `"ok"`) {
		t.Errorf("GET /healthz = %d %s", code, raw)
	}
}

func TestUserEndpoints(t *testing.T) {
	s := setupTestServer(t)
	alice := s.createUser("Alice", "alice@example.com")

	t.Run("duplicate email is 409", func(t *testing.T) {
		code, raw := s.do("POST", "/users", map[string]string{"name": "A2", "email": "ALICE@example.com"}, nil)
		if code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", code)
		}
		if e := decodeError(t, raw); e.Code != codeEmailTaken {
			t.Errorf("code = %q, want %q", e.Code, codeEmailTaken)
		}
	})

	t.Run("invalid email is 400", func(t *testing.T) {
		code, _ := s.do("POST", "/users/", map[string]string{"name": "B", "email": "nope"}, nil)
		if code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("get and list", func(t *testing.T) {
		var got user
		if code, _ := s.do("GET", "/users/"+alice.ID, nil, &got); code != http.StatusOK || got.Email != "alice@example.com" {
			t.Errorf("GET user = %d %+v", code, got)
		}
		var list []user
		if code, _ := s.do("GET", "/users/?skip=0&limit=10", nil, &list); code != http.StatusOK || len(list) != 1 {
			t.Errorf("GET users = %d, %d users", code, len(list))
		}
		if code, _ := s.do("GET", "/users?limit=abc", nil, nil); code != http.StatusBadRequest {
			t.Errorf("bad limit status = %d, want 400", code)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		var got user
		code, raw := s.do("PUT", "/users/"+alice.ID, map[string]string{"name": "Alicia"}, &got)
		if code != http.StatusOK {
			t.Fatalf("PUT user = %d %s", code, raw)
		}
		if got.Name != "Alicia" || got.Email != "alice@example.com" {
			t.Errorf("updated user = %+v", got)
		}
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		code, raw := s.do("GET", "/users/missing", nil, nil)
		if code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", code)
		}
		if e := decodeError(t, raw); e.Code != codeNotFound {
			t.Errorf("code = %q", e.Code)
		}
		if code, _ := s.do("DELETE", "/users/missing", nil, nil); code != http.StatusNotFound {
			t.Errorf("DELETE status = %d, want 404", code)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		code, raw := s.do("POST", "/users/", `{"name":`, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", code)
		}
		if e := decodeError(t, raw); e.Code != codeInvalidRequest {
			t.Errorf("code = %q", e.Code)
		}
	})
}

func TestDinnerScenarioOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	alice := s.createUser("Alice", "alice@example.com")
	bob := s.createUser("Bob", "bob@example.com")
	carol := s.createUser("Carol", "carol@example.com")
	g := s.createGroup("Trip", alice, bob, carol)

	if len(g.Members) != 3 || g.Members[0].Name != "Alice" {
		t.Fatalf("group members = %+v", g.Members)
	}

	var e expense
	code, raw := s.do("POST", "/groups/"+g.ID+"/expenses", map[string]any{
		"description": "Dinner",
		"amount":      90,
		"paid_by":     alice.ID,
		"split_type":  "equal",
		"splits": []map[string]any{
			{"user_id": alice.ID}, {"user_id": bob.ID}, {"user_id": carol.ID},
		},
	}, &e)
	if code != http.StatusOK {
		t.Fatalf("create expense = %d %s", code, raw)
	}
	if !strings.Contains(raw, `"amount":90.00`) {
		t.Errorf("amount should serialise with two decimals: %s", raw)
	}
	if e.PaidByUser == nil || e.PaidByUser.Name != "Alice" || len(e.Splits) != 3 {
		t.Errorf("expense = %+v", e)
	}

	bs := s.balances(g.ID)
	for id, want := range map[string]string{alice.ID: "60", bob.ID: "-30", carol.ID: "-30"} {
		if !bs[id].NetBalance.Equal(d(want)) {
			t.Errorf("net[%s] = %s, want %s", bs[id].UserName, bs[id].NetBalance, want)
		}
	}
	if a := bs[alice.ID]; len(a.OwedBy) != 2 || a.OwedBy[0].UserID > a.OwedBy[1].UserID || a.GroupName != "Trip" {
		t.Errorf("alice balance = %+v", a)
	}

	t.Run("deleting an unsettled group is a 400 conflict", func(t *testing.T) {
		code, raw := s.do("DELETE", "/groups/"+g.ID, nil, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", code)
		}
		e := decodeError(t, raw)
		if e.Code != codeOutstandingBalance || len(e.Blockers) != 3 {
			t.Errorf("error = %+v", e)
		}
	})

	t.Run("deleting a debtor is a 400 conflict", func(t *testing.T) {
		code, raw := s.do("DELETE", "/users/"+bob.ID, nil, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", code)
		}
		if e := decodeError(t, raw); e.Code != codeOutstandingBalance {
			t.Errorf("code = %q", e.Code)
		}
	})

	var st struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	code, raw = s.do("POST", "/settlements/", map[string]any{
		"group_id": g.ID, "from_user_id": bob.ID, "to_user_id": alice.ID, "amount": "30.00",
	}, &st)
	if code != http.StatusOK {
		t.Fatalf("create settlement = %d %s", code, raw)
	}
	if st.Description != "Settlement" {
		t.Errorf("description = %q, want Settlement", st.Description)
	}

	bs = s.balances(g.ID)
	for id, want := range map[string]string{alice.ID: "30", bob.ID: "0", carol.ID: "-30"} {
		if !bs[id].NetBalance.Equal(d(want)) {
			t.Errorf("after settlement net[%s] = %s, want %s", bs[id].UserName, bs[id].NetBalance, want)
		}
	}

	var rows []balance
	if code, _ := s.do("GET", "/users/"+carol.ID+"/balances", nil, &rows); code != http.StatusOK || len(rows) != 1 {
		t.Fatalf("user balances = %d, %d rows", code, len(rows))
	}
	if len(rows[0].OwesTo) != 1 || rows[0].OwesTo[0].UserName != "Alice" || !rows[0].OwesTo[0].Amount.Equal(d("30")) {
		t.Errorf("carol owes_to = %+v", rows[0].OwesTo)
	}

	var settlements []map[string]any
	if code, _ := s.do("GET", "/groups/"+g.ID+"/settlements", nil, &settlements); code != http.StatusOK || len(settlements) != 1 {
		t.Errorf("settlements = %d, %d", code, len(settlements))
	}

	t.Run("settled members can leave and be deleted", func(t *testing.T) {
		if code, raw := s.do("DELETE", "/groups/"+g.ID+"/members/"+bob.ID, nil, nil); code != http.StatusOK {
			t.Fatalf("remove member = %d %s", code, raw)
		}
		if code, raw := s.do("DELETE", "/users/"+bob.ID, nil, nil); code != http.StatusOK {
			t.Fatalf("delete user = %d %s", code, raw)
		}
		if code, _ := s.do("DELETE", "/groups/"+g.ID+"/members/"+carol.ID, nil, nil); code != http.StatusBadRequest {
			t.Errorf("removing carol status = %d, want 400", code)
		}
	})

	t.Run("settled group can be deleted", func(t *testing.T) {
		s.do("POST", "/settlements", map[string]any{
			"group_id": g.ID, "from_user_id": carol.ID, "to_user_id": alice.ID, "amount": 30,
		}, nil)
		if code, raw := s.do("DELETE", "/groups/"+g.ID, nil, nil); code != http.StatusOK {
			t.Fatalf("delete group = %d %s", code, raw)
		}
		if code, _ := s.do("GET", "/groups/"+g.ID, nil, nil); code != http.StatusNotFound {
			t.Errorf("GET deleted group = %d, want 404", code)
		}
	})
}

func TestCreateExpense_Percentage(t *testing.T) {
	s := setupTestServer(t)
	a := s.createUser("A", "a@example.com")
	b := s.createUser("B", "b@example.com")
	c := s.createUser("C", "c@example.com")
	g := s.createGroup("Split", a, b, c)

	var e expense
	code, raw := s.do("POST", "/groups/"+g.ID+"/expenses", map[string]any{
		"description": "Groceries",
		"amount":      100,
		"paid_by":     a.ID,
		"split_type":  "percentage",
		"splits": []map[string]any{
			{"user_id": a.ID, "percentage": 33.33},
			{"user_id": b.ID, "percentage": 33.33},
			{"user_id": c.ID, "percentage": 33.34},
		},
	}, &e)
	if code != http.StatusOK {
		t.Fatalf("create expense = %d %s", code, raw)
	}

	sum := decimal.Zero
	for _, sp := range e.Splits {
		sum = sum.Add(sp.Amount)
		if sp.Percentage == nil {
			t.Errorf("split %s missing percentage", sp.UserID)
		}
	}
	if !sum.Equal(d("100")) {
		t.Errorf("splits sum to %s, want 100", sum)
	}

	var got group
	s.do("GET", "/groups/"+g.ID, nil, &got)
	if !got.TotalExpenses.Equal(d("100")) {
		t.Errorf("total_expenses = %s, want 100", got.TotalExpenses)
	}

	var list []expense
	if code, _ := s.do("GET", "/groups/"+g.ID+"/expenses", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Errorf("list expenses = %d, %d", code, len(list))
	}
}

func TestCreateExpense_Rejections(t *testing.T) {
	s := setupTestServer(t)
	a := s.createUser("A", "a@example.com")
	b := s.createUser("B", "b@example.com")
	outsider := s.createUser("X", "x@example.com")
	g := s.createGroup("Pair", a, b)

	tests := []struct {
		name     string
		groupID  string
		body     any
		wantCode int
	}{
		{
			name:     "unknown split type",
			body:     map[string]any{"description": "x", "amount": 10, "paid_by": a.ID, "split_type": "shares"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "percentage missing",
			body: map[string]any{"description": "x", "amount": 10, "paid_by": a.ID, "split_type": "percentage",
				"splits": []map[string]any{{"user_id": a.ID}}},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "percentages outside tolerance",
			body: map[string]any{"description": "x", "amount": 10, "paid_by": a.ID, "split_type": "percentage",
				"splits": []map[string]any{{"user_id": a.ID, "percentage": 50}, {"user_id": b.ID, "percentage": 49.98}}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "payer outside group",
			body:     map[string]any{"description": "x", "amount": 10, "paid_by": outsider.ID, "split_type": "equal"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "zero amount",
			body:     map[string]any{"description": "x", "amount": 0, "paid_by": a.ID, "split_type": "equal"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "amount is not a number",
			body:     `{"description":"x","amount":true,"paid_by":"` + a.ID + `","split_type":"equal"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown group",
			groupID:  "missing",
			body:     map[string]any{"description": "x", "amount": 10, "paid_by": a.ID, "split_type": "equal"},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groupID := tt.groupID
			if groupID == "" {
				groupID = g.ID
			}
			code, raw := s.do("POST", "/groups/"+groupID+"/expenses", tt.body, nil)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", code, tt.wantCode, raw)
			}
			decodeError(t, raw)
		})
	}

	var list []expense
	s.do("GET", "/groups/"+g.ID+"/expenses", nil, &list)
	if len(list) != 0 {
		t.Errorf("rejected requests must not write, got %d expenses", len(list))
	}
}

func TestGroupMembershipEndpoints(t *testing.T) {
	s := setupTestServer(t)
	a := s.createUser("A", "a@example.com")
	b := s.createUser("B", "b@example.com")
	c := s.createUser("C", "c@example.com")
	g := s.createGroup("Flat", a)

	var got group
	code, raw := s.do("POST", "/groups/"+g.ID+"/members", map[string]any{"user_ids": []string{a.ID, b.ID}}, &got)
	if code != http.StatusOK || len(got.Members) != 2 {
		t.Fatalf("add members = %d %s", code, raw)
	}

	code, raw = s.do("PUT", "/groups/"+g.ID, map[string]any{"name": "New Flat", "user_ids": []string{b.ID, c.ID}}, &got)
	if code != http.StatusOK {
		t.Fatalf("update group = %d %s", code, raw)
	}
	if got.Name != "New Flat" || len(got.Members) != 2 || got.Members[0].ID != b.ID {
		t.Errorf("updated group = %+v", got)
	}

	if code, _ := s.do("DELETE", "/groups/"+g.ID+"/members/"+a.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("removing non-member status = %d, want 404", code)
	}
	if code, _ := s.do("POST", "/groups/"+g.ID+"/members", map[string]any{"user_ids": []string{"ghost"}}, nil); code != http.StatusNotFound {
		t.Errorf("adding unknown user status = %d, want 404", code)
	}

	var groups []group
	if code, _ := s.do("GET", "/groups", nil, &groups); code != http.StatusOK || len(groups) != 1 {
		t.Errorf("list groups = %d, %d", code, len(groups))
	}
	if code, _ := s.do("GET", "/groups/missing/balances", nil, nil); code != http.StatusNotFound {
		t.Errorf("balances of unknown group = %d, want 404", code)
	}
}
