package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/cache"
	"github.com/gnan700/splitledger/internal/calculator"
	"github.com/gnan700/splitledger/internal/models"
	"github.com/gnan700/splitledger/internal/storage"
	"github.com/gnan700/splitledger/internal/storage/sqlstore"
)

// setupServices creates services backed by a temporary SQLite database.
func setupServices(t *testing.T) (*Services, *cache.Memory) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-service-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlstore.OpenSQLite(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tempDir)
	})

	c := cache.NewMemory()
	return New(store, c), c
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc               *Services
	cache             *cache.Memory
	alice, bob, carol *models.User
	group             *GroupDetail
}

// newFixture creates Alice, Bob and Carol and a group holding all three.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	svc, c := setupServices(t)

	f := &fixture{svc: svc, cache: c}
	var err error
	for _, u := range []struct {
		dst         **models.User
		name, email string
	}{
		{&f.alice, "Alice", "alice@example.com"},
		{&f.bob, "Bob", "bob@example.com"},
		{&f.carol, "Carol", "carol@example.com"},
	} {
		if *u.dst, err = svc.Users.Create(ctx, u.name, u.email); err != nil {
			t.Fatalf("CreateUser(%s) failed: %v", u.name, err)
		}
	}

	f.group, err = svc.Groups.Create(ctx, "Trip", "", []string{f.alice.ID, f.bob.ID, f.carol.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return f
}

func (f *fixture) equalExpense(t *testing.T, payer *models.User, amount string) {
	t.Helper()
	_, err := f.svc.Expenses.Create(context.Background(), f.group.ID, NewExpense{
		Description: "Dinner",
		Amount:      d(amount),
		PaidBy:      payer.ID,
		Policy:      models.EqualPolicy{},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
}

func (f *fixture) settle(t *testing.T, from, to *models.User, amount string) {
	t.Helper()
	_, err := f.svc.Settlements.Record(context.Background(), NewSettlement{
		GroupID:    f.group.ID,
		FromUserID: from.ID,
		ToUserID:   to.ID,
		Amount:     d(amount),
	})
	if err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}
}

func (f *fixture) nets(t *testing.T) map[string]decimal.Decimal {
	t.Helper()
	balances, err := f.svc.Balances.Group(context.Background(), f.group.ID)
	if err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}
	nets := make(map[string]decimal.Decimal, len(balances))
	sum := decimal.Zero
	for _, b := range balances {
		nets[b.UserID] = b.NetBalance
		sum = sum.Add(b.NetBalance)
	}
	if !sum.IsZero() {
		t.Errorf("net balances sum to %s, want 0", sum)
	}
	return nets
}

func assertNets(t *testing.T, got map[string]decimal.Decimal, want map[string]string) {
	t.Helper()
	for id, w := range want {
		if !got[id].Equal(d(w)) {
			t.Errorf("net[%s] = %s, want %s", id, got[id], w)
		}
	}
}

func TestDinnerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.equalExpense(t, f.alice, "90")
	assertNets(t, f.nets(t), map[string]string{f.alice.ID: "60", f.bob.ID: "-30", f.carol.ID: "-30"})

	f.settle(t, f.bob, f.alice, "30")
	assertNets(t, f.nets(t), map[string]string{f.alice.ID: "30", f.bob.ID: "0", f.carol.ID: "-30"})

	balances, err := f.svc.Balances.Group(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}
	for _, b := range balances {
		if b.GroupName != "Trip" {
			t.Errorf("GroupName = %q, want Trip", b.GroupName)
		}
		switch b.UserID {
		case f.alice.ID:
			if len(b.OwedBy) != 1 || b.OwedBy[0].UserName != "Carol" || !b.OwedBy[0].Amount.Equal(d("30")) {
				t.Errorf("alice OwedBy = %+v, want Carol 30", b.OwedBy)
			}
		case f.bob.ID:
			if len(b.OwedBy) != 0 || len(b.OwesTo) != 0 {
				t.Errorf("bob should be square, got OwedBy=%+v OwesTo=%+v", b.OwedBy, b.OwesTo)
			}
		}
	}

	rows, err := f.svc.Balances.User(ctx, f.carol.ID)
	if err != nil {
		t.Fatalf("UserBalances failed: %v", err)
	}
	if len(rows) != 1 || rows[0].GroupID != f.group.ID || !rows[0].NetBalance.Equal(d("-30")) {
		t.Errorf("UserBalances(carol) = %+v, want one row at -30", rows)
	}
}

func TestUserBalances_OneRowPerGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.svc.Groups.Create(ctx, "Flat", "", []string{f.alice.ID, f.bob.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	// Alice owes in one group and is owed in the other.
	f.equalExpense(t, f.bob, "30")
	if _, err := f.svc.Expenses.Create(ctx, other.ID, NewExpense{
		Description: "Rent", Amount: d("100"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{},
	}); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	rows, err := f.svc.Balances.User(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("UserBalances failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	byGroup := map[string]decimal.Decimal{}
	for _, r := range rows {
		byGroup[r.GroupID] = r.NetBalance
	}
	if !byGroup[f.group.ID].Equal(d("-10")) || !byGroup[other.ID].Equal(d("50")) {
		t.Errorf("UserBalances(alice) = %v, want -10 and +50", byGroup)
	}

	if _, err := f.svc.Balances.User(ctx, "missing"); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestCreateExpense_PercentageReconciles(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.Expenses.Create(context.Background(), f.group.ID, NewExpense{
		Description: "Groceries",
		Amount:      d("100"),
		PaidBy:      f.alice.ID,
		Policy: models.PercentagePolicy{Shares: []models.PercentShare{
			{UserID: f.alice.ID, Percent: d("33.33")},
			{UserID: f.bob.ID, Percent: d("33.33")},
			{UserID: f.carol.ID, Percent: d("33.34")},
		}},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	e := list.Expenses[0]
	if e.SplitType != models.SplitPercentage {
		t.Errorf("SplitType = %s, want percentage", e.SplitType)
	}
	sum := decimal.Zero
	for _, s := range e.Splits {
		sum = sum.Add(s.Amount)
		if s.Percentage == nil {
			t.Errorf("split for %s has no percentage", s.UserID)
		}
	}
	if !sum.Equal(d("100")) {
		t.Errorf("splits sum to %s, want 100", sum)
	}
	if list.Users[f.alice.ID] == nil {
		t.Error("expected payer in Users map")
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outsider, err := f.svc.Users.Create(ctx, "Dave", "dave@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	tests := []struct {
		name     string
		groupID  string
		req      NewExpense
		notFound bool
	}{
		{
			name: "payer not a member",
			req:  NewExpense{Description: "x", Amount: d("10"), PaidBy: outsider.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "participant not a member",
			req: NewExpense{Description: "x", Amount: d("10"), PaidBy: f.alice.ID,
				Policy: models.EqualPolicy{Participants: []string{f.alice.ID, outsider.ID}}},
		},
		{
			name: "zero amount",
			req:  NewExpense{Description: "x", Amount: d("0"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "negative amount",
			req:  NewExpense{Description: "x", Amount: d("-5"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "sub-cent amount",
			req:  NewExpense{Description: "x", Amount: d("10.005"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "amount beyond the maximum",
			req:  NewExpense{Description: "x", Amount: d("100000000000000000"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "missing description",
			req:  NewExpense{Description: "  ", Amount: d("10"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
		},
		{
			name: "missing policy",
			req:  NewExpense{Description: "x", Amount: d("10"), PaidBy: f.alice.ID},
		},
		{
			name: "percentages sum to 99",
			req: NewExpense{Description: "x", Amount: d("10"), PaidBy: f.alice.ID,
				Policy: models.PercentagePolicy{Shares: []models.PercentShare{
					{UserID: f.alice.ID, Percent: d("50")},
					{UserID: f.bob.ID, Percent: d("49")},
				}}},
		},
		{
			name:     "unknown group",
			groupID:  "missing",
			req:      NewExpense{Description: "x", Amount: d("10"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{}},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groupID := tt.groupID
			if groupID == "" {
				groupID = f.group.ID
			}
			_, err := f.svc.Expenses.Create(ctx, groupID, tt.req)
			if tt.notFound {
				if !isNotFound(err) {
					t.Errorf("expected NotFoundError, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	list, err := f.svc.Expenses.List(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Expenses) != 0 {
		t.Errorf("rejected requests must not write, got %d expenses", len(list.Expenses))
	}
}

func TestRecordSettlement_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  NewSettlement
	}{
		{"same user", NewSettlement{GroupID: f.group.ID, FromUserID: f.bob.ID, ToUserID: f.bob.ID, Amount: d("5")}},
		{"non-member", NewSettlement{GroupID: f.group.ID, FromUserID: f.bob.ID, ToUserID: "stranger", Amount: d("5")}},
		{"zero amount", NewSettlement{GroupID: f.group.ID, FromUserID: f.bob.ID, ToUserID: f.alice.ID, Amount: d("0")}},
		{"missing group id", NewSettlement{FromUserID: f.bob.ID, ToUserID: f.alice.ID, Amount: d("5")}},
		{"amount beyond the maximum", NewSettlement{GroupID: f.group.ID, FromUserID: f.bob.ID, ToUserID: f.alice.ID, Amount: d("100000000000.01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			if _, err := f.svc.Settlements.Record(ctx, tt.req); !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	s, err := f.svc.Settlements.Record(ctx, NewSettlement{
		GroupID: f.group.ID, FromUserID: f.bob.ID, ToUserID: f.alice.ID, Amount: d("5"),
	})
	if err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}
	if s.Description != models.DefaultSettlementDescription {
		t.Errorf("Description = %q, want default", s.Description)
	}

	// Direction is recorded exactly as submitted, even against the debt.
	assertNets(t, f.nets(t), map[string]string{f.bob.ID: "5", f.alice.ID: "-5"})
}

func TestDeleteGroup_Guard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.equalExpense(t, f.alice, "90")

	err := f.svc.Groups.Delete(ctx, f.group.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(ce.Blockers) != 3 {
		t.Errorf("expected 3 blockers, got %+v", ce.Blockers)
	}

	f.settle(t, f.bob, f.alice, "30")
	f.settle(t, f.carol, f.alice, "30")

	if err := f.svc.Groups.Delete(ctx, f.group.ID); err != nil {
		t.Fatalf("DeleteGroup failed on a settled group: %v", err)
	}
	if _, err := f.svc.Groups.Get(ctx, f.group.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
	if err := f.svc.Groups.Delete(ctx, f.group.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestDeleteUser_Guard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.equalExpense(t, f.alice, "90")

	err := f.svc.Users.Delete(ctx, f.bob.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(ce.Blockers) != 1 || ce.Blockers[0].GroupID != f.group.ID || ce.Blockers[0].UserName != "Bob" {
		t.Errorf("Blockers = %+v, want Bob in Trip", ce.Blockers)
	}

	f.settle(t, f.bob, f.alice, "30")
	if err := f.svc.Users.Delete(ctx, f.bob.ID); err != nil {
		t.Fatalf("DeleteUser failed after settling: %v", err)
	}
	if _, err := f.svc.Users.Get(ctx, f.bob.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	// The ledger survives; Bob's settled history still nets to zero.
	nets := f.nets(t)
	if len(nets) != 2 {
		t.Errorf("expected 2 remaining members, got %d", len(nets))
	}
	assertNets(t, nets, map[string]string{f.alice.ID: "30", f.carol.ID: "-30"})
}

func TestRemoveMember_Guard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.equalExpense(t, f.alice, "90")

	var ce *ConflictError
	if err := f.svc.Groups.RemoveMember(ctx, f.group.ID, f.carol.ID); !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	bad := []string{f.alice.ID, f.bob.ID}
	if _, err := f.svc.Groups.Update(ctx, f.group.ID, models.GroupUpdate{Members: &bad}); !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError from update, got %v", err)
	}

	f.settle(t, f.carol, f.alice, "30")
	if err := f.svc.Groups.RemoveMember(ctx, f.group.ID, f.carol.ID); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := f.svc.Groups.RemoveMember(ctx, f.group.ID, f.carol.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError for non-member, got %v", err)
	}

	g, err := f.svc.Groups.Get(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if len(g.Users) != 2 {
		t.Errorf("expected 2 members, got %d", len(g.Users))
	}
	if !g.TotalExpenses.Equal(d("90")) {
		t.Errorf("TotalExpenses = %s, want 90", g.TotalExpenses)
	}
}

func TestGroupUpdateAndAddMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dave, err := f.svc.Users.Create(ctx, "Dave", "dave@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	name := "Road Trip"
	g, err := f.svc.Groups.Update(ctx, f.group.ID, models.GroupUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if g.Name != name || len(g.Members) != 3 {
		t.Errorf("UpdateGroup = %+v, want renamed with 3 members", g.Group)
	}

	g, err = f.svc.Groups.AddMembers(ctx, f.group.ID, []string{f.alice.ID, dave.ID})
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if len(g.Members) != 4 || g.Members[3] != dave.ID {
		t.Errorf("Members = %v, want dave appended", g.Members)
	}

	if _, err := f.svc.Groups.AddMembers(ctx, f.group.ID, []string{"ghost"}); !isNotFound(err) {
		t.Errorf("expected NotFoundError for unknown user, got %v", err)
	}
	if _, err := f.svc.Groups.AddMembers(ctx, f.group.ID, nil); err == nil {
		t.Error("expected ValidationError for empty user list")
	}

	// New members take part in equal splits with no explicit participants.
	f.equalExpense(t, f.alice, "100")
	assertNets(t, f.nets(t), map[string]string{dave.ID: "-25", f.alice.ID: "75"})
}

func TestUsers(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()

	u, err := svc.Users.Create(ctx, " Alice ", " Alice@Example.com ")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Name != "Alice" || u.Email != "alice@example.com" {
		t.Errorf("CreateUser = %+v, want trimmed name and lower-case email", u)
	}

	if _, err := svc.Users.Create(ctx, "Other", "ALICE@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	var ve *ValidationError
	if _, err := svc.Users.Create(ctx, "NoAt", "example.com"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	name := "Alicia"
	updated, err := svc.Users.Update(ctx, u.ID, models.UserUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if updated.Name != "Alicia" || updated.Email != "alice@example.com" {
		t.Errorf("UpdateUser = %+v, want only name changed", updated)
	}

	if _, err := svc.Users.List(ctx, -1, 0); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for negative skip, got %v", err)
	}
	users, err := svc.Users.List(ctx, 0, 10)
	if err != nil || len(users) != 1 {
		t.Errorf("ListUsers = %d users, %v; want 1", len(users), err)
	}
}

func TestBalanceCacheInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.nets(t)
	if f.cache.Len() != 1 {
		t.Fatalf("expected group aggregate to be cached, Len = %d", f.cache.Len())
	}

	f.equalExpense(t, f.alice, "30")
	if f.cache.Len() != 0 {
		t.Errorf("expected expense to invalidate the cache, Len = %d", f.cache.Len())
	}
	assertNets(t, f.nets(t), map[string]string{f.alice.ID: "20"})

	f.settle(t, f.bob, f.alice, "10")
	if f.cache.Len() != 0 {
		t.Errorf("expected settlement to invalidate the cache, Len = %d", f.cache.Len())
	}
	assertNets(t, f.nets(t), map[string]string{f.alice.ID: "10", f.bob.ID: "0"})

	// Renames are joined at read time.
	name := "Alicia"
	if _, err := f.svc.Users.Update(ctx, f.alice.ID, models.UserUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	balances, _ := f.svc.Balances.Group(ctx, f.group.ID)
	if balances[0].UserName != "Alicia" {
		t.Errorf("UserName = %q, want Alicia", balances[0].UserName)
	}
}

// TestConcurrentExpenseAndDelete races expense creation against group
// deletion. Either the deletion wins before any expense exists, or it must
// observe an expense and refuse.
func TestConcurrentExpenseAndDelete(t *testing.T) {
	for i := 0; i < 5; i++ {
		f := newFixture(t)
		ctx := context.Background()

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			deleteErr error
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Expenses.Create(ctx, f.group.ID, NewExpense{
					Description: "Taxi", Amount: d("10"), PaidBy: f.alice.ID, Policy: models.EqualPolicy{},
				})
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleteErr = f.svc.Groups.Delete(ctx, f.group.ID)
		}()
		wg.Wait()

		var ce *ConflictError
		switch {
		case deleteErr == nil:
			if created != 0 {
				t.Errorf("group deleted but %d expenses were appended", created)
			}
		case errors.As(deleteErr, &ce):
			if created == 0 {
				t.Error("deletion refused although no expense was recorded")
			}
			f.nets(t)
		default:
			t.Errorf("unexpected delete error: %v", deleteErr)
		}
	}
}

// openStore opens a temporary SQLite store without any services on top.
func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestDeleteGroup_SeesAppendsFromAnotherInstance runs two service instances
// over one database, each with its own locks and cache. An expense appended
// through one must block a group deletion through the other, even though the
// deleting instance cached the group as settled.
func TestDeleteGroup_SeesAppendsFromAnotherInstance(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	a := New(store, cache.NewMemory())
	b := New(store, cache.NewMemory())

	alice, err := a.Users.Create(ctx, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	bob, err := a.Users.Create(ctx, "Bob", "bob@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	group, err := a.Groups.Create(ctx, "Trip", "", []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := a.Balances.Group(ctx, group.ID); err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}

	_, err = b.Expenses.Create(ctx, group.ID, NewExpense{
		Description: "Dinner", Amount: d("50"), PaidBy: alice.ID, Policy: models.EqualPolicy{},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	err = a.Groups.Delete(ctx, group.ID)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(ce.Blockers) != 2 || ce.Blockers[0].GroupName != "Trip" {
		t.Errorf("Blockers = %+v, want Alice and Bob in Trip", ce.Blockers)
	}

	if err := a.Users.Delete(ctx, bob.ID); !errors.As(err, &ce) {
		t.Errorf("expected ConflictError deleting Bob, got %v", err)
	}
	if err := a.Groups.RemoveMember(ctx, group.ID, bob.ID); !errors.As(err, &ce) {
		t.Errorf("expected ConflictError removing Bob, got %v", err)
	}

	expenses, err := b.Expenses.List(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(expenses.Expenses) != 1 {
		t.Errorf("expected the expense to survive, got %d", len(expenses.Expenses))
	}
}

// interleavingCache runs beforeSet once, between computing an aggregate and
// storing it.
type interleavingCache struct {
	*cache.Memory
	beforeSet func()
	once      sync.Once
}

func (c *interleavingCache) Set(ctx context.Context, groupID string, gen uint64, l *calculator.Ledger) {
	if c.beforeSet != nil {
		c.once.Do(c.beforeSet)
	}
	c.Memory.Set(ctx, groupID, gen, l)
}

// TestBalanceCache_DiscardsAggregateOutdatedByAnotherInstance appends through
// a second instance after the first has aggregated but before it stores the
// result in the shared cache. The outdated aggregate must not be cached.
func TestBalanceCache_DiscardsAggregateOutdatedByAnotherInstance(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	shared := cache.NewMemory()
	slow := &interleavingCache{Memory: shared}
	a := New(store, slow)
	b := New(store, shared)

	alice, err := a.Users.Create(ctx, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	bob, err := a.Users.Create(ctx, "Bob", "bob@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	group, err := a.Groups.Create(ctx, "Trip", "", []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	slow.beforeSet = func() {
		_, err := b.Expenses.Create(ctx, group.ID, NewExpense{
			Description: "Dinner", Amount: d("50"), PaidBy: alice.ID, Policy: models.EqualPolicy{},
		})
		if err != nil {
			t.Errorf("CreateExpense failed: %v", err)
		}
	}
	if _, err := a.Balances.Group(ctx, group.ID); err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}
	if shared.Len() != 0 {
		t.Fatalf("outdated aggregate was cached, Len = %d", shared.Len())
	}

	balances, err := b.Balances.Group(ctx, group.ID)
	if err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}
	for _, bal := range balances {
		if bal.UserID == alice.ID && !bal.NetBalance.Equal(d("25")) {
			t.Errorf("alice net = %s, want 25", bal.NetBalance)
		}
	}
}

// vanishingGroupStore reports a membership in a group that no longer exists,
// as when the group is deleted right after the user's groups are listed.
type vanishingGroupStore struct {
	storage.Store
}

func (s vanishingGroupStore) ListGroupIDsByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.Store.ListGroupIDsByUser(ctx, userID)
	return append(ids, "deleted-group"), err
}

func TestDeleteUser_SkipsGroupDeletedConcurrently(t *testing.T) {
	ctx := context.Background()
	svc := New(vanishingGroupStore{Store: openStore(t)}, nil)

	alice, err := svc.Users.Create(ctx, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := svc.Groups.Create(ctx, "Trip", "", []string{alice.ID}); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if err := svc.Users.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := svc.Users.Get(ctx, alice.ID); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestLedger_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.equalExpense(t, f.alice, "30")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, err := f.svc.Balances.ledger(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("ledger with a cancelled caller failed: %v", err)
	}
	if !l.NetOf(f.alice.ID).Equal(d("20")) {
		t.Errorf("alice net = %s, want 20", l.NetOf(f.alice.ID))
	}
	if f.cache.Len() != 1 {
		t.Errorf("expected the aggregate to be cached, Len = %d", f.cache.Len())
	}
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
