package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/models"
)

var (
	ErrNonPositiveAmount    = errors.New("amount must be greater than zero")
	ErrAmountPrecision      = errors.New("amount must have at most two decimal places")
	ErrAmountTooLarge       = errors.New("amount is too large")
	ErrOverflow             = errors.New("balance exceeds the representable range")
	ErrNoParticipants       = errors.New("must have at least one participant")
	ErrDuplicateParticipant = errors.New("participant listed more than once")
	ErrInvalidPercentage    = errors.New("percentage must be greater than zero")
	ErrPercentageTotal      = errors.New("percentages must sum to 100")
	ErrUnreconciled         = errors.New("split does not reconcile to the expense amount")
)

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.New(1, -2)
)

// Share is the calculated split for one participant.
type Share struct {
	UserID  string
	Amount  decimal.Decimal
	Percent *decimal.Decimal
}

// Allocate divides amount between the policy's participants.
// The returned shares follow the policy's participant order and always sum
// exactly to amount; if that is impossible an error is returned.
func Allocate(amount decimal.Decimal, policy models.SplitPolicy) ([]Share, error) {
	if amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	total, err := ToCents(amount)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrNoParticipants
	}

	ids := policy.ParticipantIDs()
	if err := validateParticipants(ids); err != nil {
		return nil, err
	}

	var cents []int64
	switch p := policy.(type) {
	case models.EqualPolicy:
		cents = splitEqual(total, ids)
	case models.PercentagePolicy:
		cents, err = splitPercentage(total, p.Shares)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported split policy %T", policy)
	}

	shares := make([]Share, len(ids))
	var sum int64
	for i, id := range ids {
		shares[i] = Share{UserID: id, Amount: FromCents(cents[i])}
		sum += cents[i]
	}
	if pp, ok := policy.(models.PercentagePolicy); ok {
		for i := range shares {
			pct := pp.Shares[i].Percent
			shares[i].Percent = &pct
		}
	}
	if sum != total {
		return nil, fmt.Errorf("%w: allocated %s of %s", ErrUnreconciled, FromCents(sum), amount)
	}
	return shares, nil
}

func validateParticipants(ids []string) error {
	if len(ids) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty user id", ErrNoParticipants)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
		}
		seen[id] = true
	}
	return nil
}

// splitEqual gives everyone floor(total/n) and hands the total%n leftover
// cents to the first participants by id ascending.
func splitEqual(total int64, ids []string) []int64 {
	n := int64(len(ids))
	base, rem := total/n, total%n

	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })

	out := make([]int64, len(ids))
	for i := range out {
		out[i] = base
	}
	for k := int64(0); k < rem; k++ {
		out[order[k]]++
	}
	return out
}

// splitPercentage floors every exact share to whole cents and distributes the
// leftover by largest fractional remainder (ties by id ascending).
func splitPercentage(total int64, shares []models.PercentShare) ([]int64, error) {
	sum := decimal.Zero
	for _, s := range shares {
		if s.Percent.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s has %s", ErrInvalidPercentage, s.UserID, s.Percent)
		}
		sum = sum.Add(s.Percent)
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return nil, fmt.Errorf("%w, got %s", ErrPercentageTotal, sum.String())
	}

	type part struct {
		idx  int
		id   string
		frac decimal.Decimal
	}
	totalDec := decimal.NewFromInt(total)
	out := make([]int64, len(shares))
	parts := make([]part, len(shares))
	var allocated int64
	for i, s := range shares {
		exact := totalDec.Mul(s.Percent).Div(hundred)
		floor := exact.Floor()
		out[i] = floor.IntPart()
		allocated += out[i]
		parts[i] = part{idx: i, id: s.UserID, frac: exact.Sub(floor)}
	}

	leftover := total - allocated
	n := int64(len(shares))
	if leftover > n || leftover < -n {
		// Within the 0.01 tolerance, but large amounts turn the gap into more
		// cents than rounding can absorb (one per participant).
		gap, verb := leftover, "unallocated"
		if gap < 0 {
			gap, verb = -gap, "over-allocated"
		}
		return nil, fmt.Errorf("%w: percentages sum to %s, leaving %s %s; adjust them to sum to exactly 100",
			ErrUnreconciled, sum.String(), FromCents(gap).StringFixed(2), verb)
	}

	if leftover >= 0 {
		sort.Slice(parts, func(a, b int) bool {
			if c := parts[a].frac.Cmp(parts[b].frac); c != 0 {
				return c > 0
			}
			return parts[a].id < parts[b].id
		})
		for k := int64(0); k < leftover; k++ {
			out[parts[k].idx]++
		}
		return out, nil
	}

	// Percentages summing slightly above 100: take cents back from the
	// smallest remainders first, never below zero.
	sort.Slice(parts, func(a, b int) bool {
		if c := parts[a].frac.Cmp(parts[b].frac); c != 0 {
			return c < 0
		}
		return parts[a].id < parts[b].id
	})
	for _, p := range parts {
		if leftover == 0 {
			break
		}
		if out[p.idx] > 0 {
			out[p.idx]--
			leftover++
		}
	}
	if leftover != 0 {
		return nil, fmt.Errorf("%w: %d cents left after rounding", ErrUnreconciled, leftover)
	}
	return out, nil
}
