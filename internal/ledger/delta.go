package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DeltaCheck is the outcome of comparing inventory quantities before and after a movement.
type DeltaCheck struct {
	Pre           decimal.Decimal `json:"pre"`
	Post          decimal.Decimal `json:"post"`
	ExpectedDelta decimal.Decimal `json:"expectedDelta"`
	Expected      decimal.Decimal `json:"expected"`
	Passed        bool            `json:"passed"`
	Description   string          `json:"description"`
}

// ActualDelta returns post - pre.
func (c DeltaCheck) ActualDelta() decimal.Decimal {
	return c.Post.Sub(c.Pre)
}

// VerifyBalanceDelta checks post == pre + expectedDelta.
// Quantities are whole units, so equality is exact.
func VerifyBalanceDelta(pre, post, expectedDelta decimal.Decimal) DeltaCheck {
	expected := pre.Add(expectedDelta)
	check := DeltaCheck{
		Pre:           pre,
		Post:          post,
		ExpectedDelta: expectedDelta,
		Expected:      expected,
		Passed:        post.Equal(expected),
	}

	if check.Passed {
		check.Description = fmt.Sprintf("balance updated correctly: %s + %s = %s",
			pre.String(), expectedDelta.String(), post.String())
	} else {
		check.Description = fmt.Sprintf("balance mismatch: expected %s (%s + %s), got %s",
			expected.String(), pre.String(), expectedDelta.String(), post.String())
	}
	return check
}
