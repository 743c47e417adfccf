// Package money holds the decimal helpers shared by pricing, allocation and
// payout math. Amounts are two-decimal currency values in a single currency.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns round2(amount * pct / 100).
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(pct).Div(hundred))
}

// ToMinor converts a currency amount to integer minor units (cents).
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a currency amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Sum adds amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxZero clamps negative amounts to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// AllocateLargestRemainder splits total (in minor units) across weights in
// proportion, using the largest-remainder method so the shares sum to total
// exactly. Ties on the remainder go to the earlier index. When every weight is
// zero the total is split evenly.
func AllocateLargestRemainder(total int64, weights []int64) ([]int64, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("allocate: no weights")
	}
	if total < 0 {
		return nil, fmt.Errorf("allocate: negative total %d", total)
	}

	var weightSum int64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("allocate: negative weight at %d", i)
		}
		weightSum += w
	}
	if weightSum == 0 {
		weights = make([]int64, len(weights))
		for i := range weights {
			weights[i] = 1
		}
		weightSum = int64(len(weights))
	}

	shares := make([]int64, len(weights))
	remainders := make([]int64, len(weights))
	var allocated int64
	for i, w := range weights {
		// total*w fits int64 for any realistic checkout amount in cents.
		product := total * w
		shares[i] = product / weightSum
		remainders[i] = product % weightSum
		allocated += shares[i]
	}

	leftover := total - allocated
	for leftover > 0 {
		best := -1
		for i := range remainders {
			if remainders[i] < 0 {
				continue
			}
			if best == -1 || remainders[i] > remainders[best] {
				best = i
			}
		}
		shares[best]++
		remainders[best] = -1
		leftover--
	}
	return shares, nil
}
