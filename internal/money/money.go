// Package money holds the decimal rules shared by listings and bids.
package money

import (
	"fmt"
	"strings"

	"auctions/internal/biddingerrors"
	"auctions/internal/models"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits an amount may carry.
const Precision int32 = 2

// MinAmount is the smallest valid starting bid or bid amount.
var MinAmount = decimal.New(1, -Precision)

// MaxIntegerDigits bounds the whole part of an amount, matching the
// numeric(20,2) columns of the Postgres store.
const MaxIntegerDigits = 18

// Validate checks that amount is a positive value of at least MinAmount with
// no more than Precision fractional digits and at most MaxIntegerDigits whole
// digits. A non-zero max caps the amount.
func Validate(amount, max decimal.Decimal) error {
	if err := checkShape(amount); err != nil {
		return err
	}
	if amount.LessThan(MinAmount) {
		return fmt.Errorf("%w - amount must be at least %s", biddingerrors.ErrInvalidBid, Format(MinAmount))
	}
	if !amount.Equal(amount.Round(Precision)) {
		return fmt.Errorf("%w - amount %s has more than %d decimal places", biddingerrors.ErrInvalidBid, amount.String(), Precision)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("%w - amount exceeds maximum of %s", biddingerrors.ErrInvalidBid, Format(max))
	}
	return nil
}

// checkShape bounds an amount by its coefficient and exponent alone, so
// inputs like 1e80000000 are refused before any rescaling arithmetic runs.
func checkShape(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w - amount must be at least %s", biddingerrors.ErrInvalidBid, Format(MinAmount))
	}
	digits := int64(amount.NumDigits())
	exp := int64(amount.Exponent())
	if digits+exp > MaxIntegerDigits {
		return fmt.Errorf("%w - amount has more than %d whole digits", biddingerrors.ErrInvalidBid, MaxIntegerDigits)
	}
	// a coefficient of n digits cannot end in n or more zeros
	if extra := -exp - int64(Precision); extra >= digits {
		return fmt.Errorf("%w - amount has more than %d decimal places", biddingerrors.ErrInvalidBid, Precision)
	}
	return nil
}

// Parse reads a decimal string such as "12.50", ignoring surrounding spaces.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w - %q is not a decimal amount", biddingerrors.ErrInvalidBid, s)
	}
	return d, nil
}

// Format renders an amount with exactly Precision fractional digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Precision)
}

// Highest returns the leading bid: the largest amount, ties going to the bid
// that reached that amount first, then to the lowest bid ID.
func Highest(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		switch b.Amount.Cmp(best.Amount) {
		case 1:
			best = b
		case 0:
			if b.UpdatedAt.Before(best.UpdatedAt) || (b.UpdatedAt.Equal(best.UpdatedAt) && b.BidID < best.BidID) {
				best = b
			}
		}
	}
	return best, true
}
