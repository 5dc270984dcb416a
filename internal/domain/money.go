package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PointsCurrency is the currency recharges are paid in.
const PointsCurrency = "COP"

// pointPrice is the currency value of one point.
var pointPrice = decimal.NewFromInt(1)

// Money represents an amount owed in the recharge currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// AmountDue returns what a requester must pay for the given points.
func AmountDue(points int64) Money {
	return Money{
		Amount:   decimal.NewFromInt(points).Mul(pointPrice),
		Currency: PointsCurrency,
	}
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

var uniIDPattern = regexp.MustCompile(`^[A-Z]{2}-\d{3}$`)

// NormalizeUniID upper-cases and trims a uni id, reporting whether it is well formed.
func NormalizeUniID(uniID string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(uniID))
	return normalized, uniIDPattern.MatchString(normalized)
}

// ValidPoints reports whether points are within a single ledger movement's bounds.
func ValidPoints(points int64) bool {
	return points >= MinTransactionPoints && points <= MaxTransactionPoints
}
