package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeSchedule computes the fee charged to one leg of a trade, in cents.
type FeeSchedule interface {
	Fee(side OrderSide, price, quantity int64) int64
}

// FeeSides restricts which legs of a trade pay the fee.
type FeeSides uint8

const (
	FeeSidesBoth FeeSides = iota
	FeeSidesBuyer
	FeeSidesSeller
)

// ParseFeeSides accepts "both", "buyer" or "seller".
func ParseFeeSides(s string) (FeeSides, error) {
	switch s {
	case "both":
		return FeeSidesBoth, nil
	case "buyer":
		return FeeSidesBuyer, nil
	case "seller":
		return FeeSidesSeller, nil
	}
	return 0, fmt.Errorf("fee sides must be one of: both, buyer, seller, got %q", s)
}

func (fs FeeSides) charges(side OrderSide) bool {
	switch fs {
	case FeeSidesBuyer:
		return side == OrderSideBid
	case FeeSidesSeller:
		return side == OrderSideAsk
	}
	return true
}

// FlatFee charges a fixed amount per trade leg.
type FlatFee struct {
	Amount int64 // cents
	Sides  FeeSides
}

func (f FlatFee) Fee(side OrderSide, _, _ int64) int64 {
	if !f.Sides.charges(side) {
		return 0
	}
	return f.Amount
}

// ProportionalFee charges a share of the notional expressed in basis points,
// rounded half away from zero to whole cents.
type ProportionalFee struct {
	BasisPoints decimal.Decimal
	Sides       FeeSides
}

var tenThousand = decimal.NewFromInt(10000)

func (f ProportionalFee) Fee(side OrderSide, price, quantity int64) int64 {
	if !f.Sides.charges(side) {
		return 0
	}
	notional := decimal.NewFromInt(price).Mul(decimal.NewFromInt(quantity))
	return notional.Mul(f.BasisPoints).Div(tenThousand).Round(0).IntPart()
}

// NoFee charges nothing.
var NoFee FeeSchedule = FlatFee{}
