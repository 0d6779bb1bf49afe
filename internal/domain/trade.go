package domain

import "time"

// Trade is the immutable record of one match between a bid and an ask.
type Trade struct {
	TradeID         string
	InstrumentID    string
	BuyerAccountID  string
	SellerAccountID string
	BuyOrderID      string
	SellOrderID     string
	Price           int64 // cents
	Quantity        int64
	BuyerFee        int64 // cents
	SellerFee       int64 // cents
	Sequence        uint64
	ExecutedAt      time.Time
}

// Notional returns price × quantity in cents.
func (t *Trade) Notional() int64 {
	return t.Price * t.Quantity
}

// BuyerCost is the amount debited from the buyer.
func (t *Trade) BuyerCost() int64 {
	return t.Notional() + t.BuyerFee
}

// SellerProceeds is the amount credited to the seller. It can be negative
// when the fee exceeds the notional.
func (t *Trade) SellerProceeds() int64 {
	return t.Notional() - t.SellerFee
}
