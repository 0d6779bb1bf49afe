package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether an order is a bid (buy) or ask (sell).
type OrderSide uint8

const (
	OrderSideBid OrderSide = iota + 1
	OrderSideAsk
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBid:
		return "BID"
	case OrderSideAsk:
		return "ASK"
	}
	return fmt.Sprintf("OrderSide(%d)", uint8(s))
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBid {
		return OrderSideAsk
	}
	return OrderSideBid
}

// ParseOrderSide accepts "BID" or "ASK".
func ParseOrderSide(s string) (OrderSide, error) {
	switch s {
	case "BID":
		return OrderSideBid, nil
	case "ASK":
		return OrderSideAsk, nil
	}
	return 0, &ValidationError{Message: fmt.Sprintf("side must be one of: BID, ASK, got %q", s)}
}

// OrderKind distinguishes market, limit and stop orders.
type OrderKind uint8

const (
	OrderKindMarket OrderKind = iota + 1
	OrderKindLimit
	// OrderKindStop is reserved. Orders of this kind are accepted by the
	// parser but rejected at admission because no trigger is modelled.
	OrderKindStop
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MARKET"
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindStop:
		return "STOP"
	}
	return fmt.Sprintf("OrderKind(%d)", uint8(k))
}

// RequiresPrice reports whether orders of this kind must carry a limit price.
func (k OrderKind) RequiresPrice() bool {
	return k == OrderKindLimit || k == OrderKindStop
}

// ParseOrderKind accepts "MARKET", "LIMIT" or "STOP".
func ParseOrderKind(s string) (OrderKind, error) {
	switch s {
	case "MARKET":
		return OrderKindMarket, nil
	case "LIMIT":
		return OrderKindLimit, nil
	case "STOP":
		return OrderKindStop, nil
	}
	return 0, &ValidationError{Message: fmt.Sprintf("type must be one of: MARKET, LIMIT, STOP, got %q", s)}
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus uint8

const (
	OrderStatusPending OrderStatus = iota + 1
	OrderStatusPartial
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusPartial:
		return "PARTIAL"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// ParseOrderStatus accepts the upper-case status names.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range []OrderStatus{
		OrderStatusPending, OrderStatusPartial, OrderStatusFilled,
		OrderStatusCancelled, OrderStatusRejected,
	} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, &ValidationError{
		Message: fmt.Sprintf("status must be one of: PENDING, PARTIAL, FILLED, CANCELLED, REJECTED, got %q", s),
	}
}

// Order represents a standing intent to trade one instrument.
type Order struct {
	OrderID           string
	InstrumentID      string
	AccountID         string
	Side              OrderSide
	Kind              OrderKind
	Price             int64 // limit price in cents, 0 for market orders
	Quantity          int64
	RemainingQuantity int64
	FilledQuantity    int64
	CancelledQuantity int64
	Status            OrderStatus
	RejectReason      string
	Sequence          uint64 // arrival order within the instrument, assigned by the matcher
	Version           uint64 // bumped on every mutation
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Trades            []*Trade
}

// IsOpen reports whether the order can still trade or be cancelled.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartial
}

// Fill records an execution of qty against the order and moves it to
// PARTIAL or FILLED.
func (o *Order) Fill(qty int64, at time.Time) {
	o.RemainingQuantity -= qty
	o.FilledQuantity += qty
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
	o.touch(at)
}

// Cancel moves the unfilled remainder to CancelledQuantity.
func (o *Order) Cancel(at time.Time) {
	o.CancelledQuantity += o.RemainingQuantity
	o.RemainingQuantity = 0
	o.Status = OrderStatusCancelled
	o.touch(at)
}

// Reject marks the order REJECTED, keeping its remaining quantity as is.
func (o *Order) Reject(reason string, at time.Time) {
	o.Status = OrderStatusRejected
	o.RejectReason = reason
	o.touch(at)
}

func (o *Order) touch(at time.Time) {
	o.UpdatedAt = at
	o.Version++
}

// Snapshot returns a copy of the order safe to hand to other goroutines.
// The trade slice is copied; trades themselves are immutable.
func (o *Order) Snapshot() Order {
	cp := *o
	if o.Trades != nil {
		cp.Trades = make([]*Trade, len(o.Trades))
		copy(cp.Trades, o.Trades)
	}
	return cp
}

// AveragePrice computes the volume-weighted average execution price
// as sum(trade.price × trade.quantity) / filled_quantity using integer
// arithmetic. Returns (price, true) when trades exist, or (0, false)
// when no trades have been executed.
func (o *Order) AveragePrice() (int64, bool) {
	if len(o.Trades) == 0 || o.FilledQuantity == 0 {
		return 0, false
	}
	var total int64
	for _, t := range o.Trades {
		total += t.Price * t.Quantity
	}
	return total / o.FilledQuantity, true
}
