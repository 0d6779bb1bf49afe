package event

import (
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

// Envelope is the JSON shape shared by webhook deliveries and the stream.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type orderData struct {
	OrderID           string   `json:"order_id"`
	AccountID         string   `json:"account_id"`
	InstrumentID      string   `json:"instrument_id"`
	Side              string   `json:"side"`
	Type              string   `json:"type"`
	Price             *float64 `json:"price"`
	Quantity          int64    `json:"quantity"`
	FilledQuantity    int64    `json:"filled_quantity"`
	RemainingQuantity int64    `json:"remaining_quantity"`
	CancelledQuantity int64    `json:"cancelled_quantity"`
	Status            string   `json:"status"`
	RejectReason      string   `json:"reject_reason,omitempty"`
	Version           uint64   `json:"version"`
}

type tradeData struct {
	TradeID         string  `json:"trade_id"`
	InstrumentID    string  `json:"instrument_id"`
	BuyerAccountID  string  `json:"buyer_account_id"`
	SellerAccountID string  `json:"seller_account_id"`
	BuyOrderID      string  `json:"buy_order_id"`
	SellOrderID     string  `json:"sell_order_id"`
	Price           float64 `json:"price"`
	Quantity        int64   `json:"quantity"`
	BuyerFee        float64 `json:"buyer_fee"`
	SellerFee       float64 `json:"seller_fee"`
}

type positionData struct {
	AccountID       string   `json:"account_id"`
	InstrumentID    string   `json:"instrument_id"`
	Quantity        int64    `json:"quantity"`
	AverageBuyPrice float64  `json:"average_buy_price"`
	TotalInvested   float64  `json:"total_invested"`
	Cash            float64  `json:"cash_balance"`
	RealizedPnL     *float64 `json:"realized_pnl,omitempty"`
}

// Payload renders the event as its JSON envelope.
func (e Event) Payload() Envelope {
	env := Envelope{
		Event:     e.Kind.String(),
		Timestamp: e.At.UTC().Truncate(time.Second).Format(time.RFC3339),
	}

	switch e.Kind {
	case KindOrderUpdated:
		o := e.Order
		d := orderData{
			OrderID:           o.OrderID,
			AccountID:         o.AccountID,
			InstrumentID:      o.InstrumentID,
			Side:              o.Side.String(),
			Type:              o.Kind.String(),
			Quantity:          o.Quantity,
			FilledQuantity:    o.FilledQuantity,
			RemainingQuantity: o.RemainingQuantity,
			CancelledQuantity: o.CancelledQuantity,
			Status:            o.Status.String(),
			RejectReason:      o.RejectReason,
			Version:           o.Version,
		}
		if o.Kind != domain.OrderKindMarket {
			p := domain.CentsToDollars(o.Price)
			d.Price = &p
		}
		env.Data = d
	case KindTradeExecuted:
		t := e.Trade
		env.Data = tradeData{
			TradeID:         t.TradeID,
			InstrumentID:    t.InstrumentID,
			BuyerAccountID:  t.BuyerAccountID,
			SellerAccountID: t.SellerAccountID,
			BuyOrderID:      t.BuyOrderID,
			SellOrderID:     t.SellOrderID,
			Price:           domain.CentsToDollars(t.Price),
			Quantity:        t.Quantity,
			BuyerFee:        domain.CentsToDollars(t.BuyerFee),
			SellerFee:       domain.CentsToDollars(t.SellerFee),
		}
	case KindPositionUpdated:
		p := e.Position
		d := positionData{
			AccountID:       p.AccountID,
			InstrumentID:    p.Position.InstrumentID,
			Quantity:        p.Position.Quantity,
			AverageBuyPrice: domain.CentsDecimalToDollars(p.Position.AverageBuyPrice),
			TotalInvested:   domain.CentsDecimalToDollars(p.Position.TotalInvested),
			Cash:            domain.CentsToDollars(p.Cash),
		}
		if p.RealizedPnL != nil {
			v := domain.CentsDecimalToDollars(*p.RealizedPnL)
			d.RealizedPnL = &v
		}
		env.Data = d
	}
	return env
}
