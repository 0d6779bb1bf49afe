// Package event carries the trading core's outward notifications: order
// state transitions, executed trades and position changes.
package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradecore/internal/domain"
)

// Kind identifies the type of an event.
type Kind uint8

const (
	KindOrderUpdated Kind = iota + 1
	KindTradeExecuted
	KindPositionUpdated
)

func (k Kind) String() string {
	switch k {
	case KindOrderUpdated:
		return "order.updated"
	case KindTradeExecuted:
		return "trade.executed"
	case KindPositionUpdated:
		return "position.updated"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Kinds lists every event kind.
func Kinds() []Kind {
	return []Kind{KindOrderUpdated, KindTradeExecuted, KindPositionUpdated}
}

// ParseKind accepts the dotted event names.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, &domain.ValidationError{
		Message: fmt.Sprintf("Unknown event type: %s. Must be one of: order.updated, trade.executed, position.updated", s),
	}
}

// PositionChange is an account's cash and position after a settlement.
type PositionChange struct {
	AccountID string
	Cash      int64
	Position  domain.Position
	// RealizedPnL is set on the seller's change only.
	RealizedPnL *decimal.Decimal
}

// Event is a value snapshot; subscribers may keep it without copying.
// Exactly one of Order, Trade or Position is set, matching Kind.
type Event struct {
	Kind       Kind
	At         time.Time
	Recipients []string // account IDs entitled to see the event
	Order      *domain.Order
	Trade      *domain.Trade
	Position   *PositionChange
}

// OrderUpdated builds an order.updated event from an order snapshot.
func OrderUpdated(o domain.Order) Event {
	o.Trades = nil
	return Event{
		Kind:       KindOrderUpdated,
		At:         o.UpdatedAt,
		Recipients: []string{o.AccountID},
		Order:      &o,
	}
}

// TradeExecuted builds a trade.executed event addressed to both counterparties.
func TradeExecuted(t *domain.Trade) Event {
	recipients := []string{t.BuyerAccountID}
	if t.SellerAccountID != t.BuyerAccountID {
		recipients = append(recipients, t.SellerAccountID)
	}
	return Event{
		Kind:       KindTradeExecuted,
		At:         t.ExecutedAt,
		Recipients: recipients,
		Trade:      t,
	}
}

// PositionUpdated builds a position.updated event for one account.
func PositionUpdated(h domain.Holding, realized *decimal.Decimal, at time.Time) Event {
	return Event{
		Kind:       KindPositionUpdated,
		At:         at,
		Recipients: []string{h.AccountID},
		Position: &PositionChange{
			AccountID:   h.AccountID,
			Cash:        h.Cash,
			Position:    h.Position,
			RealizedPnL: realized,
		},
	}
}

// For reports whether accountID is a recipient of the event.
func (e Event) For(accountID string) bool {
	for _, r := range e.Recipients {
		if r == accountID {
			return true
		}
	}
	return false
}
