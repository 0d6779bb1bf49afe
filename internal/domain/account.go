package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an account's holding of a single instrument.
// AverageBuyPrice and TotalInvested are expressed in cents.
type Position struct {
	InstrumentID    string
	Quantity        int64
	AverageBuyPrice decimal.Decimal
	TotalInvested   decimal.Decimal
	UpdatedAt       time.Time
}

// Account is the ledger entry of a trading participant: its cash balance
// and its positions.
type Account struct {
	AccountID string
	Cash      int64                // cents
	Positions map[string]*Position // instrument_id → position
	CreatedAt time.Time
	Mu        sync.Mutex // per-account lock for balance and position mutations
}

// HeldQuantity returns the quantity held for the given instrument,
// or 0 if the account has no position in it.
func (a *Account) HeldQuantity(instrumentID string) int64 {
	p, ok := a.Positions[instrumentID]
	if !ok {
		return 0
	}
	return p.Quantity
}

// AccountSnapshot is a point-in-time copy of an account.
type AccountSnapshot struct {
	AccountID string
	Cash      int64
	Positions []Position
	CreatedAt time.Time
}

// Snapshot copies the account. The caller must hold a.Mu.
func (a *Account) Snapshot() AccountSnapshot {
	s := AccountSnapshot{
		AccountID: a.AccountID,
		Cash:      a.Cash,
		Positions: make([]Position, 0, len(a.Positions)),
		CreatedAt: a.CreatedAt,
	}
	for _, p := range a.Positions {
		s.Positions = append(s.Positions, *p)
	}
	return s
}

// Holding is one account's cash balance together with its position in a
// single instrument. A zero Position.Quantity means the position is closed.
type Holding struct {
	AccountID string
	Cash      int64
	Position  Position
}
