// Package portfolio maintains weighted-average cost basis per
// (account, instrument) position. It is the only writer of positions and
// is driven exclusively by trade settlement.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
)

// averagePlaces is the precision, in fractional cents, of stored average prices.
const averagePlaces = 8

// Buy returns pos after acquiring qty shares at price (cents). The new
// average is (oldQty×oldAvg + qty×price) / (oldQty+qty); fees do not enter
// the cost basis.
func Buy(pos domain.Position, qty, price int64, at time.Time) domain.Position {
	invested := pos.TotalInvested
	if pos.Quantity == 0 {
		// The average of a closed position is undefined; start afresh.
		invested = decimal.Zero
	}
	invested = invested.Add(decimal.NewFromInt(qty).Mul(decimal.NewFromInt(price)))

	pos.Quantity += qty
	pos.AverageBuyPrice = invested.DivRound(decimal.NewFromInt(pos.Quantity), averagePlaces)
	pos.TotalInvested = invested
	pos.UpdatedAt = at
	return pos
}

// Sell returns pos after disposing of qty shares at price (cents) and the
// gross realized gain qty×(price − avg). The sold portion's cost basis is
// removed at the current average price.
func Sell(pos domain.Position, qty, price int64, at time.Time) (domain.Position, decimal.Decimal, error) {
	if qty > pos.Quantity {
		return pos, decimal.Zero, fmt.Errorf("sell %d of %s holding %d: %w",
			qty, pos.InstrumentID, pos.Quantity, domain.ErrInsufficientShares)
	}

	q := decimal.NewFromInt(qty)
	realized := q.Mul(decimal.NewFromInt(price).Sub(pos.AverageBuyPrice))

	pos.Quantity -= qty
	pos.UpdatedAt = at
	if pos.Quantity == 0 {
		pos.AverageBuyPrice = decimal.Zero
		pos.TotalInvested = decimal.Zero
		return pos, realized, nil
	}
	// Removing qty×avg leaves exactly remaining×avg.
	pos.TotalInvested = decimal.NewFromInt(pos.Quantity).Mul(pos.AverageBuyPrice)
	return pos, realized, nil
}

// PositionIn returns a copy of the account's position in the instrument,
// or an empty position. The caller must hold acct.Mu.
func PositionIn(acct *domain.Account, instrumentID string) domain.Position {
	if p, ok := acct.Positions[instrumentID]; ok {
		return *p
	}
	return domain.Position{InstrumentID: instrumentID}
}

// Put stores pos on the account, pruning it when the quantity reaches zero.
// The caller must hold acct.Mu.
func Put(acct *domain.Account, pos domain.Position) {
	if pos.Quantity == 0 {
		delete(acct.Positions, pos.InstrumentID)
		return
	}
	if acct.Positions == nil {
		acct.Positions = make(map[string]*domain.Position)
	}
	p := pos
	acct.Positions[pos.InstrumentID] = &p
}

// Ledger is the read side of the portfolio.
type Ledger struct {
	accounts *store.AccountStore
}

// NewLedger creates a Ledger over the account store.
func NewLedger(accounts *store.AccountStore) *Ledger {
	return &Ledger{accounts: accounts}
}

// PositionOf returns the account's position in the instrument.
// It returns domain.ErrPositionNotFound if none is held.
func (l *Ledger) PositionOf(accountID, instrumentID string) (domain.Position, error) {
	acct, err := l.accounts.Get(accountID)
	if err != nil {
		return domain.Position{}, err
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	p, ok := acct.Positions[instrumentID]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return *p, nil
}

// Positions returns all of the account's open positions sorted by instrument.
func (l *Ledger) Positions(accountID string) ([]domain.Position, error) {
	acct, err := l.accounts.Get(accountID)
	if err != nil {
		return nil, err
	}

	acct.Mu.Lock()
	out := make([]domain.Position, 0, len(acct.Positions))
	for _, p := range acct.Positions {
		out = append(out, *p)
	}
	acct.Mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out, nil
}

// Account returns a consistent snapshot of the account's cash and positions.
func (l *Ledger) Account(accountID string) (domain.AccountSnapshot, error) {
	acct, err := l.accounts.Get(accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	acct.Mu.Lock()
	snap := acct.Snapshot()
	acct.Mu.Unlock()

	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].InstrumentID < snap.Positions[j].InstrumentID
	})
	return snap, nil
}
