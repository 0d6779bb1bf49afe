// Package settlement converts trades into atomic ledger mutations on the
// buyer's and seller's accounts.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/portfolio"
	"github.com/efreitasn/tradecore/internal/store"
)

// Leg identifies which side of a trade a settlement failure belongs to.
type Leg uint8

const (
	LegBuyer Leg = iota + 1
	LegSeller
	// LegJournal marks a failure to make the trade durable. Neither
	// account was touched.
	LegJournal
)

func (l Leg) String() string {
	switch l {
	case LegBuyer:
		return "buyer"
	case LegSeller:
		return "seller"
	case LegJournal:
		return "journal"
	}
	return fmt.Sprintf("Leg(%d)", uint8(l))
}

// Failure is returned when a trade could not be applied. It matches
// domain.ErrSettlementFailed with errors.Is and unwraps to the cause.
type Failure struct {
	TradeID   string
	AccountID string
	Leg       Leg
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("settle trade %s: %s leg (account %s): %v", f.TradeID, f.Leg, f.AccountID, f.Err)
}

func (f *Failure) Is(target error) bool {
	return target == domain.ErrSettlementFailed
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Journal durably records a settled trade together with the post-trade
// holdings of its counterparties. It must be all-or-nothing.
type Journal interface {
	RecordSettlement(ctx context.Context, t *domain.Trade, holdings []domain.Holding) error
}

// Result describes the ledger after one trade was settled.
type Result struct {
	Trade  *domain.Trade
	Buyer  domain.Holding
	Seller domain.Holding
	// RealizedPnL is qty×(price − seller average) − seller fee, in cents.
	RealizedPnL decimal.Decimal
}

// SelfTrade reports whether buyer and seller are the same account.
func (r *Result) SelfTrade() bool {
	return r.Trade.BuyerAccountID == r.Trade.SellerAccountID
}

// Settler applies trades to the account ledger.
type Settler struct {
	accounts *store.AccountStore
	journal  Journal
}

// NewSettler creates a Settler. journal may be nil, in which case the
// ledger lives in memory only.
func NewSettler(accounts *store.AccountStore, journal Journal) *Settler {
	return &Settler{accounts: accounts, journal: journal}
}

// Settle applies both legs of t atomically. Funds and shares are
// re-validated here; admission-time checks are advisory. On error no
// account is modified.
func (s *Settler) Settle(ctx context.Context, t *domain.Trade) (*Result, error) {
	buyer, err := s.accounts.Get(t.BuyerAccountID)
	if err != nil {
		return nil, fail(t, LegBuyer, t.BuyerAccountID, err)
	}
	seller, err := s.accounts.Get(t.SellerAccountID)
	if err != nil {
		return nil, fail(t, LegSeller, t.SellerAccountID, err)
	}

	unlock := lockPair(buyer, seller)
	defer unlock()

	// Buyer leg, computed on copies.
	if buyer.Cash < t.BuyerCost() {
		return nil, fail(t, LegBuyer, buyer.AccountID,
			fmt.Errorf("cash %d below cost %d: %w", buyer.Cash, t.BuyerCost(), domain.ErrInsufficientFunds))
	}
	buyerCash := buyer.Cash - t.BuyerCost()
	buyerPos := portfolio.Buy(portfolio.PositionIn(buyer, t.InstrumentID), t.Quantity, t.Price, t.ExecutedAt)

	// Seller leg. A self-trade sells out of the state the buy leg produced.
	sellerCash, sellerPos := seller.Cash, portfolio.PositionIn(seller, t.InstrumentID)
	if seller == buyer {
		sellerCash, sellerPos = buyerCash, buyerPos
	}
	sellerPos, gross, err := portfolio.Sell(sellerPos, t.Quantity, t.Price, t.ExecutedAt)
	if err != nil {
		return nil, fail(t, LegSeller, seller.AccountID, err)
	}
	sellerCash += t.SellerProceeds()
	if sellerCash < 0 {
		return nil, fail(t, LegSeller, seller.AccountID,
			fmt.Errorf("fee %d exceeds cash: %w", t.SellerFee, domain.ErrInsufficientFunds))
	}

	res := &Result{
		Trade:       t,
		Buyer:       domain.Holding{AccountID: buyer.AccountID, Cash: buyerCash, Position: buyerPos},
		Seller:      domain.Holding{AccountID: seller.AccountID, Cash: sellerCash, Position: sellerPos},
		RealizedPnL: gross.Sub(decimal.NewFromInt(t.SellerFee)),
	}
	holdings := []domain.Holding{res.Buyer, res.Seller}
	if seller == buyer {
		res.Buyer = res.Seller
		holdings = holdings[1:]
	}

	if s.journal != nil {
		if err := s.journal.RecordSettlement(ctx, t, holdings); err != nil {
			return nil, fail(t, LegJournal, "", err)
		}
	}

	buyer.Cash = res.Buyer.Cash
	portfolio.Put(buyer, res.Buyer.Position)
	seller.Cash = res.Seller.Cash
	portfolio.Put(seller, res.Seller.Position)

	return res, nil
}

// lockPair locks both accounts in account_id order and returns the unlock
// function. A self-trade takes a single lock.
func lockPair(a, b *domain.Account) func() {
	if a == b {
		a.Mu.Lock()
		return a.Mu.Unlock
	}
	if b.AccountID < a.AccountID {
		a, b = b, a
	}
	a.Mu.Lock()
	b.Mu.Lock()
	return func() {
		b.Mu.Unlock()
		a.Mu.Unlock()
	}
}

func fail(t *domain.Trade, leg Leg, accountID string, err error) error {
	return &Failure{TradeID: t.TradeID, AccountID: accountID, Leg: leg, Err: err}
}

// FailedLeg extracts the failing leg from a settlement error.
func FailedLeg(err error) (Leg, string, bool) {
	var f *Failure
	if !errors.As(err, &f) {
		return 0, "", false
	}
	return f.Leg, f.AccountID, true
}
