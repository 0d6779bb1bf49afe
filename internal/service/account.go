package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/portfolio"
	"github.com/efreitasn/tradecore/internal/store"
)

var (
	accountIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	instrumentIDRegex = regexp.MustCompile(`^[A-Z0-9.]{1,16}$`)
)

// Journal persists reference data and opening balances outside the
// process. Settled trades are journaled by the settler.
type Journal interface {
	SaveAccount(ctx context.Context, a domain.AccountSnapshot) error
	SaveInstrument(ctx context.Context, in domain.Instrument) error
}

// RegisterAccountRequest represents the input for account registration.
type RegisterAccountRequest struct {
	AccountID        string
	InitialCash      float64
	InitialPositions []PositionInput
}

// PositionInput represents an opening position in a registration request.
// A nil AveragePrice opens the position at the instrument's reference price.
type PositionInput struct {
	InstrumentID string
	Quantity     int64
	AveragePrice *float64
}

// AccountService handles account registration and ledger queries.
type AccountService struct {
	store       *store.AccountStore
	ledger      *portfolio.Ledger
	instruments *domain.InstrumentRegistry
	journal     Journal
}

// NewAccountService creates a new AccountService. journal may be nil.
func NewAccountService(
	accounts *store.AccountStore,
	instruments *domain.InstrumentRegistry,
	journal Journal,
) *AccountService {
	return &AccountService{
		store:       accounts,
		ledger:      portfolio.NewLedger(accounts),
		instruments: instruments,
		journal:     journal,
	}
}

// Register validates the request and creates an account with its opening
// cash and positions.
func (s *AccountService) Register(ctx context.Context, req RegisterAccountRequest) (domain.AccountSnapshot, error) {
	if !accountIDRegex.MatchString(req.AccountID) {
		return domain.AccountSnapshot{}, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.InitialCash < 0 {
		return domain.AccountSnapshot{}, &domain.ValidationError{
			Message: "initial_cash must be >= 0",
		}
	}
	cashCents, err := domain.DollarsToCents(req.InitialCash)
	if err != nil {
		return domain.AccountSnapshot{}, &domain.ValidationError{
			Message: "initial_cash must have at most 2 decimal places",
		}
	}

	now := time.Now()
	acct := &domain.Account{
		AccountID: req.AccountID,
		Cash:      cashCents,
		Positions: make(map[string]*domain.Position),
		CreatedAt: now,
	}

	for _, p := range req.InitialPositions {
		if p.Quantity <= 0 {
			return domain.AccountSnapshot{}, &domain.ValidationError{
				Message: fmt.Sprintf("position quantity must be > 0 for instrument %s", p.InstrumentID),
			}
		}
		if _, dup := acct.Positions[p.InstrumentID]; dup {
			return domain.AccountSnapshot{}, &domain.ValidationError{
				Message: fmt.Sprintf("duplicate instrument in initial_positions: %s", p.InstrumentID),
			}
		}
		inst, err := s.instruments.Get(p.InstrumentID)
		if err != nil {
			return domain.AccountSnapshot{}, err
		}

		price := inst.ReferencePrice
		if p.AveragePrice != nil {
			if *p.AveragePrice <= 0 {
				return domain.AccountSnapshot{}, &domain.ValidationError{
					Message: fmt.Sprintf("average_price must be > 0 for instrument %s", p.InstrumentID),
				}
			}
			if price, err = domain.DollarsToCents(*p.AveragePrice); err != nil {
				return domain.AccountSnapshot{}, &domain.ValidationError{
					Message: "average_price must have at most 2 decimal places",
				}
			}
		}
		portfolio.Put(acct, portfolio.Buy(domain.Position{InstrumentID: p.InstrumentID}, p.Quantity, price, now))
	}

	if s.store.Exists(acct.AccountID) {
		return domain.AccountSnapshot{}, domain.ErrAccountAlreadyExists
	}
	snap := acct.Snapshot()
	if s.journal != nil {
		// A failed write must leave no in-memory account behind.
		if err := s.journal.SaveAccount(ctx, snap); err != nil {
			return domain.AccountSnapshot{}, fmt.Errorf("journal account %s: %w", acct.AccountID, err)
		}
	}
	if err := s.store.Create(acct); err != nil {
		return domain.AccountSnapshot{}, err
	}
	return s.ledger.Account(acct.AccountID)
}

// Restore loads a previously journaled account into memory without
// writing it back.
func (s *AccountService) Restore(snap domain.AccountSnapshot) error {
	acct := &domain.Account{
		AccountID: snap.AccountID,
		Cash:      snap.Cash,
		Positions: make(map[string]*domain.Position, len(snap.Positions)),
		CreatedAt: snap.CreatedAt,
	}
	for _, p := range snap.Positions {
		portfolio.Put(acct, p)
	}
	return s.store.Create(acct)
}

// Get returns the account's cash balance and positions.
func (s *AccountService) Get(accountID string) (domain.AccountSnapshot, error) {
	return s.ledger.Account(accountID)
}

// Positions returns all open positions of the account.
func (s *AccountService) Positions(accountID string) ([]domain.Position, error) {
	return s.ledger.Positions(accountID)
}

// Position returns the account's position in one instrument.
func (s *AccountService) Position(accountID, instrumentID string) (domain.Position, error) {
	return s.ledger.PositionOf(accountID, instrumentID)
}
