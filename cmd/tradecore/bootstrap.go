package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efreitasn/tradecore/internal/config"
	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/service"
	"github.com/efreitasn/tradecore/internal/store"
)

// restore reloads the journaled ledger: instruments first, then accounts
// and their positions, then trade history so per-instrument trade
// sequences continue where they left off.
func restore(
	ctx context.Context,
	db *store.SQLiteStore,
	instruments *domain.InstrumentRegistry,
	accounts *service.AccountService,
	trades *store.TradeStore,
	logger *slog.Logger,
) error {
	insts, err := db.LoadInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	for _, in := range insts {
		if err := instruments.Register(in); err != nil {
			return fmt.Errorf("restore instrument %s: %w", in.InstrumentID, err)
		}
	}

	snaps, err := db.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	for _, snap := range snaps {
		if err := accounts.Restore(snap); err != nil {
			return fmt.Errorf("restore account %s: %w", snap.AccountID, err)
		}
	}

	history, err := db.LoadTrades(ctx)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for _, t := range history {
		trades.Append(t)
	}

	logger.Info("ledger restored",
		slog.Int("instruments", len(insts)),
		slog.Int("accounts", len(snaps)),
		slog.Int("trades", len(history)),
	)
	return nil
}

// applySeed registers seed instruments and accounts. Entries that already
// exist, typically restored from the journal, are left untouched.
func applySeed(
	ctx context.Context,
	seed *config.Seed,
	instruments *service.InstrumentService,
	accounts *service.AccountService,
	logger *slog.Logger,
) error {
	var created, skipped int

	for _, in := range seed.Instruments {
		_, err := instruments.Register(ctx, service.RegisterInstrumentRequest{
			InstrumentID:   in.ID,
			Symbol:         in.Symbol,
			Name:           in.Name,
			ReferencePrice: in.ReferencePrice,
			Active:         in.Active,
		})
		switch {
		case errors.Is(err, domain.ErrInstrumentAlreadyExists):
			skipped++
		case err != nil:
			return fmt.Errorf("seed instrument %s: %w", in.ID, err)
		default:
			created++
		}
	}

	for _, a := range seed.Accounts {
		positions := make([]service.PositionInput, len(a.Positions))
		for i, p := range a.Positions {
			positions[i] = service.PositionInput{
				InstrumentID: p.Instrument,
				Quantity:     p.Quantity,
				AveragePrice: p.AveragePrice,
			}
		}
		_, err := accounts.Register(ctx, service.RegisterAccountRequest{
			AccountID:        a.ID,
			InitialCash:      a.Cash,
			InitialPositions: positions,
		})
		switch {
		case errors.Is(err, domain.ErrAccountAlreadyExists):
			skipped++
		case err != nil:
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		default:
			created++
		}
	}

	logger.Info("seed applied", slog.Int("created", created), slog.Int("skipped", skipped))
	return nil
}
