package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradecore/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	instrument_id   TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	name            TEXT NOT NULL,
	reference_price INTEGER NOT NULL,
	active          INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	cash       INTEGER NOT NULL CHECK (cash >= 0),
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	account_id        TEXT NOT NULL REFERENCES accounts(account_id),
	instrument_id     TEXT NOT NULL,
	quantity          INTEGER NOT NULL CHECK (quantity > 0),
	average_buy_price TEXT NOT NULL,
	total_invested    TEXT NOT NULL,
	updated_at        INTEGER NOT NULL,
	PRIMARY KEY (account_id, instrument_id)
);
CREATE TABLE IF NOT EXISTS trades (
	trade_id          TEXT PRIMARY KEY,
	instrument_id     TEXT NOT NULL,
	sequence          INTEGER NOT NULL,
	buyer_account_id  TEXT NOT NULL,
	seller_account_id TEXT NOT NULL,
	buy_order_id      TEXT NOT NULL,
	sell_order_id     TEXT NOT NULL,
	price             INTEGER NOT NULL,
	quantity          INTEGER NOT NULL,
	buyer_fee         INTEGER NOT NULL,
	seller_fee        INTEGER NOT NULL,
	executed_at       INTEGER NOT NULL,
	UNIQUE (instrument_id, sequence)
);
`

// SQLiteStore is the durable ledger journal. Every settlement is written
// in a single transaction so a restart never observes half a trade.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// applies the schema.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite allows one writer; a single connection keeps transactions serial.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveInstrument inserts or replaces an instrument.
func (s *SQLiteStore) SaveInstrument(ctx context.Context, in domain.Instrument) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO instruments
			(instrument_id, symbol, name, reference_price, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.InstrumentID, in.Symbol, in.Name, in.ReferencePrice, in.Active, in.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save instrument %s: %w", in.InstrumentID, err)
	}
	return nil
}

// SaveAccount writes a newly registered account with its opening positions.
func (s *SQLiteStore) SaveAccount(ctx context.Context, a domain.AccountSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (account_id, cash, created_at) VALUES (?, ?, ?)`,
		a.AccountID, a.Cash, a.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("save account %s: %w", a.AccountID, err)
	}
	for _, p := range a.Positions {
		if err := putPosition(ctx, tx, a.AccountID, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordSettlement appends the trade and writes the post-trade holdings of
// both counterparties atomically.
func (s *SQLiteStore) RecordSettlement(ctx context.Context, t *domain.Trade, holdings []domain.Holding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades
			(trade_id, instrument_id, sequence, buyer_account_id, seller_account_id,
			 buy_order_id, sell_order_id, price, quantity, buyer_fee, seller_fee, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.InstrumentID, int64(t.Sequence), t.BuyerAccountID, t.SellerAccountID,
		t.BuyOrderID, t.SellOrderID, t.Price, t.Quantity, t.BuyerFee, t.SellerFee, t.ExecutedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}

	for _, h := range holdings {
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET cash = ? WHERE account_id = ?`, h.Cash, h.AccountID)
		if err != nil {
			return fmt.Errorf("update cash %s: %w", h.AccountID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update cash %s: %w", h.AccountID, domain.ErrAccountNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM positions WHERE account_id = ? AND instrument_id = ?`,
			h.AccountID, h.Position.InstrumentID,
		); err != nil {
			return fmt.Errorf("clear position %s/%s: %w", h.AccountID, h.Position.InstrumentID, err)
		}
		if h.Position.Quantity > 0 {
			if err := putPosition(ctx, tx, h.AccountID, h.Position); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func putPosition(ctx context.Context, tx *sql.Tx, accountID string, p domain.Position) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO positions
			(account_id, instrument_id, quantity, average_buy_price, total_invested, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, p.InstrumentID, p.Quantity, p.AverageBuyPrice.String(), p.TotalInvested.String(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put position %s/%s: %w", accountID, p.InstrumentID, err)
	}
	return nil
}

// LoadInstruments returns every journaled instrument.
func (s *SQLiteStore) LoadInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instrument_id, symbol, name, reference_price, active, updated_at
		 FROM instruments ORDER BY instrument_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		var (
			in      domain.Instrument
			updated int64
		)
		if err := rows.Scan(&in.InstrumentID, &in.Symbol, &in.Name, &in.ReferencePrice, &in.Active, &updated); err != nil {
			return nil, err
		}
		in.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, in)
	}
	return out, rows.Err()
}

// LoadAccounts returns every journaled account with its open positions.
func (s *SQLiteStore) LoadAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, cash, created_at FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []domain.AccountSnapshot
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			a       domain.AccountSnapshot
			created int64
		)
		if err := rows.Scan(&a.AccountID, &a.Cash, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(0, created).UTC()
		index[a.AccountID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	prow, err := s.db.QueryContext(ctx,
		`SELECT account_id, instrument_id, quantity, average_buy_price, total_invested, updated_at
		 FROM positions ORDER BY account_id, instrument_id`)
	if err != nil {
		return nil, err
	}
	defer prow.Close()

	for prow.Next() {
		var (
			accountID, avg, invested string
			p                        domain.Position
			updated                  int64
		)
		if err := prow.Scan(&accountID, &p.InstrumentID, &p.Quantity, &avg, &invested, &updated); err != nil {
			return nil, err
		}
		if p.AverageBuyPrice, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("position %s/%s: %w", accountID, p.InstrumentID, err)
		}
		if p.TotalInvested, err = decimal.NewFromString(invested); err != nil {
			return nil, fmt.Errorf("position %s/%s: %w", accountID, p.InstrumentID, err)
		}
		p.UpdatedAt = time.Unix(0, updated).UTC()
		i, ok := index[accountID]
		if !ok {
			continue
		}
		out[i].Positions = append(out[i].Positions, p)
	}
	return out, prow.Err()
}

// LoadTrades returns every journaled trade in (instrument, sequence) order.
func (s *SQLiteStore) LoadTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_id, instrument_id, sequence, buyer_account_id, seller_account_id,
		        buy_order_id, sell_order_id, price, quantity, buyer_fee, seller_fee, executed_at
		 FROM trades ORDER BY instrument_id, sequence`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			seq      int64
			executed int64
		)
		if err := rows.Scan(&t.TradeID, &t.InstrumentID, &seq, &t.BuyerAccountID, &t.SellerAccountID,
			&t.BuyOrderID, &t.SellOrderID, &t.Price, &t.Quantity, &t.BuyerFee, &t.SellerFee, &executed); err != nil {
			return nil, err
		}
		t.Sequence = uint64(seq)
		t.ExecutedAt = time.Unix(0, executed).UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}
