package store

import (
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/efreitasn/tradecore/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trades, indexed per
// instrument by trade sequence so the newest trades can be paged cheaply.
// Trades are append-only.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string]*btree.Map[uint64, *domain.Trade] // instrument_id → sequence → trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string]*btree.Map[uint64, *domain.Trade]),
	}
}

// Append records a trade under its instrument.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.trades[t.InstrumentID]
	if !ok {
		idx = new(btree.Map[uint64, *domain.Trade])
		s.trades[t.InstrumentID] = idx
	}
	idx.Set(t.Sequence, t)
}

// Recent returns up to limit trades for the instrument, most recent first.
// Returns an empty slice if no trades exist.
func (s *TradeStore) Recent(instrumentID string, limit int) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.trades[instrumentID]
	if !ok || limit <= 0 {
		return []*domain.Trade{}
	}
	result := make([]*domain.Trade, 0, min(limit, idx.Len()))
	idx.Reverse(func(_ uint64, t *domain.Trade) bool {
		result = append(result, t)
		return len(result) < limit
	})
	return result
}

// Last returns the most recent trade for the instrument.
func (s *TradeStore) Last(instrumentID string) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.trades[instrumentID]
	if !ok {
		return nil, false
	}
	_, t, ok := idx.Max()
	return t, ok
}

// Count returns the number of trades recorded for the instrument.
func (s *TradeStore) Count(instrumentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.trades[instrumentID]
	if !ok {
		return 0
	}
	return idx.Len()
}

// Since returns the instrument's trades executed at or after from, most
// recent first. Sequences follow execution order, so the walk stops at the
// first older trade.
func (s *TradeStore) Since(instrumentID string, from time.Time) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Trade{}
	idx, ok := s.trades[instrumentID]
	if !ok {
		return result
	}
	idx.Reverse(func(_ uint64, t *domain.Trade) bool {
		if t.ExecutedAt.Before(from) {
			return false
		}
		result = append(result, t)
		return true
	})
	return result
}
