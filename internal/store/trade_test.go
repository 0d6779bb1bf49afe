package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

func newTestTrade(instrumentID string, seq uint64) *domain.Trade {
	return &domain.Trade{
		TradeID:      fmt.Sprintf("trade-%s-%d", instrumentID, seq),
		InstrumentID: instrumentID,
		Price:        15000,
		Quantity:     10,
		Sequence:     seq,
		ExecutedAt:   time.Now(),
	}
}

func TestTradeStore_RecentNewestFirst(t *testing.T) {
	s := NewTradeStore()
	for seq := uint64(1); seq <= 5; seq++ {
		s.Append(newTestTrade("AAPL", seq))
	}

	got := s.Recent("AAPL", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(got))
	}
	for i, want := range []uint64{5, 4, 3} {
		if got[i].Sequence != want {
			t.Errorf("trade[%d].Sequence = %d, want %d", i, got[i].Sequence, want)
		}
	}
}

func TestTradeStore_RecentLimitLargerThanHistory(t *testing.T) {
	s := NewTradeStore()
	s.Append(newTestTrade("AAPL", 1))

	if got := s.Recent("AAPL", 100); len(got) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(got))
	}
}

func TestTradeStore_Recent_Empty(t *testing.T) {
	s := NewTradeStore()

	got := s.Recent("NONE", 10)
	if got == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 trades, got %d", len(got))
	}
}

func TestTradeStore_LastAndCount(t *testing.T) {
	s := NewTradeStore()
	if _, ok := s.Last("AAPL"); ok {
		t.Fatal("Last should report no trade on an empty store")
	}

	s.Append(newTestTrade("AAPL", 1))
	s.Append(newTestTrade("AAPL", 2))
	s.Append(newTestTrade("GOOG", 1))

	last, ok := s.Last("AAPL")
	if !ok || last.Sequence != 2 {
		t.Fatalf("Last(AAPL) = %+v, %v", last, ok)
	}
	if s.Count("AAPL") != 2 || s.Count("GOOG") != 1 || s.Count("MSFT") != 0 {
		t.Fatal("Count returned wrong values")
	}
}

func TestTradeStore_ConcurrentAccess(t *testing.T) {
	s := NewTradeStore()
	var wg sync.WaitGroup

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			s.Append(newTestTrade("AAPL", seq))
		}(uint64(i))
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Recent("AAPL", 10)
		}()
	}
	wg.Wait()

	if got := s.Count("AAPL"); got != 100 {
		t.Fatalf("expected 100 trades, got %d", got)
	}
}

func TestTradeStore_Since(t *testing.T) {
	s := NewTradeStore()
	now := time.Now()
	for seq := uint64(1); seq <= 4; seq++ {
		tr := newTestTrade("AAPL", seq)
		tr.ExecutedAt = now.Add(time.Duration(seq-4) * time.Minute)
		s.Append(tr)
	}

	got := s.Since("AAPL", now.Add(-90*time.Second))
	if len(got) != 2 {
		t.Fatalf("expected 2 trades in window, got %d", len(got))
	}
	if got[0].Sequence != 4 || got[1].Sequence != 3 {
		t.Errorf("expected sequences 4,3, got %d,%d", got[0].Sequence, got[1].Sequence)
	}
	if got := s.Since("MSFT", now); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
