package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

func newTestAccount(id string) *domain.Account {
	return &domain.Account{
		AccountID: id,
		Cash:      100000, // $1000.00
		CreatedAt: time.Now(),
	}
}

func TestAccountStore_Create(t *testing.T) {
	s := NewAccountStore()
	a := newTestAccount("acc-1")

	if err := s.Create(a); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.Positions == nil {
		t.Fatal("Create should initialise the positions map")
	}

	// Duplicate should fail.
	if err := s.Create(a); err != domain.ErrAccountAlreadyExists {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestAccountStore_Get(t *testing.T) {
	s := NewAccountStore()
	_ = s.Create(newTestAccount("acc-1"))

	got, err := s.Get("acc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Cash != 100000 {
		t.Fatalf("expected cash 100000, got %d", got.Cash)
	}

	if _, err := s.Get("missing"); err != domain.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountStore_IDsSorted(t *testing.T) {
	s := NewAccountStore()
	for _, id := range []string{"c", "a", "b"} {
		_ = s.Create(newTestAccount(id))
	}

	ids := s.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("IDs() = %v, want [a b c]", ids)
	}
	if !s.Exists("b") || s.Exists("z") {
		t.Fatal("Exists returned the wrong answer")
	}
}

func TestAccountStore_ConcurrentAccess(t *testing.T) {
	s := NewAccountStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Create(newTestAccount(id))
		}(fmt.Sprintf("acc-%d", i))
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.Get(id)
		}(fmt.Sprintf("acc-%d", i))
	}
	wg.Wait()

	if got := len(s.IDs()); got != 100 {
		t.Fatalf("expected 100 accounts, got %d", got)
	}
}
