package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

func newTestOrder(id, accountID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:           id,
		Kind:              domain.OrderKindLimit,
		AccountID:         accountID,
		Side:              domain.OrderSideBid,
		InstrumentID:      "AAPL",
		Price:             15000,
		Quantity:          10,
		RemainingQuantity: 10,
		Status:            domain.OrderStatusPending,
		CreatedAt:         createdAt,
	}
}

func TestOrderStore_Create_and_Get(t *testing.T) {
	s := NewOrderStore()
	o := newTestOrder("order-1", "acc-1", time.Now())

	s.Create(o)

	got, err := s.Get("order-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != o {
		t.Fatal("Get should return the stored order")
	}
}

func TestOrderStore_Get_NotFound(t *testing.T) {
	s := NewOrderStore()

	if _, err := s.Get("no-such-order"); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_ListByAccount_NewestFirst(t *testing.T) {
	s := NewOrderStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		s.Create(newTestOrder(fmt.Sprintf("order-%d", i), "acc-1", base.Add(time.Duration(i)*time.Second)))
	}

	orders := s.ListByAccount("acc-1")
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].OrderID != "order-2" || orders[2].OrderID != "order-0" {
		t.Fatalf("expected newest first, got %s..%s", orders[0].OrderID, orders[2].OrderID)
	}
}

func TestOrderStore_ListByAccount_SeparatesAccounts(t *testing.T) {
	s := NewOrderStore()
	s.Create(newTestOrder("o1", "acc-1", time.Now()))
	s.Create(newTestOrder("o2", "acc-2", time.Now()))

	if got := len(s.ListByAccount("acc-1")); got != 1 {
		t.Errorf("acc-1 orders = %d, want 1", got)
	}
	if got := s.ListByAccount("nobody"); len(got) != 0 {
		t.Errorf("expected empty list, got %d", len(got))
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		page, limit int
		want        []int
	}{
		{1, 2, []int{1, 2}},
		{2, 2, []int{3, 4}},
		{3, 2, []int{5}},
		{4, 2, []int{}},
		{1, 10, []int{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		got, total := Paginate(items, tt.page, tt.limit)
		if total != 5 {
			t.Errorf("page %d: total = %d, want 5", tt.page, total)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("page %d limit %d = %v, want %v", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestOrderStore_ConcurrentAccess(t *testing.T) {
	s := NewOrderStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Create(newTestOrder(fmt.Sprintf("order-%d", i), "acc-1", time.Now()))
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.ListByAccount("acc-1")
		}()
	}
	wg.Wait()

	if got := len(s.ListByAccount("acc-1")); got != 100 {
		t.Fatalf("expected 100 orders, got %d", got)
	}
}
