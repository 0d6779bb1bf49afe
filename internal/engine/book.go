package engine

import (
	"sync"

	"github.com/google/btree"

	"github.com/efreitasn/tradecore/internal/domain"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price    int64
	Market   bool // unbounded limit: always crossable, best priority on its side
	Sequence uint64
	OrderID  string
	Order    *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

func newEntry(o *domain.Order) OrderBookEntry {
	return OrderBookEntry{
		Price:    o.Price,
		Market:   o.Kind == domain.OrderKindMarket,
		Sequence: o.Sequence,
		OrderID:  o.OrderID,
		Order:    o,
	}
}

// bidLess defines ordering for the bid side: market orders first, then
// price descending, then arrival sequence ascending. Min() returns the
// best bid.
func bidLess(a, b OrderBookEntry) bool {
	if a.Market != b.Market {
		return a.Market
	}
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Sequence < b.Sequence
}

// askLess defines ordering for the ask side: market orders first, then
// price ascending, then arrival sequence ascending. Min() returns the
// best ask.
func askLess(a, b OrderBookEntry) bool {
	if a.Market != b.Market {
		return a.Market
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Sequence < b.Sequence
}

// OrderBook maintains the bid and ask sides for a single instrument using
// B-trees with a secondary index for O(log n) removal by order ID.
//
// The book's mutex is the instrument's serialization point. Book methods
// do not lock; the matcher holds mu around every call.
type OrderBook struct {
	instrumentID string
	mu           sync.RWMutex
	bids         *btree.BTreeG[OrderBookEntry]
	asks         *btree.BTreeG[OrderBookEntry]
	index        map[string]OrderBookEntry // order_id → entry

	orderSeq uint64 // last arrival sequence handed out
	tradeSeq uint64 // last trade sequence handed out
	resumed  bool   // tradeSeq has been restored from trade history
}

// NewOrderBook creates an order book for the given instrument.
func NewOrderBook(instrumentID string) *OrderBook {
	const degree = 32
	return &OrderBook{
		instrumentID: instrumentID,
		bids:         btree.NewG[OrderBookEntry](degree, bidLess),
		asks:         btree.NewG[OrderBookEntry](degree, askLess),
		index:        make(map[string]OrderBookEntry),
	}
}

// InstrumentID returns the instrument the book belongs to.
func (ob *OrderBook) InstrumentID() string {
	return ob.instrumentID
}

// nextSequence hands out the next arrival sequence number.
func (ob *OrderBook) nextSequence() uint64 {
	ob.orderSeq++
	return ob.orderSeq
}

// Insert rests an order on its own side of the book.
func (ob *OrderBook) Insert(o *domain.Order) {
	entry := newEntry(o)
	if o.Side == domain.OrderSideBid {
		ob.bids.ReplaceOrInsert(entry)
	} else {
		ob.asks.ReplaceOrInsert(entry)
	}
	ob.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by order ID using the secondary
// index. It reports whether the order was resting.
func (ob *OrderBook) Remove(orderID string) bool {
	entry, ok := ob.index[orderID]
	if !ok {
		return false
	}
	delete(ob.index, orderID)
	if entry.Order.Side == domain.OrderSideBid {
		ob.bids.Delete(entry)
	} else {
		ob.asks.Delete(entry)
	}
	return true
}

// Contains reports whether the order is resting on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// BestBid returns the highest-priority bid (highest price, earliest arrival).
func (ob *OrderBook) BestBid() (OrderBookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, earliest arrival).
func (ob *OrderBook) BestAsk() (OrderBookEntry, bool) {
	return ob.asks.Min()
}

// Best returns the highest-priority entry on the given side.
func (ob *OrderBook) Best(side domain.OrderSide) (OrderBookEntry, bool) {
	if side == domain.OrderSideBid {
		return ob.BestBid()
	}
	return ob.BestAsk()
}

// Walk iterates a side in priority order. The callback returns true to
// continue, false to stop.
func (ob *OrderBook) Walk(side domain.OrderSide, fn func(OrderBookEntry) bool) {
	if side == domain.OrderSideBid {
		ob.bids.Ascend(fn)
		return
	}
	ob.asks.Ascend(fn)
}

// OrdersFor returns the resting orders of one side in priority order.
func (ob *OrderBook) OrdersFor(side domain.OrderSide) []*domain.Order {
	orders := make([]*domain.Order, 0, ob.Count(side))
	ob.Walk(side, func(e OrderBookEntry) bool {
		orders = append(orders, e.Order)
		return true
	})
	return orders
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates limit entries into
// at most n price levels. Market entries carry no price and are skipped.
func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if entry.Market {
			return true
		}
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// Spread returns best ask − best bid when both sides have a priced order.
func (ob *OrderBook) Spread() (int64, bool) {
	bid, ok := ob.BestBid()
	if !ok || bid.Market {
		return 0, false
	}
	ask, ok := ob.BestAsk()
	if !ok || ask.Market {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Count returns the number of resting orders on a side.
func (ob *OrderBook) Count(side domain.OrderSide) int {
	if side == domain.OrderSideBid {
		return ob.bids.Len()
	}
	return ob.asks.Len()
}

// BookManager is a thread-safe map of instrument → OrderBook. Books are
// created lazily and kept for the life of the process.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given instrument, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(instrumentID string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[instrumentID]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[instrumentID]; ok {
		return book
	}
	book = NewOrderBook(instrumentID)
	bm.books[instrumentID] = book
	return book
}
