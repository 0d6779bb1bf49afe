package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/event"
	"github.com/efreitasn/tradecore/internal/settlement"
	"github.com/efreitasn/tradecore/internal/store"
)

// Publisher receives the matcher's outward events. Publish must not block.
type Publisher interface {
	Publish(event.Event)
}

type discard struct{}

func (discard) Publish(event.Event) {}

// AdmitFunc runs under the instrument's serialization lock before the
// order is stored. A non-nil error rejects the order and nothing is created.
type AdmitFunc func(inst domain.Instrument, o *domain.Order) error

// Execution is the outcome of submitting one order.
type Execution struct {
	Order  domain.Order // snapshot after matching
	Trades []*domain.Trade
}

// QuotePriceLevel represents a single price level in a quote simulation.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
}

// Depth is an aggregated view of one instrument's book.
type Depth struct {
	Bids     []PriceLevel
	Asks     []PriceLevel
	Spread   *int64 // nil unless both sides are priced
	BidCount int
	AskCount int
}

// Matcher is the matching engine. All admission, matching and
// cancellation for one instrument run under that instrument's book lock;
// different instruments proceed in parallel.
type Matcher struct {
	books       *BookManager
	orders      *store.OrderStore
	trades      *store.TradeStore
	instruments *domain.InstrumentRegistry
	settler     *settlement.Settler
	fees        domain.FeeSchedule
	events      Publisher
	logger      *slog.Logger
}

// NewMatcher creates a new Matcher with the given dependencies. A nil fee
// schedule charges nothing; a nil publisher discards events.
func NewMatcher(
	books *BookManager,
	orders *store.OrderStore,
	trades *store.TradeStore,
	instruments *domain.InstrumentRegistry,
	settler *settlement.Settler,
	fees domain.FeeSchedule,
	events Publisher,
	logger *slog.Logger,
) *Matcher {
	if fees == nil {
		fees = domain.NoFee
	}
	if events == nil {
		events = discard{}
	}
	return &Matcher{
		books:       books,
		orders:      orders,
		trades:      trades,
		instruments: instruments,
		settler:     settler,
		fees:        fees,
		events:      events,
		logger:      logger,
	}
}

// Submit admits an order and matches it against the opposite side of its
// instrument's book under price-time priority.
//
// The caller provides Side, Kind, InstrumentID, AccountID, Price and
// Quantity. The matcher assigns the arrival Sequence and, if empty, the
// OrderID, and manages all status transitions.
//
// Each crossing is settled before either order or the book is touched. If
// settlement fails, matching halts: completed trades stand, the incoming
// order is REJECTED with its settled remaining quantity, and the
// settlement error is returned alongside the execution.
func (m *Matcher) Submit(ctx context.Context, o *domain.Order, admit AdmitFunc) (*Execution, error) {
	book := m.books.GetOrCreate(o.InstrumentID)

	book.mu.Lock()
	defer book.mu.Unlock()

	inst, err := m.instruments.Get(o.InstrumentID)
	if err != nil {
		return nil, domain.AdmissionRejected(err)
	}
	if o.Kind == domain.OrderKindStop {
		return nil, domain.AdmissionRejected(domain.ErrOrderKindUnsupported)
	}
	if admit != nil {
		if err := admit(inst, o); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if o.OrderID == "" {
		o.OrderID = uuid.New().String()
	}
	o.Sequence = book.nextSequence()
	o.RemainingQuantity = o.Quantity
	o.FilledQuantity = 0
	o.CancelledQuantity = 0
	o.Status = domain.OrderStatusPending
	o.RejectReason = ""
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Trades = []*domain.Trade{}

	m.orders.Create(o)

	exec := &Execution{Trades: []*domain.Trade{}}
	for o.RemainingQuantity > 0 {
		best, found := book.Best(o.Side.Opposite())
		if !found || !crossable(o, best) {
			break
		}
		resting := best.Order

		qty := min(o.RemainingQuantity, resting.RemainingQuantity)
		t := m.newTrade(book, o, resting, executionPrice(o, best, inst), qty)

		res, err := m.settler.Settle(ctx, t)
		if err != nil {
			book.tradeSeq--
			m.abort(book, o, resting, t, err)
			m.events.Publish(event.OrderUpdated(o.Snapshot()))
			exec.Order = o.Snapshot()
			return exec, err
		}

		o.Fill(qty, t.ExecutedAt)
		resting.Fill(qty, t.ExecutedAt)
		o.Trades = append(o.Trades, t)
		resting.Trades = append(resting.Trades, t)
		m.trades.Append(t)
		exec.Trades = append(exec.Trades, t)

		if resting.RemainingQuantity == 0 {
			book.Remove(resting.OrderID)
		}
		m.publishFill(res, resting)
	}

	if o.RemainingQuantity > 0 {
		switch {
		case o.Kind == domain.OrderKindLimit:
			book.Insert(o)
		case o.FilledQuantity == 0:
			// Market orders never rest.
			o.Reject(domain.ErrNoLiquidity.Error(), time.Now())
		default:
			o.Cancel(time.Now())
		}
	}

	m.events.Publish(event.OrderUpdated(o.Snapshot()))
	exec.Order = o.Snapshot()
	return exec, nil
}

// crossable reports whether the incoming order can trade with the best
// resting entry on the opposite side.
func crossable(o *domain.Order, best OrderBookEntry) bool {
	if o.Kind == domain.OrderKindMarket || best.Market {
		return true
	}
	if o.Side == domain.OrderSideBid {
		return o.Price >= best.Price
	}
	return o.Price <= best.Price
}

// executionPrice is the resting order's price. A resting market order
// trades at the incoming limit, and two market orders at the reference price.
func executionPrice(o *domain.Order, resting OrderBookEntry, inst domain.Instrument) int64 {
	if !resting.Market {
		return resting.Price
	}
	if o.Kind != domain.OrderKindMarket {
		return o.Price
	}
	return inst.ReferencePrice
}

func (m *Matcher) newTrade(book *OrderBook, incoming, resting *domain.Order, price, qty int64) *domain.Trade {
	bid, ask := incoming, resting
	if incoming.Side == domain.OrderSideAsk {
		bid, ask = resting, incoming
	}
	return &domain.Trade{
		TradeID:         uuid.New().String(),
		InstrumentID:    book.instrumentID,
		BuyerAccountID:  bid.AccountID,
		SellerAccountID: ask.AccountID,
		BuyOrderID:      bid.OrderID,
		SellOrderID:     ask.OrderID,
		Price:           price,
		Quantity:        qty,
		BuyerFee:        m.fees.Fee(domain.OrderSideBid, price, qty),
		SellerFee:       m.fees.Fee(domain.OrderSideAsk, price, qty),
		Sequence:        m.nextTradeSequence(book),
		ExecutedAt:      time.Now(),
	}
}

// nextTradeSequence continues the instrument's trade numbering, resuming
// from recorded history the first time the book trades.
func (m *Matcher) nextTradeSequence(book *OrderBook) uint64 {
	if !book.resumed {
		if last, ok := m.trades.Last(book.instrumentID); ok {
			book.tradeSeq = last.Sequence
		}
		book.resumed = true
	}
	book.tradeSeq++
	return book.tradeSeq
}

// abort handles a failed settlement. The incoming order is rejected. If the
// failing leg belongs to the resting order it is cancelled as well, so it
// cannot fail every later crossing.
func (m *Matcher) abort(book *OrderBook, o, resting *domain.Order, t *domain.Trade, err error) {
	leg, accountID, _ := settlement.FailedLeg(err)
	m.logger.Error("settlement failed, matching halted",
		slog.String("instrument_id", t.InstrumentID),
		slog.String("order_id", o.OrderID),
		slog.String("resting_order_id", resting.OrderID),
		slog.String("buyer_account_id", t.BuyerAccountID),
		slog.String("seller_account_id", t.SellerAccountID),
		slog.Int64("price", t.Price),
		slog.Int64("quantity", t.Quantity),
		slog.String("leg", leg.String()),
		slog.String("error", err.Error()),
	)

	now := time.Now()
	restingLeg := settlement.LegSeller
	if resting.Side == domain.OrderSideBid {
		restingLeg = settlement.LegBuyer
	}
	if leg == restingLeg && accountID == resting.AccountID {
		book.Remove(resting.OrderID)
		resting.Cancel(now)
		m.events.Publish(event.OrderUpdated(resting.Snapshot()))
		m.logger.Warn("resting order cancelled after settlement failure",
			slog.String("order_id", resting.OrderID),
			slog.String("account_id", resting.AccountID),
		)
	}

	o.Reject(domain.ErrSettlementFailed.Error(), now)
}

func (m *Matcher) publishFill(res *settlement.Result, resting *domain.Order) {
	at := res.Trade.ExecutedAt
	pnl := res.RealizedPnL

	m.events.Publish(event.TradeExecuted(res.Trade))
	m.events.Publish(event.OrderUpdated(resting.Snapshot()))
	if !res.SelfTrade() {
		m.events.Publish(event.PositionUpdated(res.Buyer, nil, at))
	}
	m.events.Publish(event.PositionUpdated(res.Seller, &pnl, at))
}

// Cancel cancels a PENDING or PARTIAL order owned by requesterID. A
// non-zero expectedVersion must match the order's current version.
//
// Cancellation performs no ledger mutation: nothing was held at admission.
func (m *Matcher) Cancel(orderID, requesterID string, expectedVersion uint64) (domain.Order, error) {
	o, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, domain.CancellationRejected(domain.ErrOrderNotFound)
	}
	// Ownership and instrument never change, so they are safe to read unlocked.
	if o.AccountID != requesterID {
		return domain.Order{}, domain.CancellationRejected(domain.ErrNotOrderOwner)
	}

	book := m.books.GetOrCreate(o.InstrumentID)
	book.mu.Lock()
	defer book.mu.Unlock()

	if expectedVersion != 0 && o.Version != expectedVersion {
		reason := domain.ErrVersionMismatch
		if o.Status.Terminal() {
			reason = domain.TerminalReason(o.Status)
		}
		return o.Snapshot(), domain.ConcurrentModification(reason)
	}
	if !o.IsOpen() {
		return o.Snapshot(), domain.CancellationRejected(domain.TerminalReason(o.Status))
	}

	book.Remove(o.OrderID)
	o.Cancel(time.Now())

	snap := o.Snapshot()
	m.events.Publish(event.OrderUpdated(snap))
	return snap, nil
}

// Snapshot returns a consistent copy of an order, taken under its book lock.
func (m *Matcher) Snapshot(o *domain.Order) domain.Order {
	book := m.books.GetOrCreate(o.InstrumentID)
	book.mu.RLock()
	defer book.mu.RUnlock()
	return o.Snapshot()
}

// RestingOrders returns snapshots of one side of an instrument's book in
// priority order.
func (m *Matcher) RestingOrders(instrumentID string, side domain.OrderSide) []domain.Order {
	book := m.books.GetOrCreate(instrumentID)
	book.mu.RLock()
	defer book.mu.RUnlock()

	resting := book.OrdersFor(side)
	out := make([]domain.Order, 0, len(resting))
	for _, o := range resting {
		out = append(out, o.Snapshot())
	}
	return out
}

// Depth aggregates up to levels price levels per side.
func (m *Matcher) Depth(instrumentID string, levels int) Depth {
	book := m.books.GetOrCreate(instrumentID)
	book.mu.RLock()
	defer book.mu.RUnlock()

	d := Depth{
		Bids:     book.TopBids(levels),
		Asks:     book.TopAsks(levels),
		BidCount: book.Count(domain.OrderSideBid),
		AskCount: book.Count(domain.OrderSideAsk),
	}
	if spread, ok := book.Spread(); ok {
		d.Spread = &spread
	}
	return d
}

// Quote performs a read-only walk of the opposite side of the book to
// estimate the result of a market order without placing it. For bid
// quotes it walks asks (lowest first); for ask quotes it walks bids
// (highest first).
func (m *Matcher) Quote(instrumentID string, side domain.OrderSide, quantity int64) *QuoteResult {
	book := m.books.GetOrCreate(instrumentID)

	book.mu.RLock()
	defer book.mu.RUnlock()

	result := &QuoteResult{
		PriceLevels: make([]QuotePriceLevel, 0),
	}

	remaining := quantity
	var totalCost int64

	book.Walk(side.Opposite(), func(entry OrderBookEntry) bool {
		if remaining <= 0 {
			return false
		}
		if entry.Market {
			return true
		}
		fillQty := min(entry.Order.RemainingQuantity, remaining)
		totalCost += entry.Price * fillQty
		result.QuantityAvailable += fillQty
		remaining -= fillQty

		if n := len(result.PriceLevels); n > 0 && result.PriceLevels[n-1].Price == entry.Price {
			result.PriceLevels[n-1].Quantity += fillQty
		} else {
			result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{
				Price:    entry.Price,
				Quantity: fillQty,
			})
		}
		return true
	})

	if result.QuantityAvailable > 0 {
		avgPrice := totalCost / result.QuantityAvailable
		result.EstimatedAvgPrice = &avgPrice
		result.EstimatedTotal = &totalCost
	}
	result.FullyFillable = result.QuantityAvailable >= quantity

	return result
}
