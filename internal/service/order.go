package service

import (
	"context"
	"math"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/engine"
	"github.com/efreitasn/tradecore/internal/store"
)

// PlaceOrderRequest represents the input for order placement.
type PlaceOrderRequest struct {
	AccountID    string
	InstrumentID string
	Side         domain.OrderSide
	Kind         domain.OrderKind
	Price        *float64 // required for LIMIT and STOP, must be nil for MARKET
	Quantity     int64
}

// ListOrdersFilter narrows an account's order listing.
type ListOrdersFilter struct {
	OpenOnly bool
	Status   *domain.OrderStatus
	Page     int
	Limit    int
}

// OrderService is the admission gateway: it validates order requests and
// hands admitted orders to the matcher. It also serves order queries and
// cancellation.
type OrderService struct {
	matcher  *engine.Matcher
	accounts *store.AccountStore
	orders   *store.OrderStore
	fees     domain.FeeSchedule
}

// NewOrderService creates a new OrderService. fees must be the schedule the
// matcher charges; a nil schedule charges nothing.
func NewOrderService(
	matcher *engine.Matcher,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	fees domain.FeeSchedule,
) *OrderService {
	if fees == nil {
		fees = domain.NoFee
	}
	return &OrderService{
		matcher:  matcher,
		accounts: accounts,
		orders:   orders,
		fees:     fees,
	}
}

// PlaceOrder validates the request and submits it to the matcher.
//
// Shape checks run first without any lock. Instrument tradability, funds
// and shares are checked under the instrument's serialization lock, right
// before the order is stored. Those checks are advisory: settlement
// re-validates every trade.
//
// A settlement failure returns the execution alongside the error.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*engine.Execution, error) {
	if req.Side != domain.OrderSideBid && req.Side != domain.OrderSideAsk {
		return nil, &domain.ValidationError{Message: "side must be one of: BID, ASK"}
	}
	if req.Kind < domain.OrderKindMarket || req.Kind > domain.OrderKindStop {
		return nil, &domain.ValidationError{Message: "type must be one of: MARKET, LIMIT, STOP"}
	}
	if req.InstrumentID == "" {
		return nil, &domain.ValidationError{Message: "instrument_id is required"}
	}
	if req.Quantity <= 0 {
		return nil, domain.AdmissionRejected(domain.ErrInvalidQuantity)
	}

	var priceCents int64
	if req.Kind.RequiresPrice() {
		if req.Price == nil || *req.Price <= 0 {
			return nil, domain.AdmissionRejected(domain.ErrInvalidPrice)
		}
		cents, err := domain.DollarsToCents(*req.Price)
		if err != nil {
			return nil, &domain.ValidationError{Message: "price must have at most 2 decimal places"}
		}
		priceCents = cents
	} else if req.Price != nil {
		return nil, domain.AdmissionRejected(domain.ErrInvalidPrice)
	}

	if !s.accounts.Exists(req.AccountID) {
		return nil, domain.AdmissionRejected(domain.ErrAccountNotFound)
	}

	order := &domain.Order{
		InstrumentID: req.InstrumentID,
		AccountID:    req.AccountID,
		Side:         req.Side,
		Kind:         req.Kind,
		Price:        priceCents,
		Quantity:     req.Quantity,
	}
	return s.matcher.Submit(ctx, order, s.admit)
}

// admit checks tradability and affordability against the ledger as it
// stands at the instrument's serialization point.
func (s *OrderService) admit(inst domain.Instrument, o *domain.Order) error {
	if !inst.Active {
		return domain.AdmissionRejected(domain.ErrInstrumentInactive)
	}
	acct, err := s.accounts.Get(o.AccountID)
	if err != nil {
		return domain.AdmissionRejected(err)
	}

	acct.Mu.Lock()
	defer acct.Mu.Unlock()

	if o.Side == domain.OrderSideAsk {
		if o.Quantity > acct.HeldQuantity(o.InstrumentID) {
			return domain.AdmissionRejected(domain.ErrInsufficientShares)
		}
		return nil
	}

	price := o.Price
	if o.Kind == domain.OrderKindMarket {
		price = inst.ReferencePrice
	}
	if price > 0 && o.Quantity > math.MaxInt64/price {
		return domain.AdmissionRejected(domain.ErrInsufficientFunds)
	}
	cost := price*o.Quantity + s.fees.Fee(domain.OrderSideBid, price, o.Quantity)
	if cost > acct.Cash {
		return domain.AdmissionRejected(domain.ErrInsufficientFunds)
	}
	return nil
}

// GetOrder returns a snapshot of an order with all its trades.
func (s *OrderService) GetOrder(orderID string) (domain.Order, error) {
	o, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.matcher.Snapshot(o), nil
}

// CancelOrder cancels an open order on behalf of its owner. A non-zero
// expectedVersion must match the order's current version.
func (s *OrderService) CancelOrder(orderID, accountID string, expectedVersion uint64) (domain.Order, error) {
	return s.matcher.Cancel(orderID, accountID, expectedVersion)
}

// ListAccountOrders returns a page of the account's orders, newest first,
// and the total number of orders matching the filter.
func (s *OrderService) ListAccountOrders(accountID string, f ListOrdersFilter) ([]domain.Order, int, error) {
	if !s.accounts.Exists(accountID) {
		return nil, 0, domain.ErrAccountNotFound
	}
	if f.Page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if f.Limit < 1 || f.Limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}

	all := s.orders.ListByAccount(accountID)
	matched := make([]domain.Order, 0, len(all))
	for _, o := range all {
		snap := s.matcher.Snapshot(o)
		if f.OpenOnly && !snap.IsOpen() {
			continue
		}
		if f.Status != nil && snap.Status != *f.Status {
			continue
		}
		matched = append(matched, snap)
	}

	page, total := store.Paginate(matched, f.Page, f.Limit)
	return page, total, nil
}
