package service

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/engine"
	"github.com/efreitasn/tradecore/internal/store"
)

// MaxTradesPage bounds the recent-trades page size.
const MaxTradesPage = 100

// RegisterInstrumentRequest represents the input for instrument registration.
type RegisterInstrumentRequest struct {
	InstrumentID   string
	Symbol         string
	Name           string
	ReferencePrice float64
	Active         *bool // defaults to true
}

// UpdateInstrumentRequest carries the fields the instrument-management
// collaborator may change. Nil fields are left untouched.
type UpdateInstrumentRequest struct {
	Active         *bool
	ReferencePrice *float64
}

// PriceResponse represents the response for GET /instruments/{id}/price.
type PriceResponse struct {
	InstrumentID   string
	ReferencePrice int64
	LastPrice      *int64 // VWAP over the window, nil when never traded
	Window         string // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when never traded
}

// BookResponse represents the response for GET /instruments/{id}/book.
type BookResponse struct {
	InstrumentID string
	Bids         []engine.PriceLevel
	Asks         []engine.PriceLevel
	Spread       *int64 // nil if either side empty
	BidCount     int
	AskCount     int
	SnapshotAt   time.Time
}

// QuoteResponse represents the response for GET /instruments/{id}/quote.
type QuoteResponse struct {
	InstrumentID      string
	Side              domain.OrderSide
	QuantityRequested int64
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []engine.QuotePriceLevel
	QuotedAt          time.Time
}

// InstrumentService handles instrument reference data and market-data
// queries over the books and trade history.
type InstrumentService struct {
	instruments *domain.InstrumentRegistry
	trades      *store.TradeStore
	matcher     *engine.Matcher
	journal     Journal
	vwapWindow  time.Duration
}

// NewInstrumentService creates a new InstrumentService. journal may be nil.
func NewInstrumentService(
	instruments *domain.InstrumentRegistry,
	trades *store.TradeStore,
	matcher *engine.Matcher,
	journal Journal,
	vwapWindow time.Duration,
) *InstrumentService {
	return &InstrumentService{
		instruments: instruments,
		trades:      trades,
		matcher:     matcher,
		journal:     journal,
		vwapWindow:  vwapWindow,
	}
}

// Register validates and adds a new instrument.
func (s *InstrumentService) Register(ctx context.Context, req RegisterInstrumentRequest) (domain.Instrument, error) {
	if !instrumentIDRegex.MatchString(req.InstrumentID) {
		return domain.Instrument{}, &domain.ValidationError{
			Message: "instrument_id must match ^[A-Z0-9.]{1,16}$",
		}
	}
	if req.ReferencePrice <= 0 {
		return domain.Instrument{}, &domain.ValidationError{
			Message: "reference_price must be greater than 0",
		}
	}
	price, err := domain.DollarsToCents(req.ReferencePrice)
	if err != nil {
		return domain.Instrument{}, &domain.ValidationError{
			Message: "reference_price must have at most 2 decimal places",
		}
	}

	in := domain.Instrument{
		InstrumentID:   req.InstrumentID,
		Symbol:         req.Symbol,
		Name:           req.Name,
		ReferencePrice: price,
		Active:         req.Active == nil || *req.Active,
		UpdatedAt:      time.Now(),
	}
	if in.Symbol == "" {
		in.Symbol = in.InstrumentID
	}
	if s.instruments.Exists(in.InstrumentID) {
		return domain.Instrument{}, domain.ErrInstrumentAlreadyExists
	}
	if err := s.save(ctx, in); err != nil {
		return domain.Instrument{}, err
	}
	if err := s.instruments.Register(in); err != nil {
		return domain.Instrument{}, err
	}
	return in, nil
}

// Update toggles the active flag and/or moves the reference price.
func (s *InstrumentService) Update(ctx context.Context, instrumentID string, req UpdateInstrumentRequest) (domain.Instrument, error) {
	var price *int64
	if req.ReferencePrice != nil {
		if *req.ReferencePrice <= 0 {
			return domain.Instrument{}, &domain.ValidationError{
				Message: "reference_price must be greater than 0",
			}
		}
		cents, err := domain.DollarsToCents(*req.ReferencePrice)
		if err != nil {
			return domain.Instrument{}, &domain.ValidationError{
				Message: "reference_price must have at most 2 decimal places",
			}
		}
		price = &cents
	}

	in, err := s.instruments.Update(instrumentID, req.Active, price)
	if err != nil {
		return domain.Instrument{}, err
	}
	if err := s.save(ctx, in); err != nil {
		return domain.Instrument{}, err
	}
	return in, nil
}

func (s *InstrumentService) save(ctx context.Context, in domain.Instrument) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.SaveInstrument(ctx, in); err != nil {
		return fmt.Errorf("journal instrument %s: %w", in.InstrumentID, err)
	}
	return nil
}

// Get returns an instrument by ID.
func (s *InstrumentService) Get(instrumentID string) (domain.Instrument, error) {
	return s.instruments.Get(instrumentID)
}

// List returns all instruments ordered by ID.
func (s *InstrumentService) List() []domain.Instrument {
	return s.instruments.List()
}

// RestingOrders returns one side of the instrument's book in priority order.
func (s *InstrumentService) RestingOrders(instrumentID string, side domain.OrderSide) ([]domain.Order, error) {
	if !s.instruments.Exists(instrumentID) {
		return nil, domain.ErrInstrumentNotFound
	}
	if side != domain.OrderSideBid && side != domain.OrderSideAsk {
		return nil, &domain.ValidationError{Message: "side must be one of: BID, ASK"}
	}
	return s.matcher.RestingOrders(instrumentID, side), nil
}

// RecentTrades returns up to limit trades, most recent first.
func (s *InstrumentService) RecentTrades(instrumentID string, limit int) ([]*domain.Trade, error) {
	if !s.instruments.Exists(instrumentID) {
		return nil, domain.ErrInstrumentNotFound
	}
	if limit < 1 || limit > MaxTradesPage {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxTradesPage),
		}
	}
	return s.trades.Recent(instrumentID, limit), nil
}

// GetPrice returns the instrument's reference price together with the
// traded price, computed as VWAP over the configured window. Falls back to
// the last trade's price if no trades exist in the window.
func (s *InstrumentService) GetPrice(instrumentID string) (*PriceResponse, error) {
	inst, err := s.instruments.Get(instrumentID)
	if err != nil {
		return nil, err
	}

	resp := &PriceResponse{
		InstrumentID:   instrumentID,
		ReferencePrice: inst.ReferencePrice,
		Window:         formatDuration(s.vwapWindow),
	}

	last, ok := s.trades.Last(instrumentID)
	if !ok {
		return resp, nil
	}
	resp.LastTradeAt = &last.ExecutedAt

	var sumPriceQty, sumQty int64
	window := s.trades.Since(instrumentID, time.Now().Add(-s.vwapWindow))
	for _, t := range window {
		sumPriceQty += t.Price * t.Quantity
		sumQty += t.Quantity
	}
	resp.TradesInWindow = len(window)

	if sumQty > 0 {
		vwap := sumPriceQty / sumQty
		resp.LastPrice = &vwap
	} else {
		resp.LastPrice = &last.Price
	}
	return resp, nil
}

// GetBook returns the top depth price levels of the instrument's book.
func (s *InstrumentService) GetBook(instrumentID string, depth int) (*BookResponse, error) {
	if !s.instruments.Exists(instrumentID) {
		return nil, domain.ErrInstrumentNotFound
	}
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	d := s.matcher.Depth(instrumentID, depth)
	resp := &BookResponse{
		InstrumentID: instrumentID,
		Bids:         d.Bids,
		Asks:         d.Asks,
		Spread:       d.Spread,
		BidCount:     d.BidCount,
		AskCount:     d.AskCount,
		SnapshotAt:   time.Now(),
	}
	if resp.Bids == nil {
		resp.Bids = []engine.PriceLevel{}
	}
	if resp.Asks == nil {
		resp.Asks = []engine.PriceLevel{}
	}
	return resp, nil
}

// GetQuote simulates a market order against the current book and returns
// the estimated result without placing an order.
func (s *InstrumentService) GetQuote(instrumentID string, side domain.OrderSide, quantity int64) (*QuoteResponse, error) {
	if !s.instruments.Exists(instrumentID) {
		return nil, domain.ErrInstrumentNotFound
	}
	if side != domain.OrderSideBid && side != domain.OrderSideAsk {
		return nil, &domain.ValidationError{Message: "side must be one of: BID, ASK"}
	}
	if quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	result := s.matcher.Quote(instrumentID, side, quantity)
	return &QuoteResponse{
		InstrumentID:      instrumentID,
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: result.QuantityAvailable,
		FullyFillable:     result.FullyFillable,
		EstimatedAvgPrice: result.EstimatedAvgPrice,
		EstimatedTotal:    result.EstimatedTotal,
		PriceLevels:       result.PriceLevels,
		QuotedAt:          time.Now(),
	}, nil
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
