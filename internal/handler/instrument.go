package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/engine"
	"github.com/efreitasn/tradecore/internal/service"
)

// InstrumentHandler handles HTTP requests for instrument endpoints.
type InstrumentHandler struct {
	instrumentSvc *service.InstrumentService
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(instrumentSvc *service.InstrumentService) *InstrumentHandler {
	return &InstrumentHandler{instrumentSvc: instrumentSvc}
}

// registerInstrumentRequest is the JSON request body for POST /instruments.
type registerInstrumentRequest struct {
	InstrumentID   string  `json:"instrument_id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	ReferencePrice float64 `json:"reference_price"`
	Active         *bool   `json:"active"`
}

// updateInstrumentRequest is the JSON request body for PATCH /instruments/{instrument_id}.
type updateInstrumentRequest struct {
	Active         *bool    `json:"active"`
	ReferencePrice *float64 `json:"reference_price"`
}

type instrumentResponse struct {
	InstrumentID   string  `json:"instrument_id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	ReferencePrice float64 `json:"reference_price"`
	Active         bool    `json:"active"`
	UpdatedAt      string  `json:"updated_at"`
}

type instrumentListResponse struct {
	Instruments []instrumentResponse `json:"instruments"`
}

type restingOrdersResponse struct {
	InstrumentID string                 `json:"instrument_id"`
	Side         string                 `json:"side"`
	Orders       []orderSummaryResponse `json:"orders"`
}

type tradeListResponse struct {
	InstrumentID string          `json:"instrument_id"`
	Trades       []tradeResponse `json:"trades"`
}

// priceResponse is the JSON response for GET /instruments/{instrument_id}/price.
type priceResponse struct {
	InstrumentID   string   `json:"instrument_id"`
	ReferencePrice float64  `json:"reference_price"`
	LastPrice      *float64 `json:"last_price"`
	Window         string   `json:"window"`
	TradesInWindow int      `json:"trades_in_window"`
	LastTradeAt    *string  `json:"last_trade_at"`
}

// priceLevelResponse is a single aggregated level in the book response.
type priceLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
}

// bookResponse is the JSON response for GET /instruments/{instrument_id}/book.
type bookResponse struct {
	InstrumentID string               `json:"instrument_id"`
	Bids         []priceLevelResponse `json:"bids"`
	Asks         []priceLevelResponse `json:"asks"`
	Spread       *float64             `json:"spread"`
	BidCount     int                  `json:"bid_count"`
	AskCount     int                  `json:"ask_count"`
	SnapshotAt   string               `json:"snapshot_at"`
}

// quoteLevelResponse is a single level consumed by the quote.
type quoteLevelResponse struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// quoteResponse is the JSON response for GET /instruments/{instrument_id}/quote.
type quoteResponse struct {
	InstrumentID      string               `json:"instrument_id"`
	Side              string               `json:"side"`
	QuantityRequested int64                `json:"quantity_requested"`
	QuantityAvailable int64                `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *float64             `json:"estimated_average_price"`
	EstimatedTotal    *float64             `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// Register handles POST /instruments.
func (h *InstrumentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerInstrumentRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	in, err := h.instrumentSvc.Register(r.Context(), service.RegisterInstrumentRequest{
		InstrumentID:   req.InstrumentID,
		Symbol:         req.Symbol,
		Name:           req.Name,
		ReferencePrice: req.ReferencePrice,
		Active:         req.Active,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildInstrumentResponse(in))
}

// Update handles PATCH /instruments/{instrument_id}.
func (h *InstrumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateInstrumentRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	in, err := h.instrumentSvc.Update(r.Context(), chi.URLParam(r, "instrument_id"), service.UpdateInstrumentRequest{
		Active:         req.Active,
		ReferencePrice: req.ReferencePrice,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildInstrumentResponse(in))
}

// Get handles GET /instruments/{instrument_id}.
func (h *InstrumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	in, err := h.instrumentSvc.Get(chi.URLParam(r, "instrument_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildInstrumentResponse(in))
}

// List handles GET /instruments.
func (h *InstrumentHandler) List(w http.ResponseWriter, _ *http.Request) {
	list := h.instrumentSvc.List()
	resp := instrumentListResponse{Instruments: make([]instrumentResponse, len(list))}
	for i, in := range list {
		resp.Instruments[i] = buildInstrumentResponse(in)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// RestingOrders handles GET /instruments/{instrument_id}/orders?side=.
func (h *InstrumentHandler) RestingOrders(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrument_id")

	side, err := domain.ParseOrderSide(r.URL.Query().Get("side"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	orders, err := h.instrumentSvc.RestingOrders(instrumentID, side)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	summaries := make([]orderSummaryResponse, len(orders))
	for i := range orders {
		summaries[i] = buildOrderSummary(&orders[i])
	}
	WriteJSON(w, http.StatusOK, restingOrdersResponse{
		InstrumentID: instrumentID,
		Side:         side.String(),
		Orders:       summaries,
	})
}

// RecentTrades handles GET /instruments/{instrument_id}/trades?limit=.
func (h *InstrumentHandler) RecentTrades(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrument_id")

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	trades, err := h.instrumentSvc.RecentTrades(instrumentID, limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, tradeListResponse{
		InstrumentID: instrumentID,
		Trades:       buildTradeResponses(trades),
	})
}

// GetPrice handles GET /instruments/{instrument_id}/price.
func (h *InstrumentHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	resp, err := h.instrumentSvc.GetPrice(chi.URLParam(r, "instrument_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		InstrumentID:   resp.InstrumentID,
		ReferencePrice: domain.CentsToDollars(resp.ReferencePrice),
		LastPrice:      dollarsPtr(resp.LastPrice),
		Window:         resp.Window,
		TradesInWindow: resp.TradesInWindow,
		LastTradeAt:    formatTimePtr(resp.LastTradeAt),
	})
}

// GetBook handles GET /instruments/{instrument_id}/book?depth=.
func (h *InstrumentHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
			return
		}
	}

	resp, err := h.instrumentSvc.GetBook(chi.URLParam(r, "instrument_id"), depth)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		InstrumentID: resp.InstrumentID,
		Bids:         buildPriceLevels(resp.Bids),
		Asks:         buildPriceLevels(resp.Asks),
		Spread:       dollarsPtr(resp.Spread),
		BidCount:     resp.BidCount,
		AskCount:     resp.AskCount,
		SnapshotAt:   formatTime(resp.SnapshotAt),
	})
}

// GetQuote handles GET /instruments/{instrument_id}/quote?side=&quantity=.
func (h *InstrumentHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	side, err := domain.ParseOrderSide(q.Get("side"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	qtyStr := q.Get("quantity")
	if qtyStr == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity query parameter is required")
		return
	}
	quantity, err := strconv.ParseInt(qtyStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a valid integer")
		return
	}

	resp, err := h.instrumentSvc.GetQuote(chi.URLParam(r, "instrument_id"), side, quantity)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	levels := make([]quoteLevelResponse, len(resp.PriceLevels))
	for i, pl := range resp.PriceLevels {
		levels[i] = quoteLevelResponse{
			Price:    domain.CentsToDollars(pl.Price),
			Quantity: pl.Quantity,
		}
	}

	WriteJSON(w, http.StatusOK, quoteResponse{
		InstrumentID:      resp.InstrumentID,
		Side:              resp.Side.String(),
		QuantityRequested: resp.QuantityRequested,
		QuantityAvailable: resp.QuantityAvailable,
		FullyFillable:     resp.FullyFillable,
		EstimatedAvgPrice: dollarsPtr(resp.EstimatedAvgPrice),
		EstimatedTotal:    dollarsPtr(resp.EstimatedTotal),
		PriceLevels:       levels,
		QuotedAt:          formatTime(resp.QuotedAt),
	})
}

func buildInstrumentResponse(in domain.Instrument) instrumentResponse {
	return instrumentResponse{
		InstrumentID:   in.InstrumentID,
		Symbol:         in.Symbol,
		Name:           in.Name,
		ReferencePrice: domain.CentsToDollars(in.ReferencePrice),
		Active:         in.Active,
		UpdatedAt:      formatTime(in.UpdatedAt),
	}
}

func buildPriceLevels(levels []engine.PriceLevel) []priceLevelResponse {
	result := make([]priceLevelResponse, len(levels))
	for i, pl := range levels {
		result[i] = priceLevelResponse{
			Price:         domain.CentsToDollars(pl.Price),
			TotalQuantity: pl.TotalQuantity,
			OrderCount:    pl.OrderCount,
		}
	}
	return result
}
