package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/service"
)

const (
	accountHeader = "X-Account-Id"
	ifMatchHeader = "If-Match"
	etagHeader    = "ETag"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders. The account
// comes from the X-Account-Id header.
type placeOrderRequest struct {
	InstrumentID string   `json:"instrument_id"`
	Side         string   `json:"side"`
	Type         string   `json:"type"`
	Price        *float64 `json:"price"`
	Quantity     int64    `json:"quantity"`
}

// orderResponse is the JSON response for a single order. Market orders
// carry no price.
type orderResponse struct {
	OrderID           string          `json:"order_id"`
	AccountID         string          `json:"account_id"`
	InstrumentID      string          `json:"instrument_id"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	Price             *float64        `json:"price,omitempty"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
	RejectReason      string          `json:"reject_reason,omitempty"`
	Version           uint64          `json:"version"`
	AveragePrice      *float64        `json:"average_price"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	Trades            []tradeResponse `json:"trades"`
}

// orderSummaryResponse is a single order in listings (summary view, no trades).
type orderSummaryResponse struct {
	OrderID           string   `json:"order_id"`
	InstrumentID      string   `json:"instrument_id"`
	Side              string   `json:"side"`
	Type              string   `json:"type"`
	Price             *float64 `json:"price,omitempty"`
	Quantity          int64    `json:"quantity"`
	FilledQuantity    int64    `json:"filled_quantity"`
	RemainingQuantity int64    `json:"remaining_quantity"`
	CancelledQuantity int64    `json:"cancelled_quantity"`
	Status            string   `json:"status"`
	Version           uint64   `json:"version"`
	AveragePrice      *float64 `json:"average_price"`
	CreatedAt         string   `json:"created_at"`
}

// tradeResponse is a single trade in order and trade listings.
type tradeResponse struct {
	TradeID         string  `json:"trade_id"`
	InstrumentID    string  `json:"instrument_id"`
	BuyerAccountID  string  `json:"buyer_account_id"`
	SellerAccountID string  `json:"seller_account_id"`
	BuyOrderID      string  `json:"buy_order_id"`
	SellOrderID     string  `json:"sell_order_id"`
	Price           float64 `json:"price"`
	Quantity        int64   `json:"quantity"`
	BuyerFee        float64 `json:"buyer_fee"`
	SellerFee       float64 `json:"seller_fee"`
	Sequence        uint64  `json:"sequence"`
	ExecutedAt      string  `json:"executed_at"`
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side, err := domain.ParseOrderSide(req.Side)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	kind, err := domain.ParseOrderKind(req.Type)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	exec, err := h.orderSvc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		AccountID:    accountID,
		InstrumentID: req.InstrumentID,
		Side:         side,
		Kind:         kind,
		Price:        req.Price,
		Quantity:     req.Quantity,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	w.Header().Set(etagHeader, etag(exec.Order.Version))
	WriteJSON(w, http.StatusCreated, buildOrderResponse(&exec.Order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	w.Header().Set(etagHeader, etag(order.Version))
	WriteJSON(w, http.StatusOK, buildOrderResponse(&order))
}

// CancelOrder handles DELETE /orders/{order_id}. An If-Match header pins
// the order version the caller last saw.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var expected uint64
	if v := r.Header.Get(ifMatchHeader); v != "" {
		var err error
		expected, err = parseETag(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}

	order, err := h.orderSvc.CancelOrder(chi.URLParam(r, "order_id"), accountID, expected)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	w.Header().Set(etagHeader, etag(order.Version))
	WriteJSON(w, http.StatusOK, buildOrderResponse(&order))
}

// requireAccount reads the caller's account from the X-Account-Id header.
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := r.Header.Get(accountHeader)
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", accountHeader+" header is required")
		return "", false
	}
	return accountID, true
}

func etag(version uint64) string {
	return `"` + strconv.FormatUint(version, 10) + `"`
}

// parseETag accepts a quoted or bare version number.
func parseETag(v string) (uint64, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "W/")
	v = strings.Trim(v, `"`)
	version, err := strconv.ParseUint(v, 10, 64)
	if err != nil || version == 0 {
		return 0, errors.New("If-Match must be an order version")
	}
	return version, nil
}

func buildOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:           o.OrderID,
		AccountID:         o.AccountID,
		InstrumentID:      o.InstrumentID,
		Side:              o.Side.String(),
		Type:              o.Kind.String(),
		Price:             orderPrice(o),
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            o.Status.String(),
		RejectReason:      o.RejectReason,
		Version:           o.Version,
		AveragePrice:      averagePrice(o),
		CreatedAt:         formatTime(o.CreatedAt),
		UpdatedAt:         formatTime(o.UpdatedAt),
		Trades:            buildTradeResponses(o.Trades),
	}
}

func buildOrderSummary(o *domain.Order) orderSummaryResponse {
	return orderSummaryResponse{
		OrderID:           o.OrderID,
		InstrumentID:      o.InstrumentID,
		Side:              o.Side.String(),
		Type:              o.Kind.String(),
		Price:             orderPrice(o),
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            o.Status.String(),
		Version:           o.Version,
		AveragePrice:      averagePrice(o),
		CreatedAt:         formatTime(o.CreatedAt),
	}
}

func orderPrice(o *domain.Order) *float64 {
	if !o.Kind.RequiresPrice() {
		return nil
	}
	p := domain.CentsToDollars(o.Price)
	return &p
}

// averagePrice is present for all orders, null when no fills.
func averagePrice(o *domain.Order) *float64 {
	avg, ok := o.AveragePrice()
	if !ok {
		return nil
	}
	a := domain.CentsToDollars(avg)
	return &a
}

// buildTradeResponses converts domain trades to response trades.
func buildTradeResponses(trades []*domain.Trade) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TradeID:         t.TradeID,
			InstrumentID:    t.InstrumentID,
			BuyerAccountID:  t.BuyerAccountID,
			SellerAccountID: t.SellerAccountID,
			BuyOrderID:      t.BuyOrderID,
			SellOrderID:     t.SellOrderID,
			Price:           domain.CentsToDollars(t.Price),
			Quantity:        t.Quantity,
			BuyerFee:        domain.CentsToDollars(t.BuyerFee),
			SellerFee:       domain.CentsToDollars(t.SellerFee),
			Sequence:        t.Sequence,
			ExecutedAt:      formatTime(t.ExecutedAt),
		}
	}
	return result
}
