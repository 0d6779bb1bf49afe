package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{
		accountSvc: accountSvc,
		orderSvc:   orderSvc,
	}
}

// registerAccountRequest is the JSON request body for POST /accounts.
type registerAccountRequest struct {
	AccountID        string          `json:"account_id"`
	InitialCash      float64         `json:"initial_cash"`
	InitialPositions []positionInput `json:"initial_positions"`
}

// positionInput is a single opening position in the registration request.
type positionInput struct {
	InstrumentID string   `json:"instrument_id"`
	Quantity     int64    `json:"quantity"`
	AveragePrice *float64 `json:"average_price"`
}

// accountResponse is the JSON response for POST /accounts and GET /accounts/{account_id}.
type accountResponse struct {
	AccountID   string             `json:"account_id"`
	CashBalance float64            `json:"cash_balance"`
	Positions   []positionResponse `json:"positions"`
	CreatedAt   string             `json:"created_at"`
}

// positionResponse is a single position. Prices are in dollars.
type positionResponse struct {
	InstrumentID    string  `json:"instrument_id"`
	Quantity        int64   `json:"quantity"`
	AverageBuyPrice float64 `json:"average_buy_price"`
	TotalInvested   float64 `json:"total_invested"`
	UpdatedAt       string  `json:"updated_at"`
}

// positionListResponse is the JSON response for GET /accounts/{account_id}/positions.
type positionListResponse struct {
	AccountID string             `json:"account_id"`
	Positions []positionResponse `json:"positions"`
}

// orderListResponse is the JSON response for GET /accounts/{account_id}/orders.
type orderListResponse struct {
	Orders []orderSummaryResponse `json:"orders"`
	Total  int                    `json:"total"`
	Page   int                    `json:"page"`
	Limit  int                    `json:"limit"`
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	positions := make([]service.PositionInput, len(req.InitialPositions))
	for i, p := range req.InitialPositions {
		positions[i] = service.PositionInput{
			InstrumentID: p.InstrumentID,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
		}
	}

	acct, err := h.accountSvc.Register(r.Context(), service.RegisterAccountRequest{
		AccountID:        req.AccountID,
		InitialCash:      req.InitialCash,
		InitialPositions: positions,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildAccountResponse(acct))
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accountSvc.Get(chi.URLParam(r, "account_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildAccountResponse(acct))
}

// ListPositions handles GET /accounts/{account_id}/positions.
func (h *AccountHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	positions, err := h.accountSvc.Positions(accountID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, positionListResponse{
		AccountID: accountID,
		Positions: buildPositionResponses(positions),
	})
}

// GetPosition handles GET /accounts/{account_id}/positions/{instrument_id}.
func (h *AccountHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.accountSvc.Position(chi.URLParam(r, "account_id"), chi.URLParam(r, "instrument_id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildPositionResponse(pos))
}

// ListOrders handles GET /accounts/{account_id}/orders.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	q := r.URL.Query()

	filter := service.ListOrdersFilter{Page: 1, Limit: 20}

	if s := q.Get("status"); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		filter.Status = &status
	}

	if o := q.Get("open"); o != "" {
		open, err := strconv.ParseBool(o)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "open must be true or false")
			return
		}
		filter.OpenOnly = open
	}

	if p := q.Get("page"); p != "" {
		var err error
		filter.Page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	if l := q.Get("limit"); l != "" {
		var err error
		filter.Limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.orderSvc.ListAccountOrders(accountID, filter)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	summaries := make([]orderSummaryResponse, len(orders))
	for i := range orders {
		summaries[i] = buildOrderSummary(&orders[i])
	}

	WriteJSON(w, http.StatusOK, orderListResponse{
		Orders: summaries,
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
}

func buildAccountResponse(a domain.AccountSnapshot) accountResponse {
	return accountResponse{
		AccountID:   a.AccountID,
		CashBalance: domain.CentsToDollars(a.Cash),
		Positions:   buildPositionResponses(a.Positions),
		CreatedAt:   formatTime(a.CreatedAt),
	}
}

func buildPositionResponses(positions []domain.Position) []positionResponse {
	result := make([]positionResponse, len(positions))
	for i, p := range positions {
		result[i] = buildPositionResponse(p)
	}
	return result
}

func buildPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		InstrumentID:    p.InstrumentID,
		Quantity:        p.Quantity,
		AverageBuyPrice: domain.CentsDecimalToDollars(p.AverageBuyPrice),
		TotalInvested:   domain.CentsDecimalToDollars(p.TotalInvested),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
}
