package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/efreitasn/tradecore/internal/service"
)

// Services bundles the application services the router exposes.
type Services struct {
	Accounts    *service.AccountService
	Orders      *service.OrderService
	Instruments *service.InstrumentService
	Webhooks    *service.WebhookService
}

// NewRouter creates a chi router with all routes registered, CORS, request
// logging, and Content-Type validation middleware. An empty corsOrigins
// allows any origin.
func NewRouter(svc Services, hub *Hub, corsOrigins []string, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", accountHeader, ifMatchHeader},
		ExposedHeaders: []string{etagHeader},
	}).Handler)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	accountH := NewAccountHandler(svc.Accounts, svc.Orders)
	orderH := NewOrderHandler(svc.Orders)
	instrumentH := NewInstrumentHandler(svc.Instruments)
	webhookH := NewWebhookHandler(svc.Webhooks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", accountH.Register)
		r.Get("/{account_id}", accountH.Get)
		r.Get("/{account_id}/orders", accountH.ListOrders)
		r.Get("/{account_id}/positions", accountH.ListPositions)
		r.Get("/{account_id}/positions/{instrument_id}", accountH.GetPosition)
	})

	// Order routes.
	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Instrument routes.
	r.Route("/instruments", func(r chi.Router) {
		r.Post("/", instrumentH.Register)
		r.Get("/", instrumentH.List)
		r.Get("/{instrument_id}", instrumentH.Get)
		r.Patch("/{instrument_id}", instrumentH.Update)
		r.Get("/{instrument_id}/orders", instrumentH.RestingOrders)
		r.Get("/{instrument_id}/book", instrumentH.GetBook)
		r.Get("/{instrument_id}/trades", instrumentH.RecentTrades)
		r.Get("/{instrument_id}/quote", instrumentH.GetQuote)
		r.Get("/{instrument_id}/price", instrumentH.GetPrice)
	})

	// Webhook routes.
	r.Post("/webhooks", webhookH.Upsert)
	r.Get("/webhooks", webhookH.List)
	r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

	// Event stream.
	r.Get("/stream", hub.ServeStream)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.wroteHeader = true
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
