package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/event"
	"github.com/efreitasn/tradecore/internal/store"
)

func newTestWebhookService(t *testing.T) (*WebhookService, *store.AccountStore) {
	t.Helper()
	accounts := store.NewAccountStore()
	for _, id := range []string{"acct-1", "acct-2"} {
		if err := accounts.Create(&domain.Account{AccountID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhookService(store.NewWebhookStore(), accounts, 5*time.Second, logger), accounts
}

// --- Upsert / List / Delete ---

func TestUpsert_NewSubscriptions(t *testing.T) {
	svc, _ := newTestWebhookService(t)

	webhooks, created, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-1",
		URL:       "https://example.com/hooks",
		Events:    []string{"trade.executed", "order.updated", "trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for new subscriptions")
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2 after dedup", len(webhooks))
	}
	if webhooks[0].Event != "trade.executed" || webhooks[1].Event != "order.updated" {
		t.Errorf("got events %q, %q", webhooks[0].Event, webhooks[1].Event)
	}
}

func TestUpsert_UpdateKeepsID(t *testing.T) {
	svc, _ := newTestWebhookService(t)

	first, _, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-1", URL: "https://example.com/old", Events: []string{"position.updated"},
	})
	if err != nil {
		t.Fatal(err)
	}
	second, created, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-1", URL: "https://example.com/new", Events: []string{"position.updated"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected created=false when updating")
	}
	if second[0].WebhookID != first[0].WebhookID {
		t.Error("webhook_id must be stable across updates")
	}
	if second[0].URL != "https://example.com/new" {
		t.Errorf("got URL %q", second[0].URL)
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc, _ := newTestWebhookService(t)

	tests := []struct {
		name string
		req  UpsertWebhookRequest
	}{
		{"missing url", UpsertWebhookRequest{AccountID: "acct-1", Events: []string{"order.updated"}}},
		{"http url", UpsertWebhookRequest{AccountID: "acct-1", URL: "http://example.com", Events: []string{"order.updated"}}},
		{"relative url", UpsertWebhookRequest{AccountID: "acct-1", URL: "/hooks", Events: []string{"order.updated"}}},
		{"long url", UpsertWebhookRequest{AccountID: "acct-1", URL: "https://example.com/" + strings.Repeat("a", 2048), Events: []string{"order.updated"}}},
		{"no events", UpsertWebhookRequest{AccountID: "acct-1", URL: "https://example.com"}},
		{"unknown event", UpsertWebhookRequest{AccountID: "acct-1", URL: "https://example.com", Events: []string{"order.expired"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Upsert(tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, _, err := svc.Upsert(UpsertWebhookRequest{AccountID: "ghost", URL: "https://example.com", Events: []string{"order.updated"}})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newTestWebhookService(t)
	hooks, _, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-1", URL: "https://example.com", Events: []string{"trade.executed", "order.updated"},
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := svc.List("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Event != "order.updated" {
		t.Errorf("expected 2 webhooks sorted by event, got %+v", list)
	}
	if _, err := svc.List("ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	if err := svc.Delete("acct-2", hooks[0].WebhookID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("deleting another account's webhook: got %v", err)
	}
	if err := svc.Delete("acct-1", hooks[0].WebhookID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete("acct-1", hooks[0].WebhookID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("second delete: got %v", err)
	}
	list, _ = svc.List("acct-1")
	if len(list) != 1 {
		t.Errorf("expected 1 webhook left, got %d", len(list))
	}
}

// --- Delivery ---

type received struct {
	headers http.Header
	body    event.Envelope
}

func newReceiver(t *testing.T) (*httptest.Server, func() []received) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []received
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env event.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode delivery: %v", err)
		}
		mu.Lock()
		got = append(got, received{headers: r.Header.Clone(), body: env})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestHandle_DeliversToSubscribedRecipients(t *testing.T) {
	svc, _ := newTestWebhookService(t)
	srv, deliveries := newReceiver(t)
	svc.client = srv.Client()

	hooks, _, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-1", URL: srv.URL + "/hook", Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatal(err)
	}

	trade := &domain.Trade{
		TradeID: "t-1", InstrumentID: "X", BuyerAccountID: "acct-1", SellerAccountID: "acct-2",
		Price: 10050, Quantity: 3, ExecutedAt: time.Now(),
	}
	svc.Handle(event.TradeExecuted(trade))
	// Not subscribed to order.updated.
	svc.Handle(event.OrderUpdated(domain.Order{OrderID: "o-1", AccountID: "acct-1", UpdatedAt: time.Now()}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	got := deliveries()
	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(got))
	}
	h := got[0].headers
	if h.Get("X-Event-Type") != "trade.executed" || h.Get("X-Webhook-Id") != hooks[0].WebhookID || h.Get("X-Delivery-Id") == "" {
		t.Errorf("unexpected headers %v", h)
	}
	if got[0].body.Event != "trade.executed" {
		t.Errorf("got event %q", got[0].body.Event)
	}
	data, ok := got[0].body.Data.(map[string]any)
	if !ok || data["trade_id"] != "t-1" || data["price"] != 100.5 {
		t.Errorf("unexpected data %v", got[0].body.Data)
	}
}

func TestHandle_FailedDeliveryIsDropped(t *testing.T) {
	svc, _ := newTestWebhookService(t)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	svc.client = srv.Client()

	if _, _, err := svc.Upsert(UpsertWebhookRequest{
		AccountID: "acct-2", URL: srv.URL, Events: []string{"order.updated"},
	}); err != nil {
		t.Fatal(err)
	}

	svc.Handle(event.OrderUpdated(domain.Order{OrderID: "o-1", AccountID: "acct-2", UpdatedAt: time.Now()}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Fatalf("delivery did not finish: %v", err)
	}
}
