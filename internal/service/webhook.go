package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/event"
	"github.com/efreitasn/tradecore/internal/store"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	AccountID string
	URL       string
	Events    []string
}

// WebhookService handles webhook CRUD and delivers bus events to the
// subscribed accounts.
type WebhookService struct {
	store    *store.WebhookStore
	accounts *store.AccountStore
	client   *http.Client
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	accounts *store.AccountStore,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store:    webhookStore,
		accounts: accounts,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if !s.accounts.Exists(req.AccountID) {
		return nil, false, domain.ErrAccountNotFound
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[event.Kind]bool, len(req.Events))
	kinds := make([]event.Kind, 0, len(req.Events))
	for _, name := range req.Events {
		k, err := event.ParseKind(name)
		if err != nil {
			return nil, false, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(kinds))

	for _, k := range kinds {
		w, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.New().String(),
			AccountID: req.AccountID,
			Event:     k.String(),
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}

	return webhooks, anyCreated, nil
}

// List validates the account exists and returns all its webhook subscriptions.
func (s *WebhookService) List(accountID string) ([]*domain.Webhook, error) {
	if !s.accounts.Exists(accountID) {
		return nil, domain.ErrAccountNotFound
	}
	return s.store.ListByAccount(accountID), nil
}

// Delete removes one of the account's webhook subscriptions. Another
// account's webhook is reported as not found.
func (s *WebhookService) Delete(accountID, webhookID string) error {
	w, err := s.store.Get(webhookID)
	if err != nil {
		return err
	}
	if w.AccountID != accountID {
		return domain.ErrWebhookNotFound
	}
	return s.store.Delete(webhookID)
}

// Handle is the bus subscriber. Each recipient with a subscription for the
// event's kind gets one fire-and-forget delivery.
func (s *WebhookService) Handle(e event.Event) {
	name := e.Kind.String()
	var body []byte
	for _, accountID := range e.Recipients {
		wh := s.store.Lookup(accountID, name)
		if wh == nil {
			continue
		}
		if body == nil {
			var err error
			if body, err = json.Marshal(e.Payload()); err != nil {
				s.logger.Error("encode webhook payload",
					slog.String("event", name),
					slog.String("error", err.Error()),
				)
				return
			}
		}
		s.inflight.Add(1)
		go s.deliver(*wh, name, body)
	}
}

// Wait blocks until every delivery started so far has finished or ctx is done.
func (s *WebhookService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver sends the webhook payload via HTTP POST with the required headers.
// Failures are logged and not retried.
func (s *WebhookService) deliver(wh domain.Webhook, eventType string, body []byte) {
	defer s.inflight.Done()

	deliveryID := uuid.New().String()
	log := s.logger.With(
		slog.String("webhook_id", wh.WebhookID),
		slog.String("account_id", wh.AccountID),
		slog.String("event", eventType),
		slog.String("delivery_id", deliveryID),
	)

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		log.Warn("webhook request", slog.String("error", err.Error()))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn("webhook delivery failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn("webhook delivery rejected", slog.Int("status", resp.StatusCode))
		return
	}
	log.Debug("webhook delivered", slog.String("host", strings.ToLower(req.URL.Host)))
}
