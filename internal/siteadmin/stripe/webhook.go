package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// Applier applies a verified event to the site records.
type Applier interface {
	Apply(ctx context.Context, ev billing.Event) (billing.Outcome, error)
}

// WebhookHandler verifies Stripe webhook deliveries and hands them to the
// reconciler. Responses are plain text, which is all Stripe looks at.
type WebhookHandler struct {
	secret  string
	applier Applier
}

// NewWebhookHandler creates a Stripe webhook HTTP handler.
func NewWebhookHandler(secret string, applier Applier) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		applier: applier,
	}
}

// ServeHTTP verifies the Stripe signature and applies the event. Nothing
// touches the store until the signature checks out.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		adminmetrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		adminmetrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeText(w, status, "Method Not Allowed")
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		writeText(w, status, "Webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeText(w, status, "Webhook Error")
		return
	}

	logger := logging.FromContext(r.Context())
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Stripe webhook signature verification failed")
		status = http.StatusBadRequest
		writeText(w, status, "Webhook Error")
		return
	}
	eventType = string(event.Type)

	ev, err := toBillingEvent(&event)
	if err != nil {
		logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Stripe webhook payload could not be decoded")
		status = http.StatusInternalServerError
		writeText(w, status, "Internal Server Error")
		return
	}

	if _, err := h.applier.Apply(r.Context(), ev); err != nil {
		logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Stripe webhook processing failed")
		status = http.StatusInternalServerError
		writeText(w, status, "Internal Server Error")
		return
	}

	writeText(w, http.StatusOK, "OK")
}

// toBillingEvent extracts the customer and site key from the event object.
// Unhandled types are passed through with only ID and type set.
func toBillingEvent(event *stripelib.Event) (billing.Event, error) {
	ev := billing.Event{
		ID:   event.ID,
		Type: billing.EventType(event.Type),
	}
	if event.Created > 0 {
		ev.Created = time.Unix(event.Created, 0).UTC()
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch ev.Type {
	case billing.EventCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return ev, fmt.Errorf("decode checkout.session: %w", err)
		}
		ev.CustomerRef = session.Customer.String()
		ev.SiteKey = strings.TrimSpace(session.Metadata["siteKey"])

	case billing.EventInvoicePaid, billing.EventInvoicePaymentFailed:
		var inv Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return ev, fmt.Errorf("decode invoice: %w", err)
		}
		ev.CustomerRef = inv.Customer.String()

	case billing.EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return ev, fmt.Errorf("decode subscription: %w", err)
		}
		ev.CustomerRef = sub.Customer.String()
	}
	return ev, nil
}

// CheckoutSession is a minimal representation of a Stripe checkout.session event.
type CheckoutSession struct {
	ID       string            `json:"id"`
	Mode     string            `json:"mode"`
	Customer expandableID      `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// Invoice is a minimal representation of a Stripe invoice event.
type Invoice struct {
	ID       string       `json:"id"`
	Customer expandableID `json:"customer"`
	Status   string       `json:"status"`
}

// Subscription is a minimal representation of a Stripe subscription event.
type Subscription struct {
	ID                string       `json:"id"`
	Customer          expandableID `json:"customer"`
	Status            string       `json:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end"`
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
