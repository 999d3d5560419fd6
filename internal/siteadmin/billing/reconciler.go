package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

// Config holds the provider settings the reconciler needs for checkout.
type Config struct {
	DefaultPriceID string
	BaseURL        string // public base URL for checkout redirects
}

// Reconciler applies webhook events to site records and answers live status
// checks and cancel/resume actions against the provider.
type Reconciler struct {
	store    Store
	provider Provider
	events   EventLog
	cfg      Config
}

// NewReconciler creates a Reconciler. If store also implements EventLog,
// every webhook event is recorded to it.
func NewReconciler(store Store, provider Provider, cfg Config) *Reconciler {
	r := &Reconciler{
		store:    store,
		provider: provider,
		cfg:      cfg,
	}
	if l, ok := store.(EventLog); ok {
		r.events = l
	}
	return r
}

// Apply performs the field update an event maps to. Events that name no
// known site are a successful no-op. Updates are unconditional overwrites,
// so redelivery is harmless but an older event arriving late will win.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	outcome, siteKey, err := r.apply(ctx, ev)
	if err != nil {
		outcome = OutcomeFailed
	}
	adminmetrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), string(outcome)).Inc()
	r.record(ctx, ev, siteKey, outcome)
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, ev Event) (Outcome, string, error) {
	logger := logging.FromContext(ctx)

	switch ev.Type {
	case EventCheckoutCompleted:
		siteKey := strings.TrimSpace(ev.SiteKey)
		if siteKey == "" {
			logger.Info().
				Str("event_id", ev.ID).
				Msg("Checkout session has no siteKey metadata; ignoring")
			return OutcomeIgnored, "", nil
		}
		var err error
		if strings.TrimSpace(ev.CustomerRef) == "" {
			err = r.store.SetSubscriptionStatus(ctx, siteKey, registry.SubscriptionStatusActive)
		} else {
			err = r.store.MarkCheckoutCompleted(ctx, siteKey, ev.CustomerRef)
		}
		return r.result(ctx, ev, siteKey, err)

	case EventInvoicePaid:
		return r.setStatusByCustomer(ctx, ev, registry.SubscriptionStatusActive)

	case EventInvoicePaymentFailed:
		return r.setStatusByCustomer(ctx, ev, registry.SubscriptionStatusUnpaid)

	case EventSubscriptionDeleted:
		return r.setStatusByCustomer(ctx, ev, registry.SubscriptionStatusCanceled)

	default:
		logger.Info().
			Str("event_id", ev.ID).
			Str("type", string(ev.Type)).
			Msg("Unhandled Stripe event type")
		return OutcomeIgnored, "", nil
	}
}

func (r *Reconciler) setStatusByCustomer(ctx context.Context, ev Event, status registry.SubscriptionStatus) (Outcome, string, error) {
	site, err := r.store.FindByCustomerRef(ctx, ev.CustomerRef)
	if err != nil {
		return OutcomeFailed, "", fmt.Errorf("lookup site by customer: %w", err)
	}
	if site == nil {
		logger := logging.FromContext(ctx)
		logger.Info().
			Str("event_id", ev.ID).
			Str("type", string(ev.Type)).
			Str("customer", ev.CustomerRef).
			Msg("No site for Stripe customer; ignoring")
		return OutcomeUnresolved, "", nil
	}
	return r.result(ctx, ev, site.Key, r.store.SetSubscriptionStatus(ctx, site.Key, status))
}

func (r *Reconciler) result(ctx context.Context, ev Event, siteKey string, err error) (Outcome, string, error) {
	switch {
	case err == nil:
		logger := logging.FromContext(ctx)
		logger.Info().
			Str("event_id", ev.ID).
			Str("type", string(ev.Type)).
			Str("site_key", siteKey).
			Time("event_created", ev.Created).
			Msg("Applied Stripe event")
		return OutcomeApplied, siteKey, nil
	case errors.Is(err, registry.ErrNotFound):
		return OutcomeUnresolved, siteKey, nil
	default:
		return OutcomeFailed, siteKey, fmt.Errorf("apply %s to site %q: %w", ev.Type, siteKey, err)
	}
}

func (r *Reconciler) record(ctx context.Context, ev Event, siteKey string, outcome Outcome) {
	if r.events == nil {
		return
	}
	err := r.events.RecordWebhookEvent(ctx, &registry.WebhookEvent{
		EventID:      ev.ID,
		EventType:    string(ev.Type),
		CustomerRef:  ev.CustomerRef,
		SiteKey:      siteKey,
		Outcome:      string(outcome),
		EventCreated: ev.Created,
	})
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to record webhook event")
	}
}
