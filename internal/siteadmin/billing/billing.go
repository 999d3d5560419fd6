// Package billing reconciles each site's mirrored subscription status with
// Stripe. Two signals feed it: webhook events, which are persisted as
// absolute overwrites, and live status checks, which are derived on demand
// and never written back.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

var (
	ErrSiteNotFound          = errors.New("site not found")
	ErrNoCustomer            = errors.New("customer not found")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrNoCancellationPending = errors.New("no cancelPending subscription")
)

// EventType is a Stripe event type tag.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
)

// Event is a signature-verified provider event reduced to what the
// reconciler needs.
type Event struct {
	ID          string
	Type        EventType
	Created     time.Time
	CustomerRef string
	// SiteKey is only carried by checkout sessions (metadata.siteKey).
	SiteKey string
}

// Outcome describes what applying an event did.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFailed     Outcome = "failed"
)

// DisplayStatus is the live, non-persisted status answered by status checks.
type DisplayStatus string

const (
	DisplayStatusActive   DisplayStatus = "active"
	DisplayStatusCanceled DisplayStatus = "canceled"
	DisplayStatusNone     DisplayStatus = "none"
)

// Provider subscription statuses and list filters.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionCanceled = "canceled"

	StatusFilterAll    = "all"
	StatusFilterActive = "active"
)

// Subscription is the slice of a provider subscription the reconciler reads.
type Subscription struct {
	ID                string
	Status            string
	CancelAtPeriodEnd bool
}

// CheckoutParams describes a subscription checkout session.
type CheckoutParams struct {
	CustomerRef string
	PriceID     string
	SuccessURL  string
	CancelURL   string
	SiteKey     string
}

// CustomerParams describes a new provider customer.
type CustomerParams struct {
	Email   string
	Name    string
	SiteKey string
}

// Provider is the payment provider surface used by the reconciler.
type Provider interface {
	ListSubscriptions(ctx context.Context, customerRef, status string, limit int) ([]Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateSubscription(ctx context.Context, customerRef, priceID string, metadata map[string]string) (string, error)
}

// Store is the site record surface used by the reconciler. Every mutation is
// a field-level overwrite and returns registry.ErrNotFound when no site
// matches.
type Store interface {
	Get(ctx context.Context, key string) (*registry.Site, error)
	FindByCustomerRef(ctx context.Context, ref string) (*registry.Site, error)
	MarkCheckoutCompleted(ctx context.Context, key, customerRef string) error
	SetSubscriptionStatus(ctx context.Context, key string, status registry.SubscriptionStatus) error
	SetCancelPending(ctx context.Context, key string, pending bool) error
}

// EventLog records webhook events for auditing. Stores that implement it get
// an audit trail for free.
type EventLog interface {
	RecordWebhookEvent(ctx context.Context, e *registry.WebhookEvent) error
}
