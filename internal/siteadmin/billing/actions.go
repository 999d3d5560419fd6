package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

// activeLookupLimit is two so that a customer with more than one active
// subscription is detected rather than silently picking the first.
const activeLookupLimit = 2

// CustomerResult is the outcome of CreateCustomer.
type CustomerResult struct {
	CustomerID     string `json:"customerId"`
	SubscriptionID string `json:"subscriptionId"`
}

// Cancel schedules the site's active subscription to end at period end and
// marks the site cancel-pending. The persisted status stays active until the
// provider sends customer.subscription.deleted.
func (r *Reconciler) Cancel(ctx context.Context, siteKey string) error {
	site, err := r.billableSite(ctx, siteKey)
	if err != nil {
		return err
	}

	subs, err := r.provider.ListSubscriptions(ctx, site.PaymentCustomerRef, StatusFilterActive, activeLookupLimit)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	if len(subs) != 1 {
		return ErrNoActiveSubscription
	}

	sub := subs[0]
	if !sub.CancelAtPeriodEnd {
		if err := r.provider.SetCancelAtPeriodEnd(ctx, sub.ID, true); err != nil {
			return fmt.Errorf("schedule cancellation: %w", err)
		}
	}
	if err := r.store.SetCancelPending(ctx, site.Key, true); err != nil {
		return fmt.Errorf("set cancel pending: %w", err)
	}

	logger := logging.FromContext(ctx)
	logger.Info().
		Str("site_key", site.Key).
		Str("subscription_id", sub.ID).
		Msg("Subscription scheduled for cancellation at period end")
	return nil
}

// Resume clears a scheduled cancellation. It requires exactly one active
// subscription with cancel_at_period_end set; anything else fails with
// ErrNoCancellationPending before any provider mutation.
func (r *Reconciler) Resume(ctx context.Context, siteKey string) error {
	site, err := r.billableSite(ctx, siteKey)
	if err != nil {
		return err
	}

	subs, err := r.provider.ListSubscriptions(ctx, site.PaymentCustomerRef, StatusFilterActive, activeLookupLimit)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	if len(subs) != 1 || !subs[0].CancelAtPeriodEnd {
		return ErrNoCancellationPending
	}

	sub := subs[0]
	if err := r.provider.SetCancelAtPeriodEnd(ctx, sub.ID, false); err != nil {
		return fmt.Errorf("clear scheduled cancellation: %w", err)
	}
	if err := r.store.SetCancelPending(ctx, site.Key, false); err != nil {
		return fmt.Errorf("clear cancel pending: %w", err)
	}

	logger := logging.FromContext(ctx)
	logger.Info().
		Str("site_key", site.Key).
		Str("subscription_id", sub.ID).
		Msg("Scheduled cancellation cleared")
	return nil
}

// StartCheckout creates a subscription checkout session on the default price
// for a site with a known customer and returns its URL.
func (r *Reconciler) StartCheckout(ctx context.Context, siteKey string) (string, error) {
	site, err := r.billableSite(ctx, siteKey)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(r.cfg.BaseURL, "/")
	checkoutURL, err := r.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerRef: site.PaymentCustomerRef,
		PriceID:     r.cfg.DefaultPriceID,
		SuccessURL:  base + "/sites?resume=success",
		CancelURL:   base + "/sites?resume=cancel",
		SiteKey:     site.Key,
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return checkoutURL, nil
}

// CreateCustomer creates a provider customer and a default-price subscription
// tagged with the site key. Nothing is persisted; the customer reference
// reaches the site record through the checkout webhook.
func (r *Reconciler) CreateCustomer(ctx context.Context, params CustomerParams) (*CustomerResult, error) {
	customerID, err := r.provider.CreateCustomer(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	metadata := map[string]string{}
	if params.SiteKey != "" {
		metadata["siteKey"] = params.SiteKey
	}
	subscriptionID, err := r.provider.CreateSubscription(ctx, customerID, r.cfg.DefaultPriceID, metadata)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &CustomerResult{CustomerID: customerID, SubscriptionID: subscriptionID}, nil
}

func (r *Reconciler) billableSite(ctx context.Context, siteKey string) (*registry.Site, error) {
	site, err := r.store.Get(ctx, siteKey)
	if err != nil {
		return nil, fmt.Errorf("load site: %w", err)
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}
	if site.PaymentCustomerRef == "" {
		return nil, ErrNoCustomer
	}
	return site, nil
}
