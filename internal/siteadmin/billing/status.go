package billing

import (
	"context"
	"fmt"

	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
)

// statusLookupLimit is how many recent subscriptions a live check inspects.
const statusLookupLimit = 5

// ResolveStatus answers the live display status of a site straight from the
// provider. The result is never persisted and does not read the stored
// subscriptionStatus. Free-plan sites and sites without a customer resolve to
// none without a provider call.
func (r *Reconciler) ResolveStatus(ctx context.Context, siteKey string) (DisplayStatus, error) {
	site, err := r.store.Get(ctx, siteKey)
	if err != nil {
		return DisplayStatusNone, fmt.Errorf("load site: %w", err)
	}
	if site == nil || site.FreePlan() || site.PaymentCustomerRef == "" {
		adminmetrics.StatusChecksTotal.WithLabelValues(string(DisplayStatusNone)).Inc()
		return DisplayStatusNone, nil
	}

	subs, err := r.provider.ListSubscriptions(ctx, site.PaymentCustomerRef, StatusFilterAll, statusLookupLimit)
	if err != nil {
		return DisplayStatusNone, fmt.Errorf("list subscriptions: %w", err)
	}

	status := DeriveDisplayStatus(subs)
	adminmetrics.StatusChecksTotal.WithLabelValues(string(status)).Inc()
	return status, nil
}

// DeriveDisplayStatus folds subscriptions into a display status. Any active
// or trialing subscription wins over any number of canceled ones, regardless
// of recency.
func DeriveDisplayStatus(subs []Subscription) DisplayStatus {
	hasCanceled := false
	for _, s := range subs {
		switch s.Status {
		case SubscriptionActive, SubscriptionTrialing:
			return DisplayStatusActive
		case SubscriptionCanceled:
			hasCanceled = true
		}
	}
	if hasCanceled {
		return DisplayStatusCanceled
	}
	return DisplayStatusNone
}
