package siteadmin

import (
	"context"
	"time"

	"github.com/pageit/pageit-admin/internal/siteadmin/admin"
	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	"github.com/rs/zerolog/log"
)

const subscriptionStatusMetricsInterval = 30 * time.Second

type statusCounter interface {
	CountBySubscriptionStatus(ctx context.Context) (map[registry.SubscriptionStatus]int, error)
}

func runSubscriptionStatusMetrics(ctx context.Context, reg statusCounter) {
	ticker := time.NewTicker(subscriptionStatusMetricsInterval)
	defer ticker.Stop()

	// Prime once even if ctx is already done so /metrics is never empty.
	updateSubscriptionStatusGauges(context.WithoutCancel(ctx), reg)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSubscriptionStatusGauges(ctx, reg)
		}
	}
}

func updateSubscriptionStatusGauges(ctx context.Context, reg statusCounter) {
	counts, err := reg.CountBySubscriptionStatus(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update subscription status metrics")
		return
	}

	known := []registry.SubscriptionStatus{
		registry.SubscriptionStatusUnset,
		registry.SubscriptionStatusActive,
		registry.SubscriptionStatusUnpaid,
		registry.SubscriptionStatusCanceled,
	}

	seen := make(map[registry.SubscriptionStatus]struct{}, len(known))
	for _, status := range known {
		seen[status] = struct{}{}
		adminmetrics.SitesBySubscriptionStatus.WithLabelValues(admin.StatusLabel(status)).Set(float64(counts[status]))
	}

	for status, c := range counts {
		if _, ok := seen[status]; ok {
			continue
		}
		adminmetrics.SitesBySubscriptionStatus.WithLabelValues(admin.StatusLabel(status)).Set(float64(c))
	}
}
