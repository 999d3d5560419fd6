// Package admin serves probes, aggregate status and operator endpoints.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

// Registry is the store surface needed by the probes and status endpoint.
type Registry interface {
	Ping(ctx context.Context) error
	CountBySubscriptionStatus(ctx context.Context) (map[registry.SubscriptionStatus]int, error)
}

type statusResponse struct {
	Version              string         `json:"version"`
	TotalSites           int            `json:"total_sites"`
	BySubscriptionStatus map[string]int `json:"by_subscription_status"`
}

// HandleHealthz returns 200 "ok" unconditionally (liveness probe).
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz returns a handler that checks database connectivity (readiness probe).
func HandleReadyz(reg Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if reg == nil || reg.Ping(r.Context()) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// HandleStatus returns a handler that reports persisted subscription status
// counts. The counts reflect webhook-applied state, not live provider state.
func HandleStatus(reg Registry, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := reg.CountBySubscriptionStatus(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		byStatus := make(map[string]int, len(counts))
		total := 0
		for status, c := range counts {
			label := StatusLabel(status)
			byStatus[label] += c
			total += c
			adminmetrics.SitesBySubscriptionStatus.WithLabelValues(label).Set(float64(byStatus[label]))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(statusResponse{
			Version:              version,
			TotalSites:           total,
			BySubscriptionStatus: byStatus,
		})
	}
}

// StatusLabel maps a persisted status to a metrics/report label. Sites no
// webhook has touched yet report as "unset".
func StatusLabel(s registry.SubscriptionStatus) string {
	if s == registry.SubscriptionStatusUnset {
		return "unset"
	}
	return string(s)
}
