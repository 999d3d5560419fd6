package siteadmin

import (
	"net/http"
	"time"

	"github.com/pageit/pageit-admin/internal/siteadmin/admin"
	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	"github.com/pageit/pageit-admin/internal/siteadmin/registration"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	"github.com/pageit/pageit-admin/internal/siteadmin/sites"
	adminstripe "github.com/pageit/pageit-admin/internal/siteadmin/stripe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config       *Config
	Registry     *registry.SiteRegistry
	Reconciler   *billing.Reconciler
	Registration *registration.Service
	Limiter      *RateLimiter // webhook limiter; created from Config when nil
	Version      string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	adminAuth := func(next http.Handler) http.Handler {
		return admin.AdminKeyMiddleware(deps.Config.AdminKey, next)
	}

	mux.HandleFunc("GET /healthz", admin.HandleHealthz)
	mux.HandleFunc("GET /readyz", admin.HandleReadyz(deps.Registry))

	statusHandler := http.HandlerFunc(admin.HandleStatus(deps.Registry, deps.Version))
	metricsHandler := promhttp.Handler()
	if deps.Config.PublicMetrics {
		mux.Handle("GET /status", statusHandler)
		mux.Handle("GET /metrics", metricsHandler)
	} else {
		mux.Handle("GET /status", adminAuth(statusHandler))
		mux.Handle("GET /metrics", adminAuth(metricsHandler))
	}

	// Stripe webhook (signature-authenticated)
	webhookHandler := adminstripe.NewWebhookHandler(deps.Config.StripeWebhookSecret, deps.Reconciler)
	webhookLimiter := deps.Limiter
	if webhookLimiter == nil {
		webhookLimiter = NewRateLimiter(deps.Config.WebhookRateLimit, time.Minute)
	}
	mux.Handle("/api/webhooks/stripe", webhookLimiter.Middleware(webhookHandler))

	// Billing actions
	mux.Handle("GET /api/stripe/check-subscription", adminAuth(sites.HandleCheckSubscription(deps.Reconciler)))
	mux.Handle("POST /api/stripe/resume-subscription", adminAuth(sites.HandleResumeSubscription(deps.Reconciler)))
	mux.Handle("POST /api/stripe/cancel-subscription", adminAuth(sites.HandleCancelSubscription(deps.Reconciler)))
	mux.Handle("POST /api/stripe/create-subscription", adminAuth(sites.HandleCreateSubscription(deps.Reconciler)))
	mux.Handle("POST /api/stripe/customers", adminAuth(sites.HandleCreateCustomer(deps.Reconciler)))

	// Sites
	mux.Handle("POST /api/register", adminAuth(registration.HandleRegister(deps.Registration)))
	mux.Handle("GET /api/sites", adminAuth(sites.HandleListSites(deps.Registry, deps.Reconciler)))
	mux.Handle("GET /api/sites/{siteKey}", adminAuth(sites.HandleGetSite(deps.Registry)))
	mux.Handle("PATCH /api/sites/{siteKey}", adminAuth(sites.HandleUpdateSite(deps.Registry)))

	mux.Handle("GET /api/admin/webhook-events", adminAuth(admin.HandleListWebhookEvents(deps.Registry)))
}
