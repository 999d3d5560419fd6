// Package sites serves the site list, site metadata and the per-site billing
// actions.
package sites

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/auditlog"
	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	"github.com/pageit/pageit-admin/internal/siteadmin/request"
	"golang.org/x/sync/errgroup"
)

// listConcurrency bounds the live status lookups fanned out by the site list.
const listConcurrency = 8

// Billing is the reconciler surface used by the handlers.
type Billing interface {
	ResolveStatus(ctx context.Context, siteKey string) (billing.DisplayStatus, error)
	Cancel(ctx context.Context, siteKey string) error
	Resume(ctx context.Context, siteKey string) error
	StartCheckout(ctx context.Context, siteKey string) (string, error)
	CreateCustomer(ctx context.Context, params billing.CustomerParams) (*billing.CustomerResult, error)
}

// Store is the site record surface used by the handlers.
type Store interface {
	List(ctx context.Context) ([]*registry.Site, error)
	Get(ctx context.Context, key string) (*registry.Site, error)
	Update(ctx context.Context, key string, u registry.SiteUpdate) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status billing.DisplayStatus `json:"status"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// HandleCheckSubscription answers the live subscription status of a site.
// Route: GET /api/stripe/check-subscription?siteKey=...
func HandleCheckSubscription(b Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey := strings.TrimSpace(r.URL.Query().Get("siteKey"))
		if !request.ValidSiteKey(siteKey) {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: billing.DisplayStatusNone})
			return
		}

		status, err := b.ResolveStatus(r.Context(), siteKey)
		if err != nil {
			logger := logging.FromContext(r.Context())
			logger.Error().Err(err).Str("site_key", siteKey).Msg("Subscription status check failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: status})
	}
}

// HandleResumeSubscription clears a scheduled cancellation.
// Route: POST /api/stripe/resume-subscription
func HandleResumeSubscription(b Billing) http.HandlerFunc {
	return siteAction("site_resume", "Subscription resumed", func(ctx context.Context, siteKey string) (any, error) {
		if err := b.Resume(ctx, siteKey); err != nil {
			return nil, err
		}
		return successResponse{Success: true}, nil
	})
}

// HandleCancelSubscription schedules cancellation at period end.
// Route: POST /api/stripe/cancel-subscription
func HandleCancelSubscription(b Billing) http.HandlerFunc {
	return siteAction("site_cancel", "Subscription cancellation scheduled", func(ctx context.Context, siteKey string) (any, error) {
		if err := b.Cancel(ctx, siteKey); err != nil {
			return nil, err
		}
		return successResponse{Success: true}, nil
	})
}

// HandleCreateSubscription starts a checkout session for a site.
// Route: POST /api/stripe/create-subscription
func HandleCreateSubscription(b Billing) http.HandlerFunc {
	return siteAction("site_checkout", "Checkout session created", func(ctx context.Context, siteKey string) (any, error) {
		url, err := b.StartCheckout(ctx, siteKey)
		if err != nil {
			return nil, err
		}
		return checkoutResponse{URL: url}, nil
	})
}

// siteAction wraps a billing action that takes a {"siteKey"} body.
func siteAction(event, successMsg string, run func(ctx context.Context, siteKey string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request.SiteKey
		if err := request.Decode(w, r, &req); err != nil {
			reason := "invalid_request"
			msg := "invalid request"
			if request.MissingField(err) != "" {
				reason = "missing_site_key"
				msg = "siteKey is required"
			}
			auditlog.Event(r, event, "failure").
				Err(err).
				Str("reason", reason).
				Msg("Billing action rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
			return
		}

		resp, err := run(r.Context(), req.SiteKey)
		if err != nil {
			status, msg, reason := billingError(err)
			auditlog.Event(r, event, "failure").
				Err(err).
				Str("site_key", req.SiteKey).
				Str("reason", reason).
				Msg("Billing action failed")
			writeJSON(w, status, errorResponse{Error: msg})
			return
		}

		auditlog.Event(r, event, "success").
			Str("site_key", req.SiteKey).
			Msg(successMsg)
		writeJSON(w, http.StatusOK, resp)
	}
}

type createCustomerRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required,max=200"`
	SiteKey string `json:"siteKey" validate:"omitempty,sitekey"`
}

// HandleCreateCustomer creates a Stripe customer with a default subscription.
// Nothing is persisted.
// Route: POST /api/stripe/customers
func HandleCreateCustomer(b Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCustomerRequest
		if err := request.Decode(w, r, &req); err != nil {
			auditlog.Event(r, "stripe_customer_create", "failure").
				Err(err).
				Str("reason", "invalid_request").
				Msg("Customer creation rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
			return
		}

		res, err := b.CreateCustomer(r.Context(), billing.CustomerParams{
			Email:   strings.TrimSpace(req.Email),
			Name:    strings.TrimSpace(req.Name),
			SiteKey: req.SiteKey,
		})
		if err != nil {
			auditlog.Event(r, "stripe_customer_create", "failure").
				Err(err).
				Str("site_key", req.SiteKey).
				Str("reason", "provider_error").
				Msg("Customer creation failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Stripe customer creation failed"})
			return
		}

		auditlog.Event(r, "stripe_customer_create", "success").
			Str("site_key", req.SiteKey).
			Str("customer_id", res.CustomerID).
			Str("subscription_id", res.SubscriptionID).
			Msg("Stripe customer created")
		writeJSON(w, http.StatusOK, res)
	}
}

// siteView is a site record plus its live payment status.
type siteView struct {
	*registry.Site
	PaymentStatus billing.DisplayStatus `json:"paymentStatus"`
}

// HandleListSites lists every site with its persisted subscription status and
// the live payment status. A failed live lookup degrades that site to none.
// Route: GET /api/sites
func HandleListSites(store Store, b Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		list, err := store.List(ctx)
		if err != nil {
			logger := logging.FromContext(ctx)
			logger.Error().Err(err).Msg("List sites failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			return
		}

		views := make([]siteView, len(list))
		var g errgroup.Group
		g.SetLimit(listConcurrency)
		for i, site := range list {
			views[i] = siteView{Site: site, PaymentStatus: billing.DisplayStatusNone}
			g.Go(func() error {
				status, err := b.ResolveStatus(ctx, site.Key)
				if err != nil {
					logger := logging.FromContext(ctx)
					logger.Warn().Err(err).Str("site_key", site.Key).Msg("Live status lookup failed")
					return nil
				}
				views[i].PaymentStatus = status
				return nil
			})
		}
		_ = g.Wait()

		writeJSON(w, http.StatusOK, views)
	}
}

// HandleGetSite returns one site record.
// Route: GET /api/sites/{siteKey}
func HandleGetSite(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey := strings.TrimSpace(r.PathValue("siteKey"))
		site, err := store.Get(r.Context(), siteKey)
		if err != nil {
			logger := logging.FromContext(r.Context())
			logger.Error().Err(err).Str("site_key", siteKey).Msg("Get site failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			return
		}
		if site == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "site not found"})
			return
		}
		writeJSON(w, http.StatusOK, site)
	}
}

func billingError(err error) (status int, msg, reason string) {
	switch {
	case errors.Is(err, billing.ErrSiteNotFound), errors.Is(err, billing.ErrNoCustomer):
		return http.StatusNotFound, "Customer not found", "customer_not_found"
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return http.StatusBadRequest, "No active subscription", "no_active_subscription"
	case errors.Is(err, billing.ErrNoCancellationPending):
		return http.StatusBadRequest, "No cancelPending subscription", "no_cancel_pending"
	default:
		return http.StatusInternalServerError, "Internal Server Error", "provider_or_store_error"
	}
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromContext(context.Background())
		logger.Error().Err(err).Int("status", status).Msg("siteadmin.sites: encode response")
	}
}
