package sites

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pageit/pageit-admin/internal/siteadmin/auditlog"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	"github.com/pageit/pageit-admin/internal/siteadmin/request"
	"github.com/pageit/pageit-admin/internal/siteadmin/stripe"
)

type updateSiteRequest struct {
	SiteName           *string `json:"siteName" validate:"omitempty,max=200"`
	OwnerName          *string `json:"ownerName" validate:"omitempty,max=200"`
	OwnerAddress       *string `json:"ownerAddress" validate:"omitempty,max=500"`
	OwnerPhone         *string `json:"ownerPhone" validate:"omitempty,max=50"`
	HomepageURL        *string `json:"homepageUrl" validate:"omitempty,url"`
	IsFreePlan         *bool   `json:"isFreePlan"`
	PaymentCustomerRef *string `json:"paymentCustomerRef"`
}

func (req updateSiteRequest) toUpdate() registry.SiteUpdate {
	return registry.SiteUpdate{
		SiteName:           trimmed(req.SiteName),
		OwnerName:          trimmed(req.OwnerName),
		OwnerAddress:       trimmed(req.OwnerAddress),
		OwnerPhone:         trimmed(req.OwnerPhone),
		HomepageURL:        trimmed(req.HomepageURL),
		IsFreePlan:         req.IsFreePlan,
		PaymentCustomerRef: trimmed(req.PaymentCustomerRef),
	}
}

// HandleUpdateSite applies a partial metadata update. isFreePlan and
// paymentCustomerRef are administrative overwrites of billing linkage.
// Route: PATCH /api/sites/{siteKey}
func HandleUpdateSite(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey := strings.TrimSpace(r.PathValue("siteKey"))

		var req updateSiteRequest
		if err := request.Decode(w, r, &req); err != nil {
			auditlog.Event(r, "site_update", "failure").
				Err(err).
				Str("site_key", siteKey).
				Str("reason", "invalid_request").
				Msg("Site update rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
			return
		}

		update := req.toUpdate()
		if update.Empty() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no fields to update"})
			return
		}
		if ref := update.PaymentCustomerRef; ref != nil && *ref != "" && !stripe.IsSafeStripeID(*ref) {
			auditlog.Event(r, "site_update", "failure").
				Str("site_key", siteKey).
				Str("reason", "invalid_customer_ref").
				Msg("Site update rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid paymentCustomerRef"})
			return
		}

		if err := store.Update(r.Context(), siteKey, update); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "site not found"})
				return
			}
			auditlog.Event(r, "site_update", "failure").
				Err(err).
				Str("site_key", siteKey).
				Str("reason", "store_error").
				Msg("Site update failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			return
		}

		site, err := store.Get(r.Context(), siteKey)
		if err != nil || site == nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
			return
		}

		e := auditlog.Event(r, "site_update", "success").Str("site_key", siteKey)
		if update.IsFreePlan != nil {
			e = e.Bool("is_free_plan", *update.IsFreePlan)
		}
		if update.PaymentCustomerRef != nil {
			e = e.Str("payment_customer_ref", *update.PaymentCustomerRef)
		}
		e.Msg("Site updated")
		writeJSON(w, http.StatusOK, site)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
