package registration

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pageit/pageit-admin/internal/siteadmin/auditlog"
	"github.com/pageit/pageit-admin/internal/siteadmin/request"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"omitempty,min=8,max=128"`
	SiteKey      string `json:"siteKey" validate:"required,sitekey"`
	SiteName     string `json:"siteName" validate:"max=200"`
	OwnerName    string `json:"ownerName" validate:"max=200"`
	OwnerAddress string `json:"ownerAddress" validate:"max=500"`
	OwnerPhone   string `json:"ownerPhone" validate:"max=50"`
	HomepageURL  string `json:"homepageUrl" validate:"omitempty,url"`
	IsFreePlan   *bool  `json:"isFreePlan"`
	Overwrite    bool   `json:"overwrite"`
}

// HandleRegister registers a site and its owner.
// Route: POST /api/register
func HandleRegister(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := request.Decode(w, r, &req); err != nil {
			msg := "invalid request"
			if field := request.MissingField(err); field != "" {
				msg = field + " is required"
			}
			auditlog.Event(r, "site_register", "failure").
				Err(err).
				Str("reason", "invalid_request").
				Msg("Site registration rejected")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
			return
		}

		res, err := svc.Register(r.Context(), Request{
			Email:        strings.TrimSpace(req.Email),
			Password:     req.Password,
			SiteKey:      req.SiteKey,
			SiteName:     req.SiteName,
			OwnerName:    req.OwnerName,
			OwnerAddress: req.OwnerAddress,
			OwnerPhone:   req.OwnerPhone,
			HomepageURL:  req.HomepageURL,
			IsFreePlan:   req.IsFreePlan,
			Overwrite:    req.Overwrite,
		})
		if err != nil {
			status, reason := http.StatusInternalServerError, "internal_error"
			msg := "Internal Server Error"
			switch {
			case errors.Is(err, ErrSiteExists):
				status, reason, msg = http.StatusConflict, "site_exists", ErrSiteExists.Error()
			case errors.Is(err, ErrEmailInUse):
				status, reason, msg = http.StatusConflict, "email_in_use", ErrEmailInUse.Error()
			}
			auditlog.Event(r, "site_register", "failure").
				Err(err).
				Str("site_key", req.SiteKey).
				Str("reason", reason).
				Msg("Site registration failed")
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}

		auditlog.Event(r, "site_register", "success").
			Str("site_key", res.SiteKey).
			Str("owner_id", res.OwnerID).
			Bool("overwrite", req.Overwrite).
			Msg("Site registered")
		writeJSON(w, http.StatusCreated, res)
	}
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("siteadmin.registration: encode response")
	}
}
