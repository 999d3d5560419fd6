// Package registration creates site owners and their site records.
package registration

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/email"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
)

const (
	generatedPasswordLen = 10
	passwordAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrSiteExists is returned when the site key is taken and overwrite was not
// requested.
var ErrSiteExists = errors.New("site key already in use")

// ErrEmailInUse is returned when an owner with the email already exists.
var ErrEmailInUse = registry.ErrEmailInUse

// Store is the registry surface used by registration.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	GetOwnerByEmail(ctx context.Context, email string) (*registry.Owner, error)
	CreateOwnerWithSite(ctx context.Context, o *registry.Owner, password string, s *registry.Site) error
}

// Notifier accepts emails for background delivery.
type Notifier interface {
	Enqueue(msg email.Message) error
}

// Config holds registration email settings.
type Config struct {
	EmailFrom string
	BaseURL   string
}

// Request describes a new site and its owner.
type Request struct {
	Email        string
	Password     string
	SiteKey      string
	SiteName     string
	OwnerName    string
	OwnerAddress string
	OwnerPhone   string
	HomepageURL  string
	IsFreePlan   *bool
	Overwrite    bool
}

// Result is the outcome of a registration. Password is only set when it was
// generated.
type Result struct {
	SiteKey  string `json:"siteKey"`
	OwnerID  string `json:"ownerId"`
	Password string `json:"password,omitempty"`
}

// Service registers sites.
type Service struct {
	store    Store
	notifier Notifier
	cfg      Config
}

// NewService creates a registration Service.
func NewService(store Store, notifier Notifier, cfg Config) *Service {
	return &Service{store: store, notifier: notifier, cfg: cfg}
}

// Register creates the owner account and writes the site record in one
// transaction. An overwrite replaces the whole record, billing fields
// included. The welcome email is queued after the record is written and its
// failure never fails the registration.
func (s *Service) Register(ctx context.Context, req Request) (*Result, error) {
	siteKey := strings.TrimSpace(req.SiteKey)

	exists, err := s.store.Exists(ctx, siteKey)
	if err != nil {
		return nil, fmt.Errorf("check site key: %w", err)
	}
	if exists && !req.Overwrite {
		return nil, ErrSiteExists
	}

	ownerEmail := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := s.store.GetOwnerByEmail(ctx, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("check owner email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	password := req.Password
	generated := false
	if password == "" {
		password, err = GeneratePassword()
		if err != nil {
			return nil, err
		}
		generated = true
	}

	ownerID, err := registry.GenerateOwnerID()
	if err != nil {
		return nil, err
	}
	owner := &registry.Owner{ID: ownerID, Email: ownerEmail}
	site := &registry.Site{
		Key:          siteKey,
		OwnerID:      owner.ID,
		SiteName:     strings.TrimSpace(req.SiteName),
		OwnerName:    strings.TrimSpace(req.OwnerName),
		OwnerAddress: strings.TrimSpace(req.OwnerAddress),
		OwnerEmail:   ownerEmail,
		OwnerPhone:   strings.TrimSpace(req.OwnerPhone),
		HomepageURL:  strings.TrimSpace(req.HomepageURL),
		IsFreePlan:   req.IsFreePlan,
	}
	if err := s.store.CreateOwnerWithSite(ctx, owner, password, site); err != nil {
		if errors.Is(err, ErrEmailInUse) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("write registration: %w", err)
	}

	s.sendWelcome(ctx, site, password)

	res := &Result{SiteKey: site.Key, OwnerID: owner.ID}
	if generated {
		res.Password = password
	}
	return res, nil
}

func (s *Service) sendWelcome(ctx context.Context, site *registry.Site, password string) {
	logger := logging.FromContext(ctx)
	if s.notifier == nil {
		return
	}

	html, text, err := email.RenderRegistrationEmail(email.RegistrationData{
		SiteKey:  site.Key,
		SiteName: site.SiteName,
		Email:    site.OwnerEmail,
		Password: password,
		LoginURL: strings.TrimRight(s.cfg.BaseURL, "/") + "/login",
	})
	if err != nil {
		logger.Error().Err(err).Str("site_key", site.Key).Msg("Render registration email failed")
		return
	}

	err = s.notifier.Enqueue(email.Message{
		From:    s.cfg.EmailFrom,
		To:      site.OwnerEmail,
		Subject: "Your Pageit site is registered",
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		logger.Warn().Err(err).Str("site_key", site.Key).Msg("Registration email not queued")
	}
}

// GeneratePassword returns a random lowercase base-36 password.
func GeneratePassword() (string, error) {
	alphabetLen := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, generatedPasswordLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}
