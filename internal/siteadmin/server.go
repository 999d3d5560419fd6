package siteadmin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pageit/pageit-admin/internal/siteadmin/billing"
	"github.com/pageit/pageit-admin/internal/siteadmin/email"
	"github.com/pageit/pageit-admin/internal/siteadmin/registration"
	"github.com/pageit/pageit-admin/internal/siteadmin/registry"
	adminstripe "github.com/pageit/pageit-admin/internal/siteadmin/stripe"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout    = 30 * time.Second
	rateLimiterSweep   = 5 * time.Minute
	maxLoggedEmailBody = 4096
)

// Run starts the site admin HTTP server and blocks until ctx is cancelled or
// a termination signal arrives.
func Run(ctx context.Context, cfg *Config, version string) error {
	log.Info().Str("version", version).Msg("Starting Pageit site admin")

	if err := os.MkdirAll(cfg.RegistryDir(), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	reg, err := registry.NewSiteRegistry(cfg.RegistryDir())
	if err != nil {
		return fmt.Errorf("open site registry: %w", err)
	}
	defer reg.Close()

	reconciler := billing.NewReconciler(reg, adminstripe.NewClient(cfg.StripeAPIKey), billing.Config{
		DefaultPriceID: cfg.StripeDefaultPriceID,
		BaseURL:        cfg.BaseURL,
	})

	notifier := email.NewNotifier(newEmailSender(cfg), email.NotifierConfig{})
	registrationSvc := registration.NewService(reg, notifier, registration.Config{
		EmailFrom: cfg.EmailFrom,
		BaseURL:   cfg.BaseURL,
	})

	limiter := NewRateLimiter(cfg.WebhookRateLimit, time.Minute)

	mux := http.NewServeMux()
	deps := &Deps{
		Config:       cfg,
		Registry:     reg,
		Reconciler:   reconciler,
		Registration: registrationSvc,
		Limiter:      limiter,
		Version:      version,
	}
	RegisterRoutes(mux, deps)

	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           requestMiddleware(securityHeaders(mux)),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		notifier.Run(ctx)
	}()

	go runSubscriptionStatusMetrics(ctx, reg)
	go limiter.RunSweeper(ctx, rateLimiterSweep)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Site admin listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	case err := <-serveErr:
		log.Error().Err(err).Msg("Server failed")
		runErr = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	<-notifierDone
	log.Info().Msg("Site admin stopped")
	return runErr
}

func newEmailSender(cfg *Config) email.Sender {
	if cfg.PostmarkServerToken != "" {
		log.Info().Msg("Email sender configured (Postmark)")
		return email.NewPostmarkSender(cfg.PostmarkServerToken)
	}

	log.Info().Msg("Email sender: log-only (set POSTMARK_SERVER_TOKEN to enable)")
	return email.NewLogSender(func(to, subject, body string) {
		if len(body) > maxLoggedEmailBody {
			body = body[:maxLoggedEmailBody] + "...(truncated)"
		}
		log.Info().
			Str("to", to).
			Str("subject", subject).
			Str("body", body).
			Msg("Email (log-only, no email provider configured)")
	})
}
