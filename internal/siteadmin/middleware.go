package siteadmin

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin/auditlog"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// requestMiddleware attaches a request ID, recovers panics and writes one
// access log line per request.
func requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w}
		logger := logging.FromContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				logger.Error().
					Interface("panic", p).
					Str("method", r.Method).
					Str("path", auditlog.RequestPath(r)).
					Msg("Handler panic")
				if rec.status == 0 {
					http.Error(rec, "Internal Server Error", http.StatusInternalServerError)
				}
			}

			if !logging.IsLevelEnabled(zerolog.DebugLevel) {
				return
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug().
				Str("method", r.Method).
				Str("path", auditlog.RequestPath(r)).
				Str("client_ip", auditlog.ClientIP(r)).
				Int("status", status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()

		next.ServeHTTP(rec, r)
	})
}

// securityHeaders sets response headers for a JSON-only API. Nothing served
// here is meant to be framed, sniffed or rendered as a document.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
