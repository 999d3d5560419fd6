// Package auditlog attaches request metadata to structured audit events.
package auditlog

import (
	"net"
	"net/http"
	"strings"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/rs/zerolog"
)

// Event starts an audit log entry for an admin API action. Callers add
// action-specific fields and finish with Msg.
func Event(r *http.Request, event, outcome string) *zerolog.Event {
	logger := logging.FromContext(r.Context())
	var e *zerolog.Event
	if outcome == "success" {
		e = logger.Info()
	} else {
		e = logger.Warn()
	}
	e = e.Str("event", event).
		Str("outcome", outcome).
		Str("client_ip", ClientIP(r)).
		Str("path", RequestPath(r))
	if actor := ActorID(r); actor != "" {
		e = e.Str("actor_id", actor)
	}
	return e
}

// ClientIP resolves the best-effort client IP for audit metadata.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return strings.Trim(rip, "[]")
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// ActorID returns the operator identifier supplied alongside the admin key.
func ActorID(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, header := range []string{"X-Actor-ID", "X-Pageit-Operator"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}
	return ""
}

// RequestPath returns a stable request path for audit metadata.
func RequestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	if p := strings.TrimSpace(r.URL.Path); p != "" {
		return p
	}
	return "/"
}
