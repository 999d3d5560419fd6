package email

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pageit/pageit-admin/internal/siteadmin/adminmetrics"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 5
)

// ErrQueueFull is returned by Enqueue when the notifier cannot accept more
// messages.
var ErrQueueFull = errors.New("email queue full")

// ErrNotifierClosed is returned by Enqueue after Run has returned.
var ErrNotifierClosed = errors.New("email notifier stopped")

// NotifierConfig tunes delivery retries.
type NotifierConfig struct {
	QueueSize       int
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Notifier delivers messages in the background with retries. Enqueue never
// blocks; delivery failures are logged and counted, never surfaced to the
// caller.
type Notifier struct {
	sender Sender
	cfg    NotifierConfig
	queue  chan Message

	mu     sync.RWMutex
	closed bool
}

// NewNotifier creates a Notifier. Call Run to start delivery.
func NewNotifier(sender Sender, cfg NotifierConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Notifier{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan Message, cfg.QueueSize),
	}
}

// Enqueue hands a message to the background worker.
func (n *Notifier) Enqueue(msg Message) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		adminmetrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return ErrNotifierClosed
	}
	select {
	case n.queue <- msg:
		return nil
	default:
		adminmetrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled, then drains what is
// already queued with a single attempt each.
func (n *Notifier) Run(ctx context.Context) {
	log.Info().Msg("Email notifier started")
	for {
		select {
		case <-ctx.Done():
			n.mu.Lock()
			n.closed = true
			n.mu.Unlock()
			n.drain()
			log.Info().Msg("Email notifier stopped")
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-n.queue:
			if err := n.sender.Send(ctx, msg); err != nil {
				n.recordFailure(msg, err)
				continue
			}
			adminmetrics.NotificationsTotal.WithLabelValues("sent").Inc()
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.cfg.InitialInterval
	b.MaxInterval = n.cfg.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, n.sender.Send(ctx, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(n.cfg.MaxAttempts),
	)
	if err != nil {
		n.recordFailure(msg, err)
		return
	}
	adminmetrics.NotificationsTotal.WithLabelValues("sent").Inc()
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attempts", attempts).
		Msg("Email delivered")
}

func (n *Notifier) recordFailure(msg Message, err error) {
	adminmetrics.NotificationsTotal.WithLabelValues("failed").Inc()
	log.Error().Err(err).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Email delivery failed")
}
