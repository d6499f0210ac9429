package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/ledger"
)

const webhookAttempts = 3

// WebhookOptions configures a WebhookSink.
type WebhookOptions struct {
	URLs []string
	// Secret, when set, signs each body with HMAC-SHA256.
	Secret string
	// Events limits delivery to these event names. Empty means all.
	Events     []string
	Timeout    time.Duration
	RetryDelay time.Duration
	// QueueSize bounds the batches waiting for delivery.
	QueueSize int
}

// WebhookSink POSTs each committed event as JSON to every configured URL.
// Delivery runs on its own goroutine; batches that do not fit the queue
// are dropped.
type WebhookSink struct {
	opts   WebhookOptions
	events map[string]bool
	client *http.Client

	mu     sync.Mutex
	closed bool
	queue  chan []ledger.Event
	done   chan struct{}
}

// NewWebhookSink starts the delivery loop. Call Close to drain it.
func NewWebhookSink(opts WebhookOptions) *WebhookSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	s := &WebhookSink{
		opts:   opts,
		events: make(map[string]bool, len(opts.Events)),
		client: &http.Client{Timeout: opts.Timeout},
		queue:  make(chan []ledger.Event, opts.QueueSize),
		done:   make(chan struct{}),
	}
	for _, name := range opts.Events {
		s.events[name] = true
	}
	go s.run()
	return s
}

func (s *WebhookSink) subscribes(name string) bool {
	return len(s.events) == 0 || s.events[name] || s.events["*"]
}

// Publish implements ledger.EventSink.
func (s *WebhookSink) Publish(_ context.Context, evs []ledger.Event) {
	var batch []ledger.Event
	for _, ev := range evs {
		if s.subscribes(ev.Name) {
			batch = append(batch, ev)
		}
	}
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- batch:
	default:
		log.Warn().Int("events", len(batch)).Msg("Webhook queue full, dropping events")
	}
}

func (s *WebhookSink) run() {
	defer close(s.done)
	for batch := range s.queue {
		for _, ev := range batch {
			for _, url := range s.opts.URLs {
				if err := s.deliver(context.Background(), url, ev); err != nil {
					log.Warn().Err(err).Str("url", url).Str("event", ev.Name).Msg("Webhook delivery failed")
				}
			}
		}
	}
}

func (s *WebhookSink) deliver(ctx context.Context, url string, ev ledger.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < webhookAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.opts.RetryDelay)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "AgentMarket-Webhook/1.0")
		req.Header.Set("X-AgentMarket-Event", ev.Name)
		req.Header.Set("X-AgentMarket-Program", ev.Program.Hex())
		if s.opts.Secret != "" {
			req.Header.Set("X-AgentMarket-Signature", "sha256="+Sign(s.opts.Secret, body))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, url)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", webhookAttempts, lastErr)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Close stops accepting events and waits for queued deliveries.
func (s *WebhookSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
	return nil
}
