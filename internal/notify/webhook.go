// internal/notify/webhook.go
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/events"
)

const (
	defaultQueueSize  = 64
	defaultTimeout    = 5 * time.Second
	defaultMaxElapsed = 30 * time.Second
)

// ErrQueueFull is returned by Handle when deliveries back up.
var ErrQueueFull = errors.New("webhook queue full")

// Webhook forwards bus events to HTTP endpoints as JSON. Delivery happens on
// its own goroutine, so the bus dispatcher is never blocked.
type Webhook struct {
	urls       []string
	client     *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger

	queue     chan events.Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWebhook creates a notifier for urls. An empty list yields a disabled
// notifier whose Handle is a no-op.
func NewWebhook(urls []string, timeout, maxElapsed time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Webhook{
		urls:       append([]string(nil), urls...),
		client:     &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		logger:     logger.Named("webhook"),
		queue:      make(chan events.Event, defaultQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	if w.Enabled() {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Enabled reports whether any endpoint is configured.
func (w *Webhook) Enabled() bool { return len(w.urls) > 0 }

// Handle implements events.Handler.
func (w *Webhook) Handle(_ context.Context, event events.Event) error {
	if !w.Enabled() {
		return nil
	}
	if w.ctx.Err() != nil {
		return fmt.Errorf("webhook closed")
	}
	select {
	case w.queue <- event:
		return nil
	default:
		w.logger.Warn("Webhook queue full, dropping event", zap.String("event_type", string(event.Type())))
		return ErrQueueFull
	}
}

func (w *Webhook) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.queue:
			if err := w.Deliver(w.ctx, ev); err != nil {
				w.logger.Warn("Webhook delivery failed",
					zap.String("event_type", string(ev.Type())),
					zap.Error(err))
			}
		}
	}
}

// Deliver posts one event to every endpoint concurrently, retrying each
// with exponential backoff.
func (w *Webhook) Deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, url := range w.urls {
		url := url
		p.Go(func(ctx context.Context) error {
			_, err := backoff.Retry(ctx, func() (int, error) {
				return w.post(ctx, url, event.Type(), body)
			},
				backoff.WithBackOff(backoff.NewExponentialBackOff()),
				backoff.WithMaxElapsedTime(w.maxElapsed),
			)
			if err != nil {
				return fmt.Errorf("notify %s: %w", url, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// post performs one attempt. Client errors other than 429 are permanent.
func (w *Webhook) post(ctx context.Context, url string, typ events.EventType, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(typ))

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return resp.StatusCode, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
}

// Close stops the delivery loop. Queued events that were not yet picked up
// are dropped.
func (w *Webhook) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
	return nil
}
