// internal/resolver/failover.go
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

const (
	// SourceStatic помечает результат из статической таблицы
	SourceStatic = "static"
	// SourceFallback помечает константную цену по умолчанию
	SourceFallback = "fallback"
	// SourceNone помечает деградированный результат без источника
	SourceNone = "none"
)

// ErrCanceled возвращается, когда вызывающая сторона отменила разрешение.
// Это единственная ошибка резолверов: отказ всех источников ошибкой не является.
var ErrCanceled = errors.New("resolution canceled")

// errExhausted is internal: every source failed and the caller degrades.
var errExhausted = errors.New("all sources failed")

// Observer receives one call per source attempt and one per degraded result.
type Observer interface {
	ObserveAttempt(capability, source string, elapsed time.Duration, err error)
	ObserveFallback(capability, origin string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, string, time.Duration, error) {}
func (nopObserver) ObserveFallback(string, string)                      {}

type options struct {
	observer Observer
	now      func() time.Time
	tokenTTL time.Duration
}

// Option настраивает резолвер
type Option func(*options)

// WithObserver подключает наблюдателя попыток (метрики).
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		if now != nil {
			opts.now = now
		}
	}
}

// WithTokenTTL sets how long a fetched token list is reused.
func WithTokenTTL(ttl time.Duration) Option {
	return func(opts *options) {
		opts.tokenTTL = ttl
	}
}

func buildOptions(opts []Option) options {
	o := options{observer: nopObserver{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

// firstSuccess tries clients strictly in order, one attempt each, and stops at
// the first success. Failures are logged and observed, never returned. The
// returned error is either ErrCanceled or errExhausted.
func firstSuccess[C source.Client, T any](
	ctx context.Context,
	logger *zap.Logger,
	obs Observer,
	capability source.Capability,
	clients []C,
	call func(context.Context, C) (T, error),
) (T, string, error) {
	var zero T

	for i, client := range clients {
		if ctx.Err() != nil {
			return zero, "", canceled(ctx)
		}

		name := client.Descriptor().Name
		start := time.Now()
		value, err := call(ctx, client)
		elapsed := time.Since(start)
		obs.ObserveAttempt(string(capability), name, elapsed, err)

		if err == nil {
			logger.Debug("source answered",
				zap.String("source", name),
				zap.Int("position", i),
				zap.Duration("elapsed", elapsed))
			return value, name, nil
		}

		// Отмена во время запроса – это не отказ источника
		if ctx.Err() != nil {
			return zero, "", canceled(ctx)
		}

		logger.Warn("source failed, trying next",
			zap.String("source", name),
			zap.Int("position", i),
			zap.Int("remaining", len(clients)-i-1),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}

	if ctx.Err() != nil {
		return zero, "", canceled(ctx)
	}
	return zero, "", errExhausted
}
