// internal/source/errors.go
package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout возникает, когда источник не ответил за отведённое время
	ErrTimeout = errors.New("source timeout")

	// ErrCanceled возникает, когда вызывающая сторона отменила запрос
	ErrCanceled = errors.New("source request canceled")

	// ErrTransport возникает при сетевой ошибке или не-2xx ответе
	ErrTransport = errors.New("source transport failure")

	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("source rate limit exceeded")

	// ErrInvalidResponse возникает, когда ответ нельзя разобрать или он неполный
	ErrInvalidResponse = errors.New("invalid source response")

	// ErrInvalidIdentity возникает, когда источник не может закодировать identity в свой формат
	ErrInvalidIdentity = errors.New("identity not accepted by source")
)

// Error представляет ошибку источника с дополнительным контекстом
type Error struct {
	Err    error
	Source string
	Method string
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	return fmt.Sprintf("source error [%s] at %s: %v", e.Method, e.Source, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создает новую ошибку источника
func NewError(err error, source, method string) error {
	return &Error{
		Err:    err,
		Source: source,
		Method: method,
	}
}

// classify maps a raw failure onto the source taxonomy. The request context
// decides between a timeout and a caller cancellation.
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCanceled),
		errors.Is(err, ErrTransport), errors.Is(err, ErrRateLimit),
		errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrInvalidIdentity):
		return err
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
