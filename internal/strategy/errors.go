// internal/strategy/errors.go
package strategy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind возникает при обращении к несуществующему слоту
	ErrUnknownKind = errors.New("unknown strategy kind")

	// ErrResourceNotAssigned возникает при запуске стратегии без ресурса
	ErrResourceNotAssigned = errors.New("resource not assigned")
)

// ResourceNotAssignedError is returned by Start when the slot needs a
// resource and has none. State is left unchanged.
type ResourceNotAssignedError struct {
	Kind Kind
}

// Error реализует интерфейс error
func (e *ResourceNotAssignedError) Error() string {
	return fmt.Sprintf("cannot start %s: %v", e.Kind, ErrResourceNotAssigned)
}

// Unwrap возвращает ErrResourceNotAssigned
func (e *ResourceNotAssignedError) Unwrap() error {
	return ErrResourceNotAssigned
}
