// internal/strategy/kind.go
package strategy

import (
	"fmt"
	"strings"
)

// Kind identifies one of the fixed strategy slots.
type Kind string

const (
	KindGrid   Kind = "grid"
	KindSniper Kind = "sniper"
	KindMEV    Kind = "mev"
	KindSignal Kind = "signal"
)

// Kinds lists every slot in display order.
var Kinds = []Kind{KindGrid, KindSniper, KindMEV, KindSignal}

// ParseKind принимает имя стратегии без учета регистра.
// "psycho" – историческое имя сигнальной стратегии.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGrid, KindSniper, KindMEV, KindSignal:
		return k, nil
	case "psycho":
		return KindSignal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// RequiresResource reports whether Start needs an assigned resource.
func (k Kind) RequiresResource() bool {
	return k != KindMEV
}

// State – состояние слота
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)
