// ==================================
// File: internal/wallet/session.go
// ==================================
package wallet

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/events"
)

// ErrInvalidIdentity возвращается, если identity не является публичным ключом Solana.
var ErrInvalidIdentity = errors.New("invalid wallet identity")

// Publisher принимает события сессии
type Publisher interface {
	Publish(event events.Event) error
}

// Info описывает текущую сессию кошелька.
type Info struct {
	Connected   bool       `json:"connected"`
	Identity    string     `json:"identity,omitempty"`
	Short       string     `json:"short,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// Session хранит подключённый публичный ключ. Приватные ключи сюда не попадают.
type Session struct {
	mu          sync.RWMutex
	identity    string
	connectedAt time.Time
	publisher   Publisher
	logger      *zap.Logger
}

// NewSession создаёт пустую сессию. publisher может быть nil.
func NewSession(publisher Publisher, logger *zap.Logger) *Session {
	return &Session{publisher: publisher, logger: logger.Named("wallet")}
}

// Connect sets the connected identity. Reconnecting the same identity is a
// no-op; switching identities emits a single connected event.
func (s *Session) Connect(identity string) (Info, error) {
	identity = strings.TrimSpace(identity)
	pk, err := solana.PublicKeyFromBase58(identity)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	identity = pk.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == identity {
		return s.infoLocked(), nil
	}

	previous := s.identity
	s.identity = identity
	s.connectedAt = time.Now().UTC()

	s.logger.Info("Wallet connected", zap.String("identity", Shorten(identity)))
	s.publish(events.WalletEvent{
		BaseEvent: events.NewBaseEvent(events.WalletConnected),
		Identity:  identity,
		Previous:  previous,
	})
	return s.infoLocked(), nil
}

// Disconnect clears the session. It is idempotent.
func (s *Session) Disconnect() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == "" {
		return s.infoLocked()
	}

	previous := s.identity
	s.identity = ""
	s.connectedAt = time.Time{}

	s.logger.Info("Wallet disconnected", zap.String("identity", Shorten(previous)))
	s.publish(events.WalletEvent{
		BaseEvent: events.NewBaseEvent(events.WalletDisconnected),
		Previous:  previous,
	})
	return s.infoLocked()
}

// Current returns the session state and whether a wallet is connected.
func (s *Session) Current() (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLocked(), s.identity != ""
}

func (s *Session) infoLocked() Info {
	if s.identity == "" {
		return Info{}
	}
	at := s.connectedAt
	return Info{
		Connected:   true,
		Identity:    s.identity,
		Short:       Shorten(s.identity),
		ConnectedAt: &at,
	}
}

func (s *Session) publish(ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ev); err != nil {
		s.logger.Warn("Failed to publish wallet event", zap.String("event_type", string(ev.Type())), zap.Error(err))
	}
}

// Shorten formats an identity as first8...last8.
func Shorten(identity string) string {
	if len(identity) <= 16 {
		return identity
	}
	return identity[:8] + "..." + identity[len(identity)-8:]
}
