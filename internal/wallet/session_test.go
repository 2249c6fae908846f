package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-hft/internal/events"
)

type recorder struct {
	events []events.WalletEvent
}

func (r *recorder) Publish(e events.Event) error {
	r.events = append(r.events, e.(events.WalletEvent))
	return nil
}

func TestSession_ConnectDisconnect(t *testing.T) {
	rec := &recorder{}
	s := NewSession(rec, zaptest.NewLogger(t))

	_, ok := s.Current()
	assert.False(t, ok)

	a := solana.NewWallet().PublicKey().String()
	b := solana.NewWallet().PublicKey().String()

	info, err := s.Connect(a)
	require.NoError(t, err)
	assert.True(t, info.Connected)
	assert.Equal(t, a, info.Identity)
	assert.Equal(t, a[:8]+"..."+a[len(a)-8:], info.Short)

	// same identity: no event
	_, err = s.Connect(" " + a + " ")
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	_, err = s.Connect(b)
	require.NoError(t, err)
	require.Len(t, rec.events, 2)
	assert.Equal(t, a, rec.events[1].Previous)
	assert.Equal(t, b, rec.events[1].Identity)

	info = s.Disconnect()
	assert.False(t, info.Connected)
	s.Disconnect()
	require.Len(t, rec.events, 3)
	assert.Equal(t, events.WalletDisconnected, rec.events[2].Type())
	assert.Equal(t, b, rec.events[2].Previous)
}

func TestSession_RejectsInvalidIdentity(t *testing.T) {
	s := NewSession(nil, zaptest.NewLogger(t))
	_, err := s.Connect("not a key")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, ok := s.Current()
	assert.False(t, ok)
}
