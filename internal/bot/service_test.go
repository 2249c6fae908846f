package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-hft/internal/config"
	"github.com/rovshanmuradov/solana-hft/internal/events"
	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/solscan/account/"):
			_, _ = io.WriteString(w, `{"lamports": 2500000000}`)
		case r.URL.Path == "/coingecko":
			_, _ = io.WriteString(w, `{"solana": {"usd": 100}}`)
		case r.URL.Path == "/tokens":
			_, _ = io.WriteString(w, `[{"address":"mintA","symbol":"BONK","name":"Bonk","decimals":5}]`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, base string, extra string) *config.Config {
	t.Helper()
	body := fmt.Sprintf(`{
		"sources": [
			{"name": "broken", "kind": "solscan", "endpoint": "%[1]s/broken", "capability": "balance"},
			{"name": "solscan", "kind": "solscan", "endpoint": "%[1]s/solscan", "capability": "balance"},
			{"name": "coingecko", "kind": "coingecko", "endpoint": "%[1]s/coingecko", "capability": "price", "asset": "solana"},
			{"name": "tokens", "kind": "jupiter-tokens", "endpoint": "%[1]s/tokens", "capability": "tokenList"}
		],
		"http_addr": "127.0.0.1:0",
		"log_file": "",
		"accrual": {"tick_ms": 10, "seed": 42}
		%[2]s
	}`, base, extra)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func startService(t *testing.T, cfg *config.Config) (*Service, string) {
	t.Helper()
	svc, err := NewService(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
		assert.NoError(t, svc.Close())
	})
	return svc, "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestService_EndToEnd(t *testing.T) {
	up := upstream(t)
	svc, base := startService(t, testConfig(t, up.URL, ""))

	code, body := getJSON(t, http.MethodGet, base+"/balance/anything", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2.5", body["amount"])
	assert.Equal(t, "solscan", body["source"])

	code, body = getJSON(t, http.MethodGet, base+"/portfolio/anything", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "250", body["valuationQuote"])
	assert.Equal(t, "250", body["totalValue"])

	code, body = getJSON(t, http.MethodGet, base+"/tokens", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = getJSON(t, http.MethodPost, base+"/strategies/mev/start", "")
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		return !svc.Strategies.TotalPnL().IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), "solana_hft_source_attempts_total")
	assert.Contains(t, string(raw), `source="broken"`)
}

func TestService_WalletChangeRefreshesPortfolio(t *testing.T) {
	up := upstream(t)
	svc, base := startService(t, testConfig(t, up.URL, ""))

	refreshed := make(chan events.PortfolioRefreshedEvent, 1)
	sub := svc.Bus.SubscribeFunc(events.PortfolioRefreshed, func(_ context.Context, e events.Event) error {
		refreshed <- e.(events.PortfolioRefreshedEvent)
		return nil
	})
	defer sub.Unsubscribe()

	identity := solana.NewWallet().PublicKey().String()
	code, _ := getJSON(t, http.MethodPost, base+"/wallet/connect", fmt.Sprintf(`{"identity":%q}`, identity))
	require.Equal(t, http.StatusOK, code)

	select {
	case ev := <-refreshed:
		assert.Equal(t, identity, ev.Identity)
		assert.Equal(t, "250", ev.TotalValue)
		assert.False(t, ev.Degraded)
	case <-time.After(3 * time.Second):
		t.Fatal("portfolio was not refreshed")
	}

	snap, ok := svc.Portfolio.Cached(identity)
	require.True(t, ok)
	assert.Equal(t, identity, snap.Identity)

	code, _ = getJSON(t, http.MethodPost, base+"/wallet/disconnect", "")
	require.Equal(t, http.StatusOK, code)
	require.Eventually(t, func() bool {
		_, ok := svc.Portfolio.Cached(identity)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_RequireWallet(t *testing.T) {
	up := upstream(t)
	_, base := startService(t, testConfig(t, up.URL, `, "require_wallet": true`))

	code, _ := getJSON(t, http.MethodPost, base+"/strategies/mev/start", "")
	assert.Equal(t, http.StatusPreconditionFailed, code)
}

func TestNewService_RefreshTimeoutFromConfig(t *testing.T) {
	up := upstream(t)
	cfg := testConfig(t, up.URL, `, "refresh_timeout_ms": 1234`)

	svc, err := NewService(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, 1234*time.Millisecond, svc.refresher.timeout)
}

func TestNewService_BadPresets(t *testing.T) {
	up := upstream(t)
	cfg := testConfig(t, up.URL, "")
	cfg.StrategiesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewService(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestShutdownHandler_ClosesInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		sh.AddFunc(name, func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			if name == "b" {
				return errors.New("boom")
			}
			return nil
		})
	}

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, []string{"c", "b", "a"}, order)

	// second call is a no-op
	assert.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownHandler_Timeout(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 20*time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	sh.AddFunc("stuck", func() error {
		<-block
		return nil
	})

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown timeout")
}

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []string
	forgotten []string
	err       error
}

func (f *fakeRefresher) Refresh(_ context.Context, identity string) (portfolio.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, identity)
	return portfolio.Snapshot{ID: "s", Identity: identity, Balance: resolver.BalanceResult{Source: "a"}}, f.err
}

func (f *fakeRefresher) Forget(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, identity)
}

func TestWalletRefresher_IgnoresOtherEvents(t *testing.T) {
	f := &fakeRefresher{}
	r := newWalletRefresher(f, nil, time.Second, zaptest.NewLogger(t))
	defer r.Close()

	require.NoError(t, r.Handle(context.Background(), events.StrategyEvent{BaseEvent: events.NewBaseEvent(events.StrategyStarted)}))
	require.NoError(t, r.Handle(context.Background(), events.WalletEvent{
		BaseEvent: events.NewBaseEvent(events.WalletConnected),
		Identity:  "new",
		Previous:  "old",
	}))

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.refreshed) == 1
	}, time.Second, 5*time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"new"}, f.refreshed)
	assert.Equal(t, []string{"old"}, f.forgotten)
}
