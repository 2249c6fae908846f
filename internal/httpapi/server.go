// Package httpapi exposes balance, price, portfolio, strategy and wallet
// operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/events"
	"github.com/rovshanmuradov/solana-hft/internal/logger"
	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
	"github.com/rovshanmuradov/solana-hft/internal/source"
	"github.com/rovshanmuradov/solana-hft/internal/strategy"
	"github.com/rovshanmuradov/solana-hft/internal/wallet"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB
	defaultLogLimit        = 100
)

type BalanceResolver interface {
	ResolveBalance(ctx context.Context, identity string) (resolver.BalanceResult, error)
}

type PriceResolver interface {
	ResolvePrice(ctx context.Context) (resolver.PriceQuote, error)
}

type TokenResolver interface {
	ResolveTokens(ctx context.Context) (resolver.TokenList, error)
	Token(ctx context.Context, mint string) (source.Token, bool, error)
}

type Portfolio interface {
	Refresh(ctx context.Context, identity string) (portfolio.Snapshot, error)
	Get(ctx context.Context, identity string) (portfolio.Snapshot, error)
}

type Strategies interface {
	AssignResource(kind strategy.Kind, resourceID string) (strategy.View, error)
	UpdateConfiguration(kind strategy.Kind, patch strategy.Patch) (strategy.View, error)
	Start(kind strategy.Kind) (strategy.View, error)
	Stop(kind strategy.Kind) (strategy.View, error)
	Get(kind strategy.Kind) (strategy.View, error)
	Snapshot() []strategy.View
}

type Wallet interface {
	Connect(identity string) (wallet.Info, error)
	Disconnect() wallet.Info
	Current() (wallet.Info, bool)
}

// RequestObserver records one served request.
type RequestObserver interface {
	ObserveRequest(route string, code int, duration time.Duration)
}

type RecentLogs interface {
	Recent(limit int) []logger.LogEntry
}

type BusStats interface {
	Stats() events.Stats
}

// Deps collects the components behind the routes. Balance, Price,
// Portfolio, Strategies and Wallet are required; the rest may be nil.
type Deps struct {
	Balance    BalanceResolver
	Price      PriceResolver
	Tokens     TokenResolver
	Portfolio  Portfolio
	Strategies Strategies
	Wallet     Wallet

	Metrics       http.Handler
	Observer      RequestObserver
	Logs          RecentLogs
	Bus           BusStats
	RequireWallet bool
}

// Server is the HTTP surface of the bot.
type Server struct {
	deps    Deps
	handler http.Handler
	srv     *http.Server
	logger  *zap.Logger
	started time.Time
}

// NewServer builds the router. addr is used by ListenAndServe.
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		deps:    deps,
		logger:  logger.Named("http"),
		started: time.Now(),
	}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /balance/{identity}", s.getBalance)
	mux.HandleFunc("GET /price", s.getPrice)
	mux.HandleFunc("GET /portfolio/{identity}", s.getPortfolio)
	mux.HandleFunc("GET /portfolio/{identity}/export", s.exportPortfolio)
	mux.HandleFunc("GET /tokens", s.getTokens)

	mux.HandleFunc("GET /strategies", s.listStrategies)
	mux.HandleFunc("GET /strategies/export", s.exportStrategies)
	mux.HandleFunc("GET /strategies/{kind}", s.getStrategy)
	mux.HandleFunc("POST /strategies/{kind}/start", s.startStrategy)
	mux.HandleFunc("POST /strategies/{kind}/stop", s.stopStrategy)
	mux.HandleFunc("PUT /strategies/{kind}/resource", s.assignResource)
	mux.HandleFunc("PATCH /strategies/{kind}/config", s.updateConfig)

	mux.HandleFunc("GET /wallet", s.getWallet)
	mux.HandleFunc("POST /wallet/connect", s.connectWallet)
	mux.HandleFunc("POST /wallet/disconnect", s.disconnectWallet)

	mux.HandleFunc("GET /logs", s.getLogs)
	mux.HandleFunc("GET /healthz", s.health)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}

	return s.instrument(mux)
}

// Handler returns the router, wrapped with request metrics and logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
