// internal/bot/service.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-hft/internal/config"
	"github.com/rovshanmuradov/solana-hft/internal/events"
	"github.com/rovshanmuradov/solana-hft/internal/httpapi"
	"github.com/rovshanmuradov/solana-hft/internal/logger"
	"github.com/rovshanmuradov/solana-hft/internal/metrics"
	"github.com/rovshanmuradov/solana-hft/internal/notify"
	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
	"github.com/rovshanmuradov/solana-hft/internal/source"
	"github.com/rovshanmuradov/solana-hft/internal/strategy"
	"github.com/rovshanmuradov/solana-hft/internal/wallet"
)

// Service owns every component of the bot and their lifetimes.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	Metrics       *metrics.Collector
	Bus           *events.Bus
	Sources       *source.Set
	Balances      *resolver.BalanceResolver
	Prices        *resolver.PriceConverter
	Tokens        *resolver.TokenListResolver
	Portfolio     *portfolio.Assembler
	Strategies    *strategy.Orchestrator
	Simulator     *strategy.Simulator
	Wallet        *wallet.Session
	Webhook       *notify.Webhook
	Server        *httpapi.Server
	shutdown      *ShutdownHandler
	refresher     *walletRefresher
	subscriptions []events.Subscription
}

// Option customizes NewService.
type Option func(*serviceOptions)

type serviceOptions struct {
	httpClient *http.Client
	logs       *logger.Buffer
}

// WithHTTPClient sets the client used by REST sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *serviceOptions) { o.httpClient = c }
}

// WithLogBuffer exposes recent log entries at GET /logs.
func WithLogBuffer(b *logger.Buffer) Option {
	return func(o *serviceOptions) { o.logs = b }
}

// NewService builds sources, resolvers, the portfolio assembler, the
// strategy orchestrator with its simulator, the event bus with its
// subscribers and the HTTP server.
func NewService(cfg *config.Config, log *zap.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	o := serviceOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	log = log.Named("bot")
	s := &Service{
		cfg:      cfg,
		logger:   log,
		Metrics:  metrics.NewCollector(),
		shutdown: NewShutdownHandler(log, cfg.ShutdownTimeout),
	}

	s.Bus = events.NewBus(log, cfg.EventBuffer)
	s.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Bus.Shutdown(ctx)
	})

	sources, err := source.NewSet(cfg.Descriptors(), o.httpClient, log)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to build sources: %w", err)
	}
	s.Sources = sources

	ropts := []resolver.Option{resolver.WithObserver(s.Metrics)}
	s.Balances = resolver.NewBalanceResolver(sources.Balance, cfg.StaticTable(), log, ropts...)
	s.Prices = resolver.NewPriceConverter(sources.Price, cfg.FallbackPrice(), log, ropts...)
	s.Tokens = resolver.NewTokenListResolver(sources.TokenList, log,
		append(ropts, resolver.WithTokenTTL(cfg.TokenListTTL))...)

	var holdings portfolio.HoldingsProvider
	if endpoint := cfg.HoldingsEndpoint(); endpoint != "" {
		pricer, _ := sources.MultiPricer()
		holdings = portfolio.NewTokenAccountProvider(endpoint, s.Tokens, pricer, cfg.HoldingsTimeout, log)
	}
	s.Portfolio = portfolio.NewAssembler(s.Balances, s.Prices, holdings, cfg.SnapshotTTL, log)

	presets, err := loadPresets(cfg.StrategiesFile, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Strategies = strategy.New(s.Bus, log,
		strategy.WithPresets(presets),
		strategy.WithObserver(s.Metrics))
	s.Simulator = strategy.NewSimulator(s.Strategies, cfg.Tick, cfg.Accrual.Seed, log, s.logTick)
	s.shutdown.AddFunc("simulator", func() error {
		s.Simulator.Stop()
		return nil
	})

	s.Wallet = wallet.NewSession(s.Bus, log)

	var hooks []string
	if cfg.WebhookURL != "" {
		hooks = append(hooks, cfg.WebhookURL)
	}
	s.Webhook = notify.NewWebhook(hooks, source.DefaultTimeout, 0, log)
	s.shutdown.Add("webhook", s.Webhook)
	if s.Webhook.Enabled() {
		s.subscriptions = append(s.subscriptions, s.Bus.Subscribe(events.AllEvents, s.Webhook))
	}

	s.refresher = newWalletRefresher(s.Portfolio, s.Bus, cfg.RefreshTimeout, log)
	s.shutdown.Add("wallet_refresher", s.refresher)
	s.subscriptions = append(s.subscriptions,
		s.Bus.Subscribe(events.WalletConnected, s.refresher),
		s.Bus.Subscribe(events.WalletDisconnected, s.refresher))

	deps := httpapi.Deps{
		Balance:       s.Balances,
		Price:         s.Prices,
		Tokens:        s.Tokens,
		Portfolio:     s.Portfolio,
		Strategies:    s.Strategies,
		Wallet:        s.Wallet,
		Metrics:       s.Metrics.Handler(),
		Observer:      s.Metrics,
		Bus:           s.Bus,
		RequireWallet: cfg.RequireWallet,
	}
	if o.logs != nil {
		deps.Logs = o.logs
	}
	s.Server = httpapi.NewServer(cfg.HTTPAddr, deps, log)
	s.shutdown.AddFunc("http_server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Server.Shutdown(ctx)
	})

	log.Info("Service initialized",
		zap.Strings("balance_sources", s.Balances.Sources()),
		zap.Int("price_sources", len(sources.Price)),
		zap.Int("token_list_sources", len(sources.TokenList)),
		zap.Bool("holdings", holdings != nil),
		zap.Bool("webhook", s.Webhook.Enabled()),
		zap.Bool("require_wallet", cfg.RequireWallet))

	return s, nil
}

func loadPresets(path string, log *zap.Logger) (map[strategy.Kind]strategy.Patch, error) {
	if path == "" {
		return nil, nil
	}
	presets, err := strategy.LoadPresets(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy presets: %w", err)
	}
	return presets, nil
}

func (s *Service) logTick(pnl map[strategy.Kind]decimal.Decimal) {
	if len(pnl) == 0 {
		return
	}
	total := decimal.Zero
	for _, v := range pnl {
		total = total.Add(v)
	}
	s.logger.Debug("Accrual tick", zap.String("total_pnl", total.String()))
}

// Run starts the simulator and the HTTP server on cfg.HTTPAddr and blocks
// until ctx is done or the server fails.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Simulator.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return s.Server.Serve(ctx, ln)
	})
	err := g.Wait()
	s.logger.Info("Service stopped", zap.String("total_pnl", s.Strategies.TotalPnL().String()))
	return err
}

// Close releases every component in reverse construction order.
func (s *Service) Close() error {
	for _, sub := range s.subscriptions {
		sub.Unsubscribe()
	}
	s.subscriptions = nil
	return s.shutdown.Shutdown(context.Background())
}
