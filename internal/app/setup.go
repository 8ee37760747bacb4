package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mselser95/lending-liquidator/internal/accounts"
	"github.com/mselser95/lending-liquidator/internal/circuitbreaker"
	"github.com/mselser95/lending-liquidator/internal/coordinator"
	"github.com/mselser95/lending-liquidator/internal/execution"
	"github.com/mselser95/lending-liquidator/internal/mirror"
	"github.com/mselser95/lending-liquidator/internal/notify"
	"github.com/mselser95/lending-liquidator/internal/scheduler"
	"github.com/mselser95/lending-liquidator/internal/storage"
	"github.com/mselser95/lending-liquidator/pkg/cache"
	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/healthprobe"
	"github.com/mselser95/lending-liquidator/pkg/httpserver"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/ledger/layout"
	"github.com/mselser95/lending-liquidator/pkg/protocol"
	"github.com/mselser95/lending-liquidator/pkg/swap"
	"github.com/mselser95/lending-liquidator/pkg/wallet"
	"github.com/mselser95/lending-liquidator/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance. Nothing is started until Run.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	if cfg.ExecutionMode == config.ModeLive {
		if opts.Encoder == nil {
			return nil, errors.New("live mode requires a transaction encoder")
		}
		if opts.LiquidationBuilder == nil {
			return nil, errors.New("live mode requires a liquidation builder")
		}
	}

	pools, err := config.LoadPools(cfg.PoolsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	addresses, err := setupAddressBook(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup address book: %w", err)
	}

	signer, err := setupSigner(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup signer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates, actions := config.ActivityLoggers(logger)

	a := &App{
		cfg:           cfg,
		logger:        logger,
		updates:       updates,
		actions:       actions,
		pools:         pools,
		addresses:     addresses,
		signer:        signer,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	err = a.setup(opts)
	if err != nil {
		a.closeResources()
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(opts *Options) error {
	var err error

	a.rpc, err = setupRPCClient(a.ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup rpc client: %w", err)
	}

	source := opts.Source
	if source == nil {
		a.wsPool = setupWebSocketPool(a.cfg, a.logger)
		source = ledger.Connection{Fetcher: a.rpc, Subscriber: a.wsPool}
	}

	a.scheduler = scheduler.New(&scheduler.Config{
		Interval: a.cfg.SchedulerInterval,
		Logger:   a.logger,
	})

	decoder := opts.Decoder
	if decoder == nil {
		decoder = layout.Decoder{}
	}

	a.deps = &mirror.Deps{
		Source:    source,
		Scheduler: a.scheduler,
		Decoder:   decoder,
		Positions: a.addresses,
		Logger:    a.updates,
	}
	err = a.deps.Validate()
	if err != nil {
		return fmt.Errorf("mirror deps: %w", err)
	}

	a.setupMirrors()

	a.storage = opts.Storage
	if a.storage == nil {
		a.storage, err = setupStorage(a.ctx, a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("setup storage: %w", err)
		}
	}

	notifier, err := setupNotifier(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup notifier: %w", err)
	}

	walletClient, err := wallet.NewClient(a.rpc, a.pools.Stable().Mint, a.pools.Stable().Decimals, a.logger)
	if err != nil {
		return fmt.Errorf("setup wallet client: %w", err)
	}

	err = a.setupWallet(walletClient)
	if err != nil {
		return err
	}

	if a.cfg.ExecutionMode != config.ModeDryRun {
		a.executor, err = a.setupExecutor(opts)
		if err != nil {
			return fmt.Errorf("setup executor: %w", err)
		}
	} else {
		a.logger.Info("executor-disabled-dry-run-mode",
			zap.String("note", "liquidation plans will be evaluated and logged only"))
	}

	err = a.setupCoordinator(notifier)
	if err != nil {
		return fmt.Errorf("setup coordinator: %w", err)
	}

	a.setupHealthChecks()
	a.httpServer = a.setupHTTPServer()

	return nil
}

func setupAddressBook(cfg *config.Config) (*protocol.AddressBook, error) {
	program, err := ledger.ParseAddress(cfg.LendingProgramID)
	if err != nil {
		return nil, fmt.Errorf("LENDING_PROGRAM_ID: %w", err)
	}
	return protocol.NewAddressBook(program, cfg.PositionSeed)
}

// setupSigner loads the configured keypair. Paper and dry-run modes fall back
// to an ephemeral key so they can run without one.
func setupSigner(cfg *config.Config, logger *zap.Logger) (ledger.Signer, error) {
	if cfg.KeypairPath != "" {
		kp, err := ledger.LoadKeypair(cfg.KeypairPath)
		if err != nil {
			return nil, err
		}
		logger.Info("keypair-loaded", zap.String("public-key", kp.PublicKey().String()))
		return kp, nil
	}

	if cfg.ExecutionMode == config.ModeLive {
		return nil, errors.New("KEYPAIR_PATH is required in live mode")
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	kp, err := ledger.NewKeypair(priv)
	if err != nil {
		return nil, err
	}
	logger.Warn("using-ephemeral-keypair",
		zap.String("public-key", kp.PublicKey().String()),
		zap.String("mode", cfg.ExecutionMode))
	return kp, nil
}

func setupRPCClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ledger.RPCClient, error) {
	return ledger.NewRPCClient(ctx, &ledger.RPCConfig{
		URL:        cfg.RPCURL,
		Timeout:    cfg.RPCTimeout,
		Commitment: ledger.CommitmentConfirmed,
		Confirm: ledger.ConfirmConfig{
			InitialBackoff: cfg.ConfirmPollInterval,
			MaxBackoff:     4 * cfg.ConfirmPollInterval,
			BackoffMult:    1.5,
			Timeout:        cfg.ConfirmTimeout,
		},
		Logger: logger,
	})
}

func setupWebSocketPool(cfg *config.Config, logger *zap.Logger) *websocket.Pool {
	return websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		URL:                   cfg.WSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		RequestTimeout:        cfg.WSRequestTimeout,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		NotificationBuffer:    cfg.WSNotificationBuffer,
		Logger:                logger,
	})
}

func (a *App) setupMirrors() {
	for _, pool := range a.pools.All() {
		a.prices = append(a.prices, mirror.NewPriceMirror(a.deps, pool.ID, pool.Mint))
	}
	for page := a.cfg.PageStart; page < a.cfg.PageEnd; page++ {
		a.pages = append(a.pages, mirror.NewPageMirror(a.deps, uint16(page)))
	}
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if cfg.TelegramBotToken == "" {
		return notify.NopNotifier{}, nil
	}
	notifier, err := notify.NewTelegramNotifier(&notify.TelegramConfig{
		Token:  cfg.TelegramBotToken,
		ChatID: cfg.TelegramChatID,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

func (a *App) setupWallet(client *wallet.Client) error {
	owner := a.signer.PublicKey()

	if a.cfg.WalletPollInterval > 0 {
		tracker, err := wallet.New(&wallet.Config{
			Client:       client,
			Address:      owner,
			PollInterval: a.cfg.WalletPollInterval,
			Logger:       a.logger,
		})
		if err != nil {
			return fmt.Errorf("create wallet tracker: %w", err)
		}
		a.tracker = tracker
	}

	if !a.cfg.CircuitBreakerEnabled {
		return nil
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   a.cfg.CircuitBreakerCheckInterval,
		TradeMultiplier: a.cfg.CircuitBreakerTradeMultiplier,
		MinAbsolute:     a.cfg.CircuitBreakerMinAbsolute,
		HysteresisRatio: a.cfg.CircuitBreakerHysteresisRatio,
		Wallet:          client,
		Address:         owner,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("create circuit breaker: %w", err)
	}
	a.breaker = breaker
	return nil
}

func (a *App) setupExecutor(opts *Options) (*execution.Executor, error) {
	tokenCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "token-accounts",
		NumCounters: 10000, // 10x expected max items
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create token account cache: %w", err)
	}
	a.tokenCache = tokenCache

	resolver, err := accounts.NewCachedResolver(a.rpc, tokenCache, a.cfg.TokenAccountCacheTTL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create token account resolver: %w", err)
	}

	venues := opts.Venues
	if venues == nil {
		venues, err = setupVenues(a.cfg, a.pools, a.logger)
		if err != nil {
			return nil, err
		}
	}

	var (
		builder   execution.LiquidationBuilder = execution.PaperBuilder{}
		submitter execution.Submitter
	)
	if a.cfg.ExecutionMode == config.ModeLive {
		builder = opts.LiquidationBuilder
		submitter, err = execution.NewLedgerSubmitter(a.rpc, opts.Encoder, a.actions)
		if err != nil {
			return nil, err
		}
	} else {
		submitter = execution.NewPaperSubmitter(a.actions)
	}

	return execution.New(&execution.Config{
		Signer:           a.signer,
		Pools:            a.pools,
		Venues:           venues,
		Builder:          builder,
		Submitter:        submitter,
		Accounts:         resolver,
		Balances:         a.rpc,
		MaxTradeSlippage: a.cfg.MaxTradeSlippage,
		MinSwapValueUSD:  a.cfg.MinSwapValueUSD,
		SettlementDelay:  a.cfg.SettlementDelay,
		ClearResidual:    a.cfg.ClearResidual,
		Logger:           a.actions,
	})
}

// setupVenues registers one venue per swap token: the HTTP aggregator in live
// mode and memo swaps otherwise.
func setupVenues(cfg *config.Config, pools *config.Pools, logger *zap.Logger) (*swap.Registry, error) {
	var venue swap.Venue = swap.PaperVenue{}
	if cfg.ExecutionMode == config.ModeLive {
		aggregator, err := swap.NewAggregatorVenue(&swap.AggregatorConfig{
			BaseURL:        cfg.SwapAggregatorURL,
			Timeout:        cfg.SwapTimeout,
			MaxSlippageBps: cfg.SwapMaxSlippageBps,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create swap aggregator: %w", err)
		}
		venue = aggregator
	}

	registry := swap.NewRegistry()
	for _, pool := range pools.All() {
		if pool.SwapToken == "" {
			continue
		}
		registry.Register(pool.SwapToken, venue)
	}

	logger.Info("swap-venues-registered",
		zap.String("venue", venue.Name()),
		zap.Strings("tokens", registry.Tokens()))

	return registry, nil
}

func (a *App) setupCoordinator(notifier notify.Notifier) error {
	prices := make([]coordinator.PriceSource, 0, len(a.prices))
	for _, p := range a.prices {
		prices = append(prices, p)
	}

	cfg := &coordinator.Config{
		Borrowers:          coordinator.Pages(a.pages),
		Prices:             prices,
		Pools:              a.pools,
		Storage:            a.storage,
		Notifier:           notifier,
		Readiness:          a.healthChecker,
		Mode:               a.cfg.ExecutionMode,
		EvaluationInterval: a.cfg.EvaluationInterval,
		Cooldown:           a.cfg.Cooldown,
		PriceWaitPoll:      a.cfg.PriceWaitPoll,
		MaxLiquidationUSD:  a.cfg.MaxLiquidationUSD,
		Logger:             a.actions,
	}
	if a.executor != nil {
		cfg.Executor = a.executor
	}
	if a.breaker != nil {
		cfg.Breaker = a.breaker
	}

	coord, err := coordinator.New(cfg)
	if err != nil {
		return err
	}
	a.coordinator = coord
	return nil
}

func (a *App) setupHealthChecks() {
	a.healthChecker.AddCheck("prices", func() error {
		if !a.coordinator.PricesReady() {
			return errors.New("waiting for prices")
		}
		return nil
	})

	if a.wsPool != nil {
		a.healthChecker.AddCheck("websocket", func() error {
			if !a.wsPool.Connected() {
				return errors.New("no connected sessions")
			}
			return nil
		})
	}
}

func (a *App) setupHTTPServer() *httpserver.Server {
	cfg := &httpserver.Config{
		Port:          a.cfg.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		Borrowers:     a.coordinator,
	}
	if a.breaker != nil {
		breaker := a.breaker
		cfg.CircuitBreaker = func() any { return breaker.GetStatus() }
	}
	return httpserver.New(cfg)
}
