package app

import (
	"context"
	"sync"

	"github.com/mselser95/lending-liquidator/internal/circuitbreaker"
	"github.com/mselser95/lending-liquidator/internal/coordinator"
	"github.com/mselser95/lending-liquidator/internal/execution"
	"github.com/mselser95/lending-liquidator/internal/mirror"
	"github.com/mselser95/lending-liquidator/internal/scheduler"
	"github.com/mselser95/lending-liquidator/internal/storage"
	"github.com/mselser95/lending-liquidator/pkg/cache"
	"github.com/mselser95/lending-liquidator/pkg/config"
	"github.com/mselser95/lending-liquidator/pkg/healthprobe"
	"github.com/mselser95/lending-liquidator/pkg/httpserver"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/protocol"
	"github.com/mselser95/lending-liquidator/pkg/swap"
	"github.com/mselser95/lending-liquidator/pkg/wallet"
	"github.com/mselser95/lending-liquidator/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	updates *zap.Logger
	actions *zap.Logger

	pools     *config.Pools
	addresses *protocol.AddressBook
	signer    ledger.Signer

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	rpc           *ledger.RPCClient
	wsPool        *websocket.Pool
	scheduler     *scheduler.Scheduler
	deps          *mirror.Deps
	pages         []*mirror.PageMirror
	prices        []*mirror.PriceMirror
	tokenCache    *cache.RistrettoCache
	executor      *execution.Executor
	breaker       *circuitbreaker.BalanceCircuitBreaker
	tracker       *wallet.Tracker
	storage       storage.Storage
	coordinator   *coordinator.Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options injects collaborators that the configuration alone cannot provide.
type Options struct {
	// Encoder serializes and signs transactions. Required in live mode.
	Encoder ledger.TransactionEncoder
	// LiquidationBuilder builds the protocol's liquidation instruction.
	// Required in live mode; paper mode uses memo instructions.
	LiquidationBuilder execution.LiquidationBuilder
	// Venues overrides the swap venues derived from the pool table.
	Venues *swap.Registry
	// Decoder overrides the default fixed-layout account decoder.
	Decoder mirror.Decoder
	// Source overrides the RPC and websocket account source.
	Source ledger.AccountSource
	// Storage overrides the configured attempt storage.
	Storage storage.Storage
}
