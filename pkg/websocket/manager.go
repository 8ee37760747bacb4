package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when a request is made without a live connection.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrUnknownSubscription is returned by Unsubscribe for an id it never issued.
	ErrUnknownSubscription = errors.New("unknown subscription")

	errConnectionLost = errors.New("connection lost before response")
)

// Manager owns one JSON-RPC pubsub connection and multiplexes account
// subscriptions over it. Subscriptions survive reconnects: every registered
// subscription is reopened on the new connection.
type Manager struct {
	url          string
	conn         *websocket.Conn
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex // guards conn
	writeMu      sync.Mutex   // one writer at a time

	notifications chan notification

	nextRequestID atomic.Uint64
	pendingMu     sync.Mutex
	pending       map[uint64]chan rpcResponse

	nextLocalID atomic.Uint64
	subsMu      sync.RWMutex
	subs        map[ledger.SubscriptionID]*subscription
	byServerID  map[uint64]ledger.SubscriptionID

	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64 // Unix timestamp of connection start
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	RequestTimeout        time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	NotificationBuffer    int
	Logger                *zap.Logger
}

type subscription struct {
	id         ledger.SubscriptionID
	addr       ledger.Address
	commitment ledger.Commitment
	handler    ledger.AccountHandler
	serverID   uint64
	live       bool
}

type notification struct {
	id    ledger.SubscriptionID
	slot  uint64
	value *ledger.AccountValue
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// envelope covers both responses (id set) and notifications (method set).
type envelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type accountNotification struct {
	Subscription uint64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value *ledger.AccountValue `json:"value"`
	} `json:"result"`
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = 1024
	}

	return &Manager{
		url:           cfg.URL,
		logger:        cfg.Logger,
		reconnectMgr:  NewReconnectManager(reconnectCfg, cfg.Logger),
		config:        cfg,
		ctx:           ctx,
		cancel:        cancel,
		notifications: make(chan notification, cfg.NotificationBuffer),
		pending:       make(map[uint64]chan rpcResponse),
		subs:          make(map[ledger.SubscriptionID]*subscription),
		byServerID:    make(map[uint64]ledger.SubscriptionID),
	}
}

// Start dials the endpoint and starts the background loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(4)
	go m.readLoop()
	go m.dispatchLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes a WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	m.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		m.extendReadDeadline(conn)
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Inc()

	m.logger.Info("websocket-connected")

	return nil
}

func (m *Manager) extendReadDeadline(conn *websocket.Conn) {
	if m.config.PongTimeout <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(m.config.PongTimeout))
}

// SubscribeAccount opens an account subscription. While the connection is
// down the subscription is registered and opened after the next reconnect.
func (m *Manager) SubscribeAccount(
	ctx context.Context,
	addr ledger.Address,
	commitment ledger.Commitment,
	handler ledger.AccountHandler,
) (ledger.SubscriptionID, error) {
	err := addr.Validate()
	if err != nil {
		return 0, err
	}
	if handler == nil {
		return 0, errors.New("handler cannot be nil")
	}

	sub := &subscription{
		id:         ledger.SubscriptionID(m.nextLocalID.Add(1)),
		addr:       addr,
		commitment: commitment,
		handler:    handler,
	}

	m.subsMu.Lock()
	m.subs[sub.id] = sub
	total := len(m.subs)
	m.subsMu.Unlock()
	SubscriptionCount.Set(float64(total))

	err = m.open(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrNotConnected) || errors.Is(err, errConnectionLost) {
			m.logger.Warn("subscription-deferred",
				zap.String("address", addr.String()),
				zap.Error(err))
			return sub.id, nil
		}

		m.subsMu.Lock()
		delete(m.subs, sub.id)
		total = len(m.subs)
		m.subsMu.Unlock()
		SubscriptionCount.Set(float64(total))

		return 0, fmt.Errorf("subscribe %s: %w", addr, err)
	}

	m.logger.Debug("account-subscribed",
		zap.String("address", addr.String()),
		zap.Uint64("subscription-id", uint64(sub.id)))

	return sub.id, nil
}

// open sends accountSubscribe for sub and records the server-side id.
func (m *Manager) open(ctx context.Context, sub *subscription) error {
	result, err := m.request(ctx, "accountSubscribe", []any{
		sub.addr.String(),
		map[string]string{"encoding": "base64", "commitment": string(sub.commitment)},
	})
	if err != nil {
		return err
	}

	var serverID uint64
	err = json.Unmarshal(result, &serverID)
	if err != nil {
		return fmt.Errorf("decode subscription id: %w", err)
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	if _, ok := m.subs[sub.id]; !ok {
		// Unsubscribed while the request was in flight.
		go m.closeServerSub(serverID)
		return nil
	}
	sub.serverID = serverID
	sub.live = true
	m.byServerID[serverID] = sub.id

	return nil
}

// Unsubscribe closes a subscription opened by SubscribeAccount.
func (m *Manager) Unsubscribe(ctx context.Context, id ledger.SubscriptionID) error {
	m.subsMu.Lock()
	sub, ok := m.subs[id]
	if !ok {
		m.subsMu.Unlock()
		return ErrUnknownSubscription
	}
	delete(m.subs, id)
	live, serverID := sub.live, sub.serverID
	if live {
		delete(m.byServerID, serverID)
	}
	total := len(m.subs)
	m.subsMu.Unlock()

	SubscriptionCount.Set(float64(total))
	UnsubscriptionsTotal.Inc()

	if !live || !m.connected.Load() {
		return nil
	}

	_, err := m.request(ctx, "accountUnsubscribe", []any{serverID})
	if err != nil && !errors.Is(err, ErrNotConnected) && !errors.Is(err, errConnectionLost) {
		return fmt.Errorf("unsubscribe %s: %w", sub.addr, err)
	}

	return nil
}

func (m *Manager) closeServerSub(serverID uint64) {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.RequestTimeout)
	defer cancel()

	_, err := m.request(ctx, "accountUnsubscribe", []any{serverID})
	if err != nil {
		m.logger.Debug("orphan-unsubscribe-failed", zap.Uint64("server-id", serverID), zap.Error(err))
	}
}

// request sends one JSON-RPC call and waits for its response.
func (m *Manager) request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if !m.connected.Load() {
		return nil, ErrNotConnected
	}

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	id := m.nextRequestID.Add(1)
	respCh := make(chan rpcResponse, 1)

	m.pendingMu.Lock()
	m.pending[id] = respCh
	m.pendingMu.Unlock()

	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	m.writeMu.Lock()
	err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	m.writeMu.Unlock()
	if err != nil {
		RequestsTotal.WithLabelValues(method, "write_error").Inc()
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(m.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.err != nil {
			RequestsTotal.WithLabelValues(method, "error").Inc()
			return nil, resp.err
		}
		RequestsTotal.WithLabelValues(method, "success").Inc()
		return resp.result, nil
	case <-timer.C:
		RequestsTotal.WithLabelValues(method, "timeout").Inc()
		return nil, fmt.Errorf("%s: response timeout after %s", method, m.config.RequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.markDisconnected()
			return
		}

		m.handleMessage(message)
	}
}

func (m *Manager) handleMessage(message []byte) {
	var env envelope
	err := json.Unmarshal(message, &env)
	if err != nil {
		previewLen := min(len(message), 100)
		m.logger.Debug("websocket-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(message)),
			zap.String("preview", string(message[:previewLen])))
		return
	}

	if env.ID != nil {
		MessagesReceivedTotal.WithLabelValues("response").Inc()
		m.resolve(*env.ID, env)
		return
	}

	if env.Method != "accountNotification" {
		MessagesReceivedTotal.WithLabelValues("other").Inc()
		m.logger.Debug("websocket-control-message", zap.String("method", env.Method))
		return
	}
	MessagesReceivedTotal.WithLabelValues("account_notification").Inc()

	var note accountNotification
	err = json.Unmarshal(env.Params, &note)
	if err != nil {
		m.logger.Warn("notification-decode-failed", zap.Error(err))
		return
	}

	m.subsMu.RLock()
	id, ok := m.byServerID[note.Subscription]
	m.subsMu.RUnlock()
	if !ok {
		MessagesDroppedTotal.WithLabelValues("unknown_subscription").Inc()
		return
	}

	select {
	case m.notifications <- notification{id: id, slot: note.Result.Context.Slot, value: note.Result.Value}:
	default:
		m.logger.Warn("notification-channel-full", zap.Uint64("subscription-id", uint64(id)))
		MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

func (m *Manager) resolve(id uint64, env envelope) {
	m.pendingMu.Lock()
	ch, ok := m.pending[id]
	delete(m.pending, id)
	m.pendingMu.Unlock()
	if !ok {
		return
	}

	resp := rpcResponse{result: env.Result}
	if env.Error != nil {
		resp.err = env.Error
	}
	ch <- resp
}

// dispatchLoop delivers notifications to handlers outside the read loop, so a
// handler may issue requests of its own.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case note := <-m.notifications:
			start := time.Now()
			m.dispatch(note)
			MessageLatencySeconds.Observe(time.Since(start).Seconds())
		}
	}
}

func (m *Manager) dispatch(note notification) {
	m.subsMu.RLock()
	sub, ok := m.subs[note.id]
	m.subsMu.RUnlock()
	if !ok {
		return
	}

	account, err := note.value.Decode(note.slot)
	if err != nil {
		m.logger.Warn("notification-account-decode-failed",
			zap.String("address", sub.addr.String()),
			zap.Error(err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscription-handler-panic",
				zap.String("address", sub.addr.String()),
				zap.Any("panic", r))
		}
	}()

	sub.handler(account)
}

func (m *Manager) markDisconnected() {
	if m.connected.Swap(false) {
		ActiveConnections.Dec()
	}

	m.pendingMu.Lock()
	for id, ch := range m.pending {
		ch <- rpcResponse{err: errConnectionLost}
		delete(m.pending, id)
	}
	m.pendingMu.Unlock()

	m.subsMu.Lock()
	for _, sub := range m.subs {
		sub.live = false
	}
	m.byServerID = make(map[uint64]ledger.SubscriptionID)
	m.subsMu.Unlock()
}

// pingLoop sends periodic PING messages.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop handles reconnection when connection drops.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		// The read loop must be running before resubscribing so responses arrive.
		m.wg.Add(1)
		go m.readLoop()

		m.resubscribeAll(m.ctx)
	}
}

// resubscribeAll reopens every registered subscription on the current connection.
func (m *Manager) resubscribeAll(ctx context.Context) {
	m.subsMu.RLock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if !sub.live {
			subs = append(subs, sub)
		}
	}
	m.subsMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	failed := 0
	for _, sub := range subs {
		err := m.open(ctx, sub)
		if err != nil {
			failed++
			m.logger.Warn("resubscribe-failed",
				zap.String("address", sub.addr.String()),
				zap.Error(err))
		}
	}

	m.logger.Info("resubscribed-accounts",
		zap.Int("count", len(subs)-failed),
		zap.Int("failed", failed))
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// SubscriptionTotal returns the number of registered subscriptions.
func (m *Manager) SubscriptionTotal() int {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	return len(m.subs)
}

// Close gracefully closes the WebSocket manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	if m.connected.Swap(false) {
		ActiveConnections.Dec()
	}

	m.logger.Info("websocket-manager-closed")

	return nil
}
