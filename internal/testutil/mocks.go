package testutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

// MemorySource is an in-memory ledger.AccountSource. Set stores account data
// and pushes it to any open subscription.
type MemorySource struct {
	mu       sync.Mutex
	accounts map[ledger.Address][]byte
	handlers map[ledger.SubscriptionID]sourceSub
	nextID   ledger.SubscriptionID
}

type sourceSub struct {
	addr    ledger.Address
	handler ledger.AccountHandler
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		accounts: make(map[ledger.Address][]byte),
		handlers: make(map[ledger.SubscriptionID]sourceSub),
	}
}

// Set stores data for addr and notifies subscribers.
func (m *MemorySource) Set(addr ledger.Address, data []byte) {
	m.mu.Lock()
	m.accounts[addr] = data
	var handlers []ledger.AccountHandler
	for _, sub := range m.handlers {
		if sub.addr == addr {
			handlers = append(handlers, sub.handler)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(&ledger.Account{Data: data})
	}
}

// FetchAccount implements ledger.Fetcher. Unknown accounts return (nil, nil).
func (m *MemorySource) FetchAccount(_ context.Context, addr ledger.Address) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return &ledger.Account{Data: data}, nil
}

// SubscribeAccount implements ledger.Subscriber.
func (m *MemorySource) SubscribeAccount(_ context.Context, addr ledger.Address, _ ledger.Commitment, h ledger.AccountHandler) (ledger.SubscriptionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.handlers[m.nextID] = sourceSub{addr: addr, handler: h}
	return m.nextID, nil
}

// Unsubscribe implements ledger.Subscriber.
func (m *MemorySource) Unsubscribe(_ context.Context, id ledger.SubscriptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[id]; !ok {
		return errors.New("unknown subscription")
	}
	delete(m.handlers, id)
	return nil
}

// Subscriptions returns the number of open subscriptions.
func (m *MemorySource) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// MemoryStorage records attempts in memory.
type MemoryStorage struct {
	mu       sync.Mutex
	attempts []types.LiquidationAttempt
	closed   bool
}

// StoreAttempt implements storage.Storage.
func (s *MemoryStorage) StoreAttempt(_ context.Context, attempt *types.LiquidationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

// Close implements storage.Storage.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Attempts returns a copy of the recorded attempts.
func (s *MemoryStorage) Attempts() []types.LiquidationAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LiquidationAttempt(nil), s.attempts...)
}

// Closed reports whether Close was called.
func (s *MemoryStorage) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockNode is a JSON-RPC 2.0 HTTP server answering with canned results per method.
type MockNode struct {
	*httptest.Server

	mu      sync.Mutex
	results map[string]any
	calls   map[string]int
}

// NewMockNode starts a node. Methods without a result answer with a
// method-not-found error.
func NewMockNode() *MockNode {
	node := &MockNode{
		results: make(map[string]any),
		calls:   make(map[string]int),
	}
	node.Server = httptest.NewServer(http.HandlerFunc(node.serve))
	return node
}

// NewWalletNode starts a node that reports an empty wallet: zero native
// balance, no token accounts, and a fixed blockhash.
func NewWalletNode() *MockNode {
	node := NewMockNode()
	node.On("getBalance", map[string]any{"context": map[string]any{"slot": 1}, "value": 0})
	node.On("getTokenAccountsByOwner", map[string]any{"context": map[string]any{"slot": 1}, "value": []any{}})
	node.On("getTokenAccountBalance", map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   map[string]any{"amount": "0", "decimals": 6},
	})
	node.On("getLatestBlockhash", map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   map[string]any{"blockhash": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"},
	})
	return node
}

// On sets the result returned for method.
func (n *MockNode) On(method string, result any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results[method] = result
}

// Calls returns how often method was requested.
func (n *MockNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *MockNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	result, ok := n.results[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = result
	} else {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
