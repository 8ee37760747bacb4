package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC requests with canned results keyed by method.
type fakeNode struct {
	mu      sync.Mutex
	results map[string][]any
	calls   map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{results: map[string][]any{}, calls: map[string]int{}}
}

// on queues results for method. The last result repeats once the queue is drained.
func (f *fakeNode) on(method string, results ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = append(f.results[method], results...)
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	queue := f.results[req.Method]
	idx := f.calls[req.Method]
	f.calls[req.Method]++
	f.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case len(queue) == 0:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	case idx >= len(queue):
		resp["result"] = queue[len(queue)-1]
	default:
		resp["result"] = queue[idx]
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, node *fakeNode) *RPCClient {
	t.Helper()

	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	client, err := NewRPCClient(context.Background(), &RPCConfig{
		URL:    srv.URL,
		Logger: zaptest.NewLogger(t),
		Confirm: ConfirmConfig{
			InitialBackoff: 5 * time.Millisecond,
			MaxBackoff:     10 * time.Millisecond,
			BackoffMult:    2,
			Timeout:        500 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestNewRPCClient_Validation(t *testing.T) {
	_, err := NewRPCClient(context.Background(), nil)
	if err == nil {
		t.Error("expected error for nil config")
	}

	_, err = NewRPCClient(context.Background(), &RPCConfig{Logger: zaptest.NewLogger(t)})
	if err == nil {
		t.Error("expected error for empty url")
	}
}

func TestRPCClient_FetchAccount(t *testing.T) {
	node := newFakeNode()
	payload := []byte{1, 2, 3, 4}
	node.on("getAccountInfo",
		map[string]any{
			"context": map[string]any{"slot": 42},
			"value": map[string]any{
				"data":     []string{base64.StdEncoding.EncodeToString(payload), "base64"},
				"owner":    string(TokenProgram),
				"lamports": 1000,
			},
		},
		map[string]any{"context": map[string]any{"slot": 43}, "value": nil},
	)

	client := newTestClient(t, node)
	ctx := context.Background()

	acct, err := client.FetchAccount(ctx, SystemProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct == nil {
		t.Fatal("expected account")
	}
	if string(acct.Data) != string(payload) {
		t.Errorf("expected data %v, got %v", payload, acct.Data)
	}
	if acct.Slot != 42 || acct.Lamports != 1000 || acct.Owner != TokenProgram {
		t.Errorf("unexpected account metadata: %+v", acct)
	}

	missing, err := client.FetchAccount(ctx, SystemProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing account, got %+v", missing)
	}
}

func TestRPCClient_RPCError(t *testing.T) {
	client := newTestClient(t, newFakeNode())

	_, err := client.FetchAccount(context.Background(), SystemProgram)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRPCClient_TokenAccountsByOwner(t *testing.T) {
	node := newFakeNode()
	node.on("getTokenAccountsByOwner", map[string]any{
		"context": map[string]any{"slot": 1},
		"value": []any{
			map[string]any{
				"pubkey": string(MemoProgram),
				"account": map[string]any{
					"data": map[string]any{
						"parsed": map[string]any{
							"info": map[string]any{
								"mint": string(TokenProgram),
								"tokenAmount": map[string]any{
									"amount":   "2500000",
									"decimals": 6,
								},
							},
						},
					},
				},
			},
		},
	})

	client := newTestClient(t, node)
	accounts, err := client.TokenAccountsByOwner(context.Background(), SystemProgram, TokenProgram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Address != MemoProgram || accounts[0].Balance.Amount != 2_500_000 || accounts[0].Balance.Decimals != 6 {
		t.Errorf("unexpected account: %+v", accounts[0])
	}
}

func TestRPCClient_ConfirmTransaction(t *testing.T) {
	t.Run("confirmed-after-polling", func(t *testing.T) {
		node := newFakeNode()
		node.on("getSignatureStatuses",
			map[string]any{"context": map[string]any{"slot": 1}, "value": []any{nil}},
			map[string]any{"context": map[string]any{"slot": 2}, "value": []any{
				map[string]any{"slot": 2, "err": nil, "confirmationStatus": "processed"},
			}},
			map[string]any{"context": map[string]any{"slot": 3}, "value": []any{
				map[string]any{"slot": 3, "err": nil, "confirmationStatus": "confirmed"},
			}},
		)

		client := newTestClient(t, node)
		err := client.ConfirmTransaction(context.Background(), "sig")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if node.count("getSignatureStatuses") != 3 {
			t.Errorf("expected 3 polls, got %d", node.count("getSignatureStatuses"))
		}
	})

	t.Run("failed-transaction", func(t *testing.T) {
		node := newFakeNode()
		node.on("getSignatureStatuses", map[string]any{"context": map[string]any{"slot": 1}, "value": []any{
			map[string]any{"slot": 1, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"},
		}})

		client := newTestClient(t, node)
		err := client.ConfirmTransaction(context.Background(), "sig")
		var txErr *TransactionError
		if !errors.As(err, &txErr) {
			t.Fatalf("expected TransactionError, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		node := newFakeNode()
		node.on("getSignatureStatuses", map[string]any{"context": map[string]any{"slot": 1}, "value": []any{nil}})

		client := newTestClient(t, node)
		err := client.ConfirmTransaction(context.Background(), "sig")
		if !errors.Is(err, ErrConfirmTimeout) {
			t.Fatalf("expected ErrConfirmTimeout, got %v", err)
		}
	})
}

func TestRPCClient_SendTransaction(t *testing.T) {
	node := newFakeNode()
	node.on("sendTransaction", "5igSig")
	node.on("getLatestBlockhash", map[string]any{"context": map[string]any{"slot": 1}, "value": map[string]any{"blockhash": "hash123"}})

	client := newTestClient(t, node)
	ctx := context.Background()

	hash, err := client.LatestBlockhash(ctx)
	if err != nil || hash != "hash123" {
		t.Fatalf("expected hash123, got %q (%v)", hash, err)
	}

	sig, err := client.SendTransaction(ctx, []byte{0xde, 0xad})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "5igSig" {
		t.Errorf("expected 5igSig, got %s", sig)
	}
}
