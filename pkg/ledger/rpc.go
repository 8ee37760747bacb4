package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RPCClient talks JSON-RPC 2.0 to a ledger node over HTTP.
type RPCClient struct {
	client     *gethrpc.Client
	logger     *zap.Logger
	commitment Commitment
	confirm    ConfirmConfig
}

// RPCConfig holds RPC client configuration.
type RPCConfig struct {
	URL        string
	Timeout    time.Duration
	Commitment Commitment
	Confirm    ConfirmConfig
	Logger     *zap.Logger
}

// ConfirmConfig controls signature status polling.
type ConfirmConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffMult    float64
	Timeout        time.Duration
}

// DefaultConfirmConfig returns the polling schedule used when none is configured.
func DefaultConfirmConfig() ConfirmConfig {
	return ConfirmConfig{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		BackoffMult:    1.5,
		Timeout:        60 * time.Second,
	}
}

// NewRPCClient dials the RPC endpoint.
func NewRPCClient(ctx context.Context, cfg *RPCConfig) (*RPCClient, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("rpc url cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client, err := gethrpc.DialOptions(ctx, cfg.URL, gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	commitment := cfg.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	confirm := cfg.Confirm
	if confirm.Timeout <= 0 {
		confirm = DefaultConfirmConfig()
	}

	return &RPCClient{
		client:     client,
		logger:     cfg.Logger,
		commitment: commitment,
		confirm:    confirm,
	}, nil
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

// AccountValue is the base64 account encoding shared by RPC responses and
// subscription notifications.
type AccountValue struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

type accountInfoResult struct {
	Context rpcContext    `json:"context"`
	Value   *AccountValue `json:"value"`
}

// Decode converts the value into an Account. A nil value yields nil.
func (v *AccountValue) Decode(slot uint64) (*Account, error) {
	if v == nil {
		return nil, nil
	}
	if len(v.Data) == 0 {
		return nil, errors.New("account value missing data")
	}
	if len(v.Data) > 1 && v.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account encoding %q", v.Data[1])
	}

	data, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}

	return &Account{
		Data:     data,
		Owner:    Address(v.Owner),
		Lamports: v.Lamports,
		Slot:     slot,
	}, nil
}

// FetchAccount reads one account. It returns (nil, nil) when the account does not exist.
func (c *RPCClient) FetchAccount(ctx context.Context, addr Address) (*Account, error) {
	var result accountInfoResult
	err := c.call(ctx, &result, "getAccountInfo", addr.String(), map[string]any{
		"encoding":   "base64",
		"commitment": c.commitment,
	})
	if err != nil {
		return nil, err
	}

	return result.Value.Decode(result.Context.Slot)
}

// LatestBlockhash returns the most recent blockhash.
func (c *RPCClient) LatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := c.call(ctx, &result, "getLatestBlockhash", map[string]any{"commitment": c.commitment})
	if err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits a signed wire transaction.
func (c *RPCClient) SendTransaction(ctx context.Context, raw []byte) (Signature, error) {
	var sig string
	err := c.call(ctx, &sig, "sendTransaction", base64.StdEncoding.EncodeToString(raw), map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	})
	if err != nil {
		return "", err
	}
	return Signature(sig), nil
}

// SignatureStatus is the node's view of one submitted transaction.
type SignatureStatus struct {
	Slot               uint64 `json:"slot"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

// SignatureStatus returns nil when the node has not seen the signature yet.
func (c *RPCClient) SignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error) {
	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.call(ctx, &result, "getSignatureStatuses", []string{string(sig)}, map[string]any{
		"searchTransactionHistory": true,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// Balance returns the native balance of addr in lamports.
func (c *RPCClient) Balance(ctx context.Context, addr Address) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.call(ctx, &result, "getBalance", addr.String(), map[string]any{"commitment": c.commitment})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// TokenAmount is a token balance in base units.
type TokenAmount struct {
	Amount   uint64
	Decimals uint8
}

type tokenAmountJSON struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

func (t tokenAmountJSON) parse() (TokenAmount, error) {
	amount, err := strconv.ParseUint(t.Amount, 10, 64)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("parse token amount %q: %w", t.Amount, err)
	}
	return TokenAmount{Amount: amount, Decimals: t.Decimals}, nil
}

// TokenAccountBalance returns the balance held by a token account.
func (c *RPCClient) TokenAccountBalance(ctx context.Context, tokenAccount Address) (TokenAmount, error) {
	var result struct {
		Value tokenAmountJSON `json:"value"`
	}
	err := c.call(ctx, &result, "getTokenAccountBalance", tokenAccount.String(), map[string]any{"commitment": c.commitment})
	if err != nil {
		return TokenAmount{}, err
	}
	return result.Value.parse()
}

// TokenAccount is a token account owned by a wallet.
type TokenAccount struct {
	Address Address
	Mint    Address
	Balance TokenAmount
}

// TokenAccountsByOwner lists owner's token accounts for mint.
func (c *RPCClient) TokenAccountsByOwner(ctx context.Context, owner, mint Address) ([]TokenAccount, error) {
	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string          `json:"mint"`
							TokenAmount tokenAmountJSON `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	err := c.call(ctx, &result, "getTokenAccountsByOwner", owner.String(),
		map[string]string{"mint": mint.String()},
		map[string]any{"encoding": "jsonParsed", "commitment": c.commitment},
	)
	if err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		info := v.Account.Data.Parsed.Info
		balance, parseErr := info.TokenAmount.parse()
		if parseErr != nil {
			return nil, parseErr
		}
		accounts = append(accounts, TokenAccount{
			Address: Address(v.Pubkey),
			Mint:    Address(info.Mint),
			Balance: balance,
		})
	}
	return accounts, nil
}

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := c.client.CallContext(ctx, result, method, args...)
	RPCDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		RPCRequestsTotal.WithLabelValues(method, "error").Inc()
		c.logger.Debug("rpc-call-failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}

	RPCRequestsTotal.WithLabelValues(method, "ok").Inc()
	return nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.client.Close()
}
