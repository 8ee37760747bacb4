package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// ErrQuoteBelowMinimum is returned when the best quote cannot satisfy MinBuyAmount.
var ErrQuoteBelowMinimum = errors.New("quote below minimum buy amount")

// AggregatorConfig configures an AggregatorVenue.
type AggregatorConfig struct {
	BaseURL string
	Timeout time.Duration
	// MaxSlippageBps bounds the slippage requested when MinBuyAmount is zero.
	MaxSlippageBps int
	Logger         *zap.Logger
}

// AggregatorVenue builds swaps through a quote/swap-instructions HTTP API.
type AggregatorVenue struct {
	baseURL        string
	httpClient     *http.Client
	maxSlippageBps int
	logger         *zap.Logger
}

type quoteResponse struct {
	raw       json.RawMessage
	OutAmount string `json:"outAmount"`
}

type apiAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type apiInstruction struct {
	ProgramID string           `json:"programId"`
	Accounts  []apiAccountMeta `json:"accounts"`
	Data      string           `json:"data"`
}

type swapInstructionsResponse struct {
	SetupInstructions  []apiInstruction `json:"setupInstructions"`
	SwapInstruction    *apiInstruction  `json:"swapInstruction"`
	CleanupInstruction *apiInstruction  `json:"cleanupInstruction"`
	Error              string           `json:"error"`
}

// NewAggregatorVenue creates a venue client.
func NewAggregatorVenue(cfg *AggregatorConfig) (*AggregatorVenue, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("aggregator base url cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBps := cfg.MaxSlippageBps
	if maxBps <= 0 {
		maxBps = 5000
	}

	return &AggregatorVenue{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxSlippageBps: maxBps,
		logger:         cfg.Logger,
	}, nil
}

// Name implements Venue.
func (a *AggregatorVenue) Name() string {
	return "aggregator"
}

// BuildSwap quotes the exact-in swap and fetches its instructions.
func (a *AggregatorVenue) BuildSwap(ctx context.Context, req *Request) ([]ledger.Instruction, error) {
	start := time.Now()
	defer func() {
		SwapBuildDurationSeconds.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
	}()

	if req.SellAmount == 0 {
		return nil, fmt.Errorf("swap %s->%s: zero sell amount", req.SellToken, req.BuyToken)
	}

	quote, err := a.quote(ctx, req, a.maxSlippageBps)
	if err != nil {
		SwapBuildsTotal.WithLabelValues(a.Name(), "quote_error").Inc()
		return nil, err
	}

	out, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote out amount %q: %w", quote.OutAmount, err)
	}

	bps, err := slippageBps(out, req.MinBuyAmount, a.maxSlippageBps)
	if err != nil {
		SwapBuildsTotal.WithLabelValues(a.Name(), "below_minimum").Inc()
		return nil, err
	}

	// Re-quote with the slippage that enforces MinBuyAmount.
	if bps != a.maxSlippageBps {
		quote, err = a.quote(ctx, req, bps)
		if err != nil {
			SwapBuildsTotal.WithLabelValues(a.Name(), "quote_error").Inc()
			return nil, err
		}
	}

	instructions, err := a.swapInstructions(ctx, req, quote)
	if err != nil {
		SwapBuildsTotal.WithLabelValues(a.Name(), "build_error").Inc()
		return nil, err
	}

	SwapBuildsTotal.WithLabelValues(a.Name(), "success").Inc()
	a.logger.Debug("swap-built",
		zap.String("sell-token", req.SellToken),
		zap.String("buy-token", req.BuyToken),
		zap.Uint64("sell-amount", req.SellAmount),
		zap.Uint64("quoted-out", out),
		zap.Int("slippage-bps", bps),
		zap.Int("instructions", len(instructions)))

	return instructions, nil
}

// slippageBps returns the tolerance that keeps the worst fill at or above minOut.
func slippageBps(quotedOut, minOut uint64, maxBps int) (int, error) {
	if minOut == 0 {
		return maxBps, nil
	}
	if quotedOut < minOut {
		return 0, fmt.Errorf("%w: quoted %d, need %d", ErrQuoteBelowMinimum, quotedOut, minOut)
	}
	// Round down so the tolerated fill never drops below minOut.
	bps := int((quotedOut - minOut) * 10000 / quotedOut)
	return min(bps, maxBps), nil
}

func (a *AggregatorVenue) quote(ctx context.Context, req *Request, bps int) (*quoteResponse, error) {
	params := url.Values{}
	params.Add("inputMint", req.SellMint.String())
	params.Add("outputMint", req.BuyMint.String())
	params.Add("amount", strconv.FormatUint(req.SellAmount, 10))
	params.Add("slippageBps", strconv.Itoa(bps))
	params.Add("swapMode", "ExactIn")

	requestURL := fmt.Sprintf("%s/quote?%s", a.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	body, err := a.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	quote := &quoteResponse{raw: body}
	err = json.Unmarshal(body, quote)
	if err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	return quote, nil
}

func (a *AggregatorVenue) swapInstructions(ctx context.Context, req *Request, quote *quoteResponse) ([]ledger.Instruction, error) {
	payload, err := json.Marshal(map[string]any{
		"quoteResponse":           quote.raw,
		"userPublicKey":           req.Beneficiary.String(),
		"destinationTokenAccount": req.BuyAccount.String(),
		"wrapAndUnwrapSol":        false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/swap-instructions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	body, err := a.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("swap instructions: %w", err)
	}

	var resp swapInstructionsResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return nil, fmt.Errorf("unmarshal swap instructions: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("swap instructions: %s", resp.Error)
	}
	if resp.SwapInstruction == nil {
		return nil, errors.New("swap instructions: response missing swap instruction")
	}

	raw := make([]apiInstruction, 0, len(resp.SetupInstructions)+2)
	raw = append(raw, resp.SetupInstructions...)
	raw = append(raw, *resp.SwapInstruction)
	if resp.CleanupInstruction != nil {
		raw = append(raw, *resp.CleanupInstruction)
	}

	out := make([]ledger.Instruction, 0, len(raw))
	for _, ix := range raw {
		converted, convErr := ix.toInstruction()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, converted)
	}
	return out, nil
}

func (a *AggregatorVenue) do(req *http.Request) ([]byte, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (ix apiInstruction) toInstruction() (ledger.Instruction, error) {
	program, err := ledger.ParseAddress(ix.ProgramID)
	if err != nil {
		return ledger.Instruction{}, fmt.Errorf("instruction program: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(ix.Data)
	if err != nil {
		return ledger.Instruction{}, fmt.Errorf("instruction data: %w", err)
	}

	metas := make([]ledger.AccountMeta, 0, len(ix.Accounts))
	for _, acc := range ix.Accounts {
		addr, parseErr := ledger.ParseAddress(acc.Pubkey)
		if parseErr != nil {
			return ledger.Instruction{}, fmt.Errorf("instruction account: %w", parseErr)
		}
		metas = append(metas, ledger.AccountMeta{Address: addr, IsSigner: acc.IsSigner, IsWritable: acc.IsWritable})
	}

	return ledger.Instruction{ProgramID: program, Accounts: metas, Data: data}, nil
}
