package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"go.uber.org/zap"
)

// Submitter sends instruction groups as one atomic transaction and waits for them.
type Submitter interface {
	SubmitTransaction(ctx context.Context, signer ledger.Signer, instructions []ledger.Instruction) (ledger.Signature, error)
	ConfirmTransaction(ctx context.Context, sig ledger.Signature) error
}

// TransactionRPC is the part of the ledger RPC used to land transactions.
type TransactionRPC interface {
	LatestBlockhash(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, raw []byte) (ledger.Signature, error)
	ConfirmTransaction(ctx context.Context, sig ledger.Signature) error
}

// LedgerSubmitter signs with an encoder and submits over RPC.
type LedgerSubmitter struct {
	rpc     TransactionRPC
	encoder ledger.TransactionEncoder
	logger  *zap.Logger
}

// NewLedgerSubmitter creates a live submitter.
func NewLedgerSubmitter(rpc TransactionRPC, encoder ledger.TransactionEncoder, logger *zap.Logger) (*LedgerSubmitter, error) {
	if rpc == nil {
		return nil, errors.New("rpc cannot be nil")
	}
	if encoder == nil {
		return nil, errors.New("transaction encoder cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &LedgerSubmitter{rpc: rpc, encoder: encoder, logger: logger}, nil
}

// SubmitTransaction implements Submitter.
func (s *LedgerSubmitter) SubmitTransaction(ctx context.Context, signer ledger.Signer, instructions []ledger.Instruction) (ledger.Signature, error) {
	if len(instructions) == 0 {
		return "", errors.New("no instructions to submit")
	}

	blockhash, err := s.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	raw, err := s.encoder.Encode(ctx, blockhash, signer, instructions)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	sig, err := s.rpc.SendTransaction(ctx, raw)
	if err != nil {
		TransactionsSubmittedTotal.WithLabelValues("live", "error").Inc()
		return "", fmt.Errorf("send transaction: %w", err)
	}

	TransactionsSubmittedTotal.WithLabelValues("live", "sent").Inc()
	s.logger.Info("transaction-sent",
		zap.String("signature", string(sig)),
		zap.Int("instructions", len(instructions)),
		zap.Int("bytes", len(raw)))

	return sig, nil
}

// ConfirmTransaction implements Submitter.
func (s *LedgerSubmitter) ConfirmTransaction(ctx context.Context, sig ledger.Signature) error {
	err := s.rpc.ConfirmTransaction(ctx, sig)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", sig, err)
	}
	return nil
}

// PaperTransaction is one transaction recorded by a PaperSubmitter.
type PaperTransaction struct {
	Signature    ledger.Signature
	Signer       ledger.Address
	Instructions []ledger.Instruction
}

// PaperSubmitter records transactions without sending them.
type PaperSubmitter struct {
	logger *zap.Logger

	mu           sync.Mutex
	transactions []PaperTransaction
}

// NewPaperSubmitter creates a paper submitter.
func NewPaperSubmitter(logger *zap.Logger) *PaperSubmitter {
	return &PaperSubmitter{logger: logger}
}

// SubmitTransaction implements Submitter.
func (p *PaperSubmitter) SubmitTransaction(_ context.Context, signer ledger.Signer, instructions []ledger.Instruction) (ledger.Signature, error) {
	if len(instructions) == 0 {
		return "", errors.New("no instructions to submit")
	}

	sig := ledger.Signature("paper-" + uuid.NewString())

	p.mu.Lock()
	p.transactions = append(p.transactions, PaperTransaction{
		Signature:    sig,
		Signer:       signer.PublicKey(),
		Instructions: instructions,
	})
	p.mu.Unlock()

	TransactionsSubmittedTotal.WithLabelValues("paper", "sent").Inc()
	for _, ix := range instructions {
		p.logger.Info("paper-instruction",
			zap.String("signature", string(sig)),
			zap.String("program", ix.ProgramID.String()),
			zap.String("data", string(ix.Data)))
	}

	return sig, nil
}

// ConfirmTransaction implements Submitter. Paper transactions confirm immediately.
func (p *PaperSubmitter) ConfirmTransaction(context.Context, ledger.Signature) error {
	return nil
}

// Transactions returns a copy of everything submitted so far.
func (p *PaperSubmitter) Transactions() []PaperTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PaperTransaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}
