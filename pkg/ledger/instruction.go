package ledger

import "context"

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	Address    Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// NewMemoInstruction builds a memo instruction signed by signer.
func NewMemoInstruction(signer Address, memo string) Instruction {
	return Instruction{
		ProgramID: MemoProgram,
		Accounts:  []AccountMeta{{Address: signer, IsSigner: true}},
		Data:      []byte(memo),
	}
}

// TransactionEncoder serializes and signs instructions into a wire transaction.
// Implementations are provided by the ledger SDK binding.
type TransactionEncoder interface {
	Encode(ctx context.Context, recentBlockhash string, payer Signer, instructions []Instruction) ([]byte, error)
}

// Fetcher performs one-shot account reads.
type Fetcher interface {
	FetchAccount(ctx context.Context, addr Address) (*Account, error)
}

// AccountHandler receives account state. A nil account means the account does not exist.
type AccountHandler func(account *Account)

// Subscriber manages push subscriptions to account changes.
type Subscriber interface {
	SubscribeAccount(ctx context.Context, addr Address, commitment Commitment, handler AccountHandler) (SubscriptionID, error)
	Unsubscribe(ctx context.Context, id SubscriptionID) error
}

// AccountSource combines one-shot reads and push subscriptions.
type AccountSource interface {
	Fetcher
	Subscriber
}

// Connection joins a Fetcher and a Subscriber into an AccountSource.
type Connection struct {
	Fetcher
	Subscriber
}
