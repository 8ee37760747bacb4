package ledger

import (
	"crypto/ed25519"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// Signer signs transaction messages on behalf of one account.
type Signer interface {
	PublicKey() Address
	Sign(message []byte) ([]byte, error)
}

// Keypair is an ed25519 Signer.
type Keypair struct {
	private ed25519.PrivateKey
	public  Address
}

// NewKeypair wraps a 64-byte ed25519 private key.
func NewKeypair(key ed25519.PrivateKey) (*Keypair, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}

	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type")
	}

	addr, err := AddressFromBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	return &Keypair{private: key, public: addr}, nil
}

// LoadKeypair reads a key file holding a JSON array of 64 bytes.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var ints []int
	err = json.Unmarshal(raw, &ints)
	if err != nil {
		return nil, fmt.Errorf("decode keypair file: %w", err)
	}

	key := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
		}
		key[i] = byte(v)
	}

	return NewKeypair(key)
}

// PublicKey returns the account address of the keypair.
func (k *Keypair) PublicKey() Address {
	return k.public
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.private, message), nil
}
