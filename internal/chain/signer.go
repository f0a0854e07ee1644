package chain

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidPrivateKey = errors.New("private key is invalid")
)

// TxSigner wraps a secp256k1 private key as a signing capability. It is handed
// directly from the wallet repository to the executor; the scalar is never
// exposed through String or any other printable surface.
type TxSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewTxSigner parses a hex-encoded private key.
func NewTxSigner(hexKey string) (*TxSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, errors.Join(ErrInvalidPrivateKey, err)
	}
	return &TxSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewTxSignerFromKey wraps an already-generated key pair.
func NewTxSignerFromKey(key *ecdsa.PrivateKey) (*TxSigner, error) {
	if key == nil {
		return nil, ErrInvalidPrivateKey
	}
	return &TxSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the public chain address derived from the key pair.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// SignTx signs a transaction for the given chain ID (EIP-155).
func (s *TxSigner) SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), s.key)
}

// String prints only the derived address, never key material.
func (s *TxSigner) String() string {
	return s.address.Hex()
}
