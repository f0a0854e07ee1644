/*

The wallet repository owns custody policy: one usable wallet per user. It
composes the row-level store with the key vault; plaintext key material only
ever leaves it as a TxSigner capability, never as a printable value.

*/

package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/keyvault"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrWalletNotFound   = errors.New("no wallet record for user")
	ErrWalletExists     = errors.New("user already has a wallet")
	ErrDuplicateWallets = errors.New("multiple wallet records for user, reconcile required")
	ErrNoValidWallet    = errors.New("no wallet record with a usable key")
	ErrKeyGeneration    = errors.New("key pair generation failed")
)

var repoLogger = logger.GetForComponent("wallet_repository")

// minKeyBytes is the smallest decoded length a plausible secp256k1 private key
// can have. Anything shorter is treated as corrupt.
const minKeyBytes = 32

// Store is the persistence surface the repository needs: row CRUD with a
// userID filter and created_at ordering. state.WalletStore is the live
// implementation.
type Store interface {
	GetByUser(ctx context.Context, userID string) ([]types.WalletRecord, error)
	Insert(ctx context.Context, rec types.WalletRecord) error
	UpdateKey(ctx context.Context, id string, address string, encryptedKey string) error
	Delete(ctx context.Context, id string) error
}

// Repository manages per-user custodial wallets.
type Repository struct {
	store Store
	vault *keyvault.Vault
}

// NewRepository creates a wallet repository.
func NewRepository(store Store, vault *keyvault.Vault) (*Repository, error) {
	if store == nil {
		return nil, errors.New("wallet store is required")
	}
	if vault == nil {
		return nil, errors.New("key vault is required")
	}
	return &Repository{store: store, vault: vault}, nil
}

// GetWallet returns the single canonical record for a user. Multiple records
// are a data-integrity condition surfaced as ErrDuplicateWallets; the caller
// repairs them with Reconcile rather than this method silently picking one.
func (r *Repository) GetWallet(ctx context.Context, userID string) (*types.WalletRecord, error) {
	records, err := r.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, userID)
	case 1:
		rec := records[0]
		return &rec, nil
	default:
		return nil, fmt.Errorf("%w: %s has %d records", ErrDuplicateWallets, userID, len(records))
	}
}

// CreateWallet generates a fresh key pair for a user with no wallet yet.
func (r *Repository) CreateWallet(ctx context.Context, userID string) (*types.WalletRecord, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}

	existing, err := r.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrWalletExists, userID)
	}

	address, blob, err := r.generateEncryptedKey()
	if err != nil {
		return nil, err
	}

	rec := types.WalletRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Address:      address,
		EncryptedKey: blob,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	repoLogger.Info().
		Str("userId", userID).
		Str("address", rec.Address).
		Msg("Wallet created")

	return &rec, nil
}

// Reconcile repairs the duplicate-wallet anomaly. It keeps the most recent
// record whose encrypted key decrypts and decodes to a plausible private key,
// deletes every other record for the user, and returns the survivor. Running it
// twice with no intervening writes yields the same surviving record.
func (r *Repository) Reconcile(ctx context.Context, userID string) (*types.WalletRecord, error) {
	records, err := r.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, userID)
	}

	// Records arrive ordered by created_at ascending; walk backwards so the
	// most recent usable key wins.
	survivor := -1
	for i := len(records) - 1; i >= 0; i-- {
		if r.keyUsable(records[i].EncryptedKey) {
			survivor = i
			break
		}
	}
	if survivor < 0 {
		// Leave the rows in place for operator inspection.
		return nil, fmt.Errorf("%w: %s", ErrNoValidWallet, userID)
	}

	for i, rec := range records {
		if i == survivor {
			continue
		}
		if err := r.store.Delete(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("failed to delete duplicate wallet %s: %w", rec.ID, err)
		}
		repoLogger.Warn().
			Str("userId", userID).
			Str("walletId", rec.ID).
			Str("address", rec.Address).
			Msg("Duplicate wallet record removed")
	}

	rec := records[survivor]
	return &rec, nil
}

// RotateWallet replaces the user's key pair. Address and encrypted key are
// overwritten in a single atomic update; the prior key becomes unrecoverable,
// so callers must have already drained the old address or not need it.
func (r *Repository) RotateWallet(ctx context.Context, userID string) (*types.WalletRecord, error) {
	rec, err := r.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	address, blob, err := r.generateEncryptedKey()
	if err != nil {
		return nil, err
	}

	if err := r.store.UpdateKey(ctx, rec.ID, address, blob); err != nil {
		return nil, err
	}

	repoLogger.Warn().
		Str("userId", userID).
		Str("oldAddress", rec.Address).
		Str("newAddress", address).
		Msg("Wallet key rotated")

	rec.Address = address
	rec.EncryptedKey = blob
	return rec, nil
}

// GetSigningMaterial resolves and decrypts a user's key in one step, returning
// it as a signing capability. Integrity and format failures from the vault
// propagate untouched; they are never recovered automatically.
func (r *Repository) GetSigningMaterial(ctx context.Context, userID string) (*chain.TxSigner, error) {
	rec, err := r.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	plaintext, err := r.vault.Decrypt(rec.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", rec.ID, err)
	}

	signer, err := chain.NewTxSigner(plaintext)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", rec.ID, err)
	}
	return signer, nil
}

// keyUsable reports whether an encrypted blob decrypts to something shaped
// like a private key.
func (r *Repository) keyUsable(blob string) bool {
	plaintext, err := r.vault.Decrypt(blob)
	if err != nil {
		return false
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(plaintext, "0x"))
	if err != nil {
		return false
	}
	return len(decoded) >= minKeyBytes
}

// generateEncryptedKey creates a new secp256k1 key pair and returns the derived
// address plus the vault-sealed private key.
func (r *Repository) generateEncryptedKey() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", errors.Join(ErrKeyGeneration, err)
	}

	plaintext := hex.EncodeToString(crypto.FromECDSA(key))
	blob, err := r.vault.Encrypt(plaintext)
	if err != nil {
		return "", "", err
	}

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), blob, nil
}
