// ./internal/state/wallet_store.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ampere-labs/poolbot/internal/types"
)

// WalletStore provides row-level CRUD over wallet records. It implements the
// wallet.Store interface; repair/rotation policy lives above it, in the
// repository, not here.
type WalletStore struct {
	db *sql.DB
}

// NewWalletStore creates a wallet store over an initialized connection pool.
func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

// GetByUser returns all wallet records for a user ordered by created_at
// ascending. More than one row is a data-integrity condition the repository
// handles via Reconcile.
func (s *WalletStore) GetByUser(ctx context.Context, userID string) ([]types.WalletRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_id, user_id, address, encrypted_key, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at ASC;`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets for user %s: %w", userID, err)
	}
	defer rows.Close()

	var records []types.WalletRecord
	for rows.Next() {
		var rec types.WalletRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Address, &rec.EncryptedKey, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wallet row iteration failed: %w", err)
	}
	return records, nil
}

// Insert persists a new wallet record.
func (s *WalletStore) Insert(ctx context.Context, rec types.WalletRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (wallet_id, user_id, address, encrypted_key, created_at)
		VALUES ($1, $2, $3, $4, $5);`,
		rec.ID, rec.UserID, rec.Address, rec.EncryptedKey, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert wallet for user %s: %w", rec.UserID, err)
	}
	return nil
}

// UpdateKey overwrites a record's address and encrypted key in a single atomic
// update. The prior key becomes unrecoverable.
func (s *WalletStore) UpdateKey(ctx context.Context, id string, address string, encryptedKey string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET address = $2, encrypted_key = $3 WHERE wallet_id = $1;`,
		id, address, encryptedKey)
	if err != nil {
		return fmt.Errorf("failed to update wallet %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for wallet %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("wallet %s does not exist", id)
	}
	return nil
}

// Delete removes a wallet record by id.
func (s *WalletStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE wallet_id = $1;`, id); err != nil {
		return fmt.Errorf("failed to delete wallet %s: %w", id, err)
	}
	return nil
}
