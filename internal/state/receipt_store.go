// ./internal/state/receipt_store.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ampere-labs/poolbot/internal/types"
)

// ReceiptStore persists swap receipts. This is caller-side bookkeeping: the
// executor itself never persists results, the bot records them here for the
// dashboard and for operator diagnosis.
type ReceiptStore struct {
	db *sql.DB
}

// NewReceiptStore creates a receipt store over an initialized connection pool.
func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// SaveSwapReceipt records the outcome of one swap attempt.
func (s *ReceiptStore) SaveSwapReceipt(ctx context.Context, userID string, result types.SwapResult) (int64, error) {
	amountOut := sql.NullString{}
	if result.AmountOut != nil {
		amountOut = sql.NullString{String: result.AmountOut.String(), Valid: true}
	}

	var receiptID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO swap_receipts (user_id, tx_hash, success, amount_in, amount_out_min, amount_out, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING receipt_id;`,
		userID, result.TxHash, result.Success,
		result.AmountIn.String(), result.AmountOutMin.String(), amountOut, result.Err,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save swap receipt: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("user_id", userID).
		Bool("success", result.Success).
		Str("tx_hash", result.TxHash).
		Msg("Swap receipt saved to database")

	return receiptID, nil
}

// ListRecent returns the most recent swap receipts, newest first.
func (s *ReceiptStore) ListRecent(ctx context.Context, limit int) ([]types.SwapReceipt, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, user_id, COALESCE(tx_hash, ''), success,
		       amount_in, amount_out_min, COALESCE(amount_out::text, ''), COALESCE(error_msg, ''), created_at
		FROM swap_receipts
		ORDER BY created_at DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.SwapReceipt
	for rows.Next() {
		var r types.SwapReceipt
		if err := rows.Scan(&r.ID, &r.UserID, &r.TxHash, &r.Success,
			&r.AmountIn, &r.AmountOutMin, &r.AmountOut, &r.ErrorMsg, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("swap receipt iteration failed: %w", err)
	}
	return receipts, nil
}
