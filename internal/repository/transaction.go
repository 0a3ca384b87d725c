package repository

import (
	"context"
	"fmt"

	"telegram-clicker/internal/model"
)

const pointsTxColumns = `id, user_id, amount, type, reference, created_at`

// TransactionRepository handles the points ledger.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create records a points movement. A second task_reward for the same user and
// task violates a unique index.
func (r *TransactionRepository) Create(ctx context.Context, userID string, amount int64, txType, reference string) (*model.PointsTransaction, error) {
	const query = `
		INSERT INTO points_transactions (user_id, amount, type, reference, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + pointsTxColumns

	var tx model.PointsTransaction
	err := r.db.QueryRow(ctx, query, userID, amount, txType, reference).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Reference,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// GetByUserID retrieves a user's transactions, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.PointsTransaction, error) {
	const query = `
		SELECT ` + pointsTxColumns + `
		FROM points_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.PointsTransaction
	for rows.Next() {
		var tx model.PointsTransaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Type,
			&tx.Reference,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
