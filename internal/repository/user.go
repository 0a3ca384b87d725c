package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"telegram-clicker/internal/model"
)

const userColumns = `id, telegram_id, username, points, points_balance, created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.Points,
		&user.PointsBalance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user with zero points.
func (r *UserRepository) Create(ctx context.Context, telegramID, username string) (*model.User, error) {
	const query = `
		INSERT INTO users (id, telegram_id, username, points, points_balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, uuid.NewString(), telegramID, username))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetByTelegramID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// IncrementPoints adds amount to both the lifetime total and the spendable balance.
func (r *UserRepository) IncrementPoints(ctx context.Context, userID string, amount int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET points = points + $2, points_balance = points_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to increment points: %w", err)
	}

	return user, nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Export selects the requested fields of a page of users, ordered by creation.
// Fields are JSON names from model.UserExportFields; the result maps use the same names.
func (r *UserRepository) Export(ctx context.Context, fields []string, offset, limit int) ([]map[string]any, error) {
	selects := make([]string, 0, len(fields))
	for _, field := range fields {
		column, ok := model.UserExportFields[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExportField, field)
		}
		selects = append(selects, pgx.Identifier{column}.Sanitize()+" AS "+pgx.Identifier{field}.Sanitize())
	}

	query := `SELECT ` + strings.Join(selects, ", ") + ` FROM users ORDER BY created_at, id OFFSET $1 LIMIT $2`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}

	users, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan exported users: %w", err)
	}

	return users, nil
}
