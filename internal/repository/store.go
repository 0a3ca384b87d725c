// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"telegram-clicker/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrTaskNotFound          = errors.New("task not found")
	ErrUserTaskNotFound      = errors.New("user task not found")
	ErrUserTaskCompleted     = errors.New("user task already completed")
	ErrUnknownExportField    = errors.New("unknown export field")
	ErrSerializationConflict = errors.New("transaction serialization conflict")
)

// pgSerializationFailure is SQLSTATE serialization_failure.
const pgSerializationFailure = "40001"

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the set of record operations the services need. A Store exposes
// them directly (autocommit) and inside RunInTx.
type Tx interface {
	GetUserByTelegramID(ctx context.Context, telegramID string) (*model.User, error)
	CreateUser(ctx context.Context, telegramID, username string) (*model.User, error)
	IncrementUserPoints(ctx context.Context, userID string, amount int64) (*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
	ExportUsers(ctx context.Context, fields []string, offset, limit int) ([]map[string]any, error)

	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, activeOnly bool) ([]*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) (*model.Task, error)
	CountTasks(ctx context.Context) (int64, error)

	// GetUserTask locks the progress row when called inside RunInTx.
	GetUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error)
	ListUserTasks(ctx context.Context, userID string) ([]*model.UserTask, error)
	StartUserTask(ctx context.Context, userID, taskID string, startedAt time.Time) (*model.UserTask, bool, error)
	CompleteUserTask(ctx context.Context, id string) (*model.UserTask, error)

	RecordPointsTransaction(ctx context.Context, userID string, amount int64, txType, reference string) (*model.PointsTransaction, error)
	ListPointsTransactions(ctx context.Context, userID string, limit int) ([]*model.PointsTransaction, error)
}

// Store is the durable store handle. RunInTx executes fn with serializable
// isolation; fn returning an error rolls back every write it made.
type Store interface {
	Tx
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// IsSerializationFailure reports whether err is a transaction conflict that
// a caller may resolve by re-issuing the whole operation.
func IsSerializationFailure(err error) bool {
	if errors.Is(err, ErrSerializationConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}
