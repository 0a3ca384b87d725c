package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/pkg/db"
)

// queries binds the per-table repositories to one DBTX (the pool or a transaction).
type queries struct {
	users     *UserRepository
	tasks     *TaskRepository
	userTasks *UserTaskRepository
	ledger    *TransactionRepository
	inTx      bool
}

func newQueries(db DBTX, inTx bool) *queries {
	return &queries{
		users:     NewUserRepository(db),
		tasks:     NewTaskRepository(db),
		userTasks: NewUserTaskRepository(db),
		ledger:    NewTransactionRepository(db),
		inTx:      inTx,
	}
}

func (q *queries) GetUserByTelegramID(ctx context.Context, telegramID string) (*model.User, error) {
	return q.users.GetByTelegramID(ctx, telegramID)
}

func (q *queries) CreateUser(ctx context.Context, telegramID, username string) (*model.User, error) {
	return q.users.Create(ctx, telegramID, username)
}

func (q *queries) IncrementUserPoints(ctx context.Context, userID string, amount int64) (*model.User, error) {
	return q.users.IncrementPoints(ctx, userID, amount)
}

func (q *queries) CountUsers(ctx context.Context) (int64, error) {
	return q.users.Count(ctx)
}

func (q *queries) ExportUsers(ctx context.Context, fields []string, offset, limit int) ([]map[string]any, error) {
	return q.users.Export(ctx, fields, offset, limit)
}

func (q *queries) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return q.tasks.GetByID(ctx, id)
}

func (q *queries) ListTasks(ctx context.Context, activeOnly bool) ([]*model.Task, error) {
	return q.tasks.List(ctx, activeOnly)
}

func (q *queries) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	return q.tasks.Create(ctx, task)
}

func (q *queries) UpdateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	return q.tasks.Update(ctx, task)
}

func (q *queries) CountTasks(ctx context.Context) (int64, error) {
	return q.tasks.Count(ctx)
}

func (q *queries) GetUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	return q.userTasks.Get(ctx, userID, taskID, q.inTx)
}

func (q *queries) ListUserTasks(ctx context.Context, userID string) ([]*model.UserTask, error) {
	return q.userTasks.ListByUser(ctx, userID)
}

func (q *queries) StartUserTask(ctx context.Context, userID, taskID string, startedAt time.Time) (*model.UserTask, bool, error) {
	return q.userTasks.Start(ctx, userID, taskID, startedAt)
}

func (q *queries) CompleteUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	return q.userTasks.Complete(ctx, id)
}

func (q *queries) RecordPointsTransaction(ctx context.Context, userID string, amount int64, txType, reference string) (*model.PointsTransaction, error) {
	return q.ledger.Create(ctx, userID, amount, txType, reference)
}

func (q *queries) ListPointsTransactions(ctx context.Context, userID string, limit int) ([]*model.PointsTransaction, error) {
	return q.ledger.GetByUserID(ctx, userID, limit)
}

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	*queries
	pool *db.Pool
}

// NewPostgresStore creates a store over an open pool. Close closes the pool.
func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{
		queries: newQueries(pool.Pool, false),
		pool:    pool,
	}
}

// RunInTx runs fn in a SERIALIZABLE transaction. The transaction commits if fn
// returns nil and rolls back otherwise.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(newQueries(tx, true))
	})
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
