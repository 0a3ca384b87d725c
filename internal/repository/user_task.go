package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"telegram-clicker/internal/model"
)

const userTaskColumns = `id, user_id, task_id, task_start_timestamp, is_completed, created_at, updated_at`

// UserTaskRepository handles per-user task progress persistence.
type UserTaskRepository struct {
	db DBTX
}

// NewUserTaskRepository creates a new UserTaskRepository instance.
func NewUserTaskRepository(db DBTX) *UserTaskRepository {
	return &UserTaskRepository{db: db}
}

func scanUserTask(row pgx.Row) (*model.UserTask, error) {
	var ut model.UserTask
	err := row.Scan(
		&ut.ID,
		&ut.UserID,
		&ut.TaskID,
		&ut.TaskStartTimestamp,
		&ut.IsCompleted,
		&ut.CreatedAt,
		&ut.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ut, nil
}

// Get retrieves the progress record for (userID, taskID).
// With forUpdate the row stays locked until the surrounding transaction ends.
func (r *UserTaskRepository) Get(ctx context.Context, userID, taskID string, forUpdate bool) (*model.UserTask, error) {
	query := `SELECT ` + userTaskColumns + ` FROM user_tasks WHERE user_id = $1 AND task_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	ut, err := scanUserTask(r.db.QueryRow(ctx, query, userID, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserTaskNotFound
		}
		return nil, fmt.Errorf("failed to get user task: %w", err)
	}

	return ut, nil
}

// ListByUser returns every progress record of a user.
func (r *UserTaskRepository) ListByUser(ctx context.Context, userID string) ([]*model.UserTask, error) {
	const query = `SELECT ` + userTaskColumns + ` FROM user_tasks WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tasks: %w", err)
	}
	defer rows.Close()

	var userTasks []*model.UserTask
	for rows.Next() {
		ut, err := scanUserTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user task: %w", err)
		}
		userTasks = append(userTasks, ut)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user tasks: %w", err)
	}

	return userTasks, nil
}

// Start creates the progress record if it does not exist yet.
// Returns the record and whether it was newly created; an existing record keeps its start time.
func (r *UserTaskRepository) Start(ctx context.Context, userID, taskID string, startedAt time.Time) (*model.UserTask, bool, error) {
	const query = `
		INSERT INTO user_tasks (id, user_id, task_id, task_start_timestamp, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
		ON CONFLICT (user_id, task_id) DO NOTHING
		RETURNING ` + userTaskColumns

	ut, err := scanUserTask(r.db.QueryRow(ctx, query, uuid.NewString(), userID, taskID, startedAt))
	if err == nil {
		return ut, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to start user task: %w", err)
	}

	// Conflict: the task was already started.
	ut, err = r.Get(ctx, userID, taskID, false)
	if err != nil {
		return nil, false, err
	}
	return ut, false, nil
}

// Complete flips is_completed to true. It never resets a completed record:
// ErrUserTaskCompleted is returned if the record was already completed.
func (r *UserTaskRepository) Complete(ctx context.Context, id string) (*model.UserTask, error) {
	const query = `
		UPDATE user_tasks
		SET is_completed = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT is_completed
		RETURNING ` + userTaskColumns

	ut, err := scanUserTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserTaskCompleted
		}
		return nil, fmt.Errorf("failed to complete user task: %w", err)
	}

	return ut, nil
}
