package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"telegram-clicker/internal/model"
)

const taskColumns = `id, title, description, points, type, category, image, call_to_action, task_data, is_active, created_at, updated_at`

// TaskRepository handles task definition persistence.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a new TaskRepository instance.
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		task     model.Task
		taskData []byte
	)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Points,
		&task.Type,
		&task.Category,
		&task.Image,
		&task.CallToAction,
		&taskData,
		&task.IsActive,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.TaskData = taskData
	return &task, nil
}

// taskDataArg returns nil for absent or JSON null task data so it is stored as SQL NULL.
func taskDataArg(task *model.Task) []byte {
	if !task.HasTaskData() {
		return nil
	}
	return task.TaskData
}

// Create inserts a task. An empty ID is replaced with a new UUID.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	const query = `
		INSERT INTO tasks (id, title, description, points, type, category, image, call_to_action, task_data, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING ` + taskColumns

	id := task.ID
	if id == "" {
		id = uuid.NewString()
	}

	created, err := scanTask(r.db.QueryRow(ctx, query,
		id,
		task.Title,
		task.Description,
		task.Points,
		task.Type,
		task.Category,
		task.Image,
		task.CallToAction,
		taskDataArg(task),
		task.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return created, nil
}

// GetByID retrieves a task by ID.
// Returns ErrTaskNotFound if the task does not exist.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// List returns tasks ordered by category and creation time.
func (r *TaskRepository) List(ctx context.Context, activeOnly bool) ([]*model.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE is_active OR NOT $1
		ORDER BY category, created_at, id
	`

	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// Update overwrites the mutable fields of an existing task.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) (*model.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $2, description = $3, points = $4, type = $5, category = $6,
			image = $7, call_to_action = $8, task_data = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns

	updated, err := scanTask(r.db.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Points,
		task.Type,
		task.Category,
		task.Image,
		task.CallToAction,
		taskDataArg(task),
		task.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return updated, nil
}

// Count returns the number of tasks.
func (r *TaskRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
