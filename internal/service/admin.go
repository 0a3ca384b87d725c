package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

// DefaultExportPageSize is the number of users per export page.
const DefaultExportPageSize = 100000

// AdminService manages task definitions and exports user data.
type AdminService struct {
	store          repository.Store
	exportPageSize int
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(store repository.Store, exportPageSize int) *AdminService {
	if exportPageSize <= 0 {
		exportPageSize = DefaultExportPageSize
	}
	return &AdminService{
		store:          store,
		exportPageSize: exportPageSize,
	}
}

// ListTasks returns every task, active or not.
func (s *AdminService) ListTasks(ctx context.Context) ([]*model.Task, error) {
	tasks, err := s.store.ListTasks(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// CreateTask validates and stores a new task definition.
func (s *AdminService) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	if err := validateTask(task); err != nil {
		return nil, err
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	log.Info().
		Str("task_id", created.ID).
		Str("type", string(created.Type)).
		Int64("points", created.Points).
		Msg("Task created")

	return created, nil
}

// UpdateTask applies patch to the task with the given id.
func (s *AdminService) UpdateTask(ctx context.Context, id string, patch *model.TaskPatch) (*model.Task, error) {
	if id == "" || patch == nil {
		return nil, ErrInvalidRequest
	}

	var updated *model.Task
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}

		patch.Apply(task)
		if err := validateTask(task); err != nil {
			return err
		}

		updated, err = tx.UpdateTask(ctx, task)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			return nil, ErrTaskNotFound
		case errors.Is(err, ErrInvalidRequest):
			return nil, err
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	log.Info().Str("task_id", id).Msg("Task updated")

	return updated, nil
}

// ExportUsers returns one page (0-based) of users restricted to fields.
func (s *AdminService) ExportUsers(ctx context.Context, fields []string, page int) (*model.UserExportPage, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields selected", ErrInvalidRequest)
	}
	if page < 0 {
		page = 0
	}

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	totalPages := int((total + int64(s.exportPageSize) - 1) / int64(s.exportPageSize))

	// Pages past the end are empty; page*size could overflow for them.
	if page >= totalPages {
		for _, field := range fields {
			if _, ok := model.UserExportFields[field]; !ok {
				return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, repository.ErrUnknownExportField, field)
			}
		}
		return &model.UserExportPage{
			Users:      []map[string]any{},
			Page:       page,
			TotalPages: totalPages,
			HasMore:    false,
		}, nil
	}

	users, err := s.store.ExportUsers(ctx, fields, page*s.exportPageSize, s.exportPageSize)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownExportField) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("failed to export users: %w", err)
	}

	return &model.UserExportPage{
		Users:      users,
		Page:       page,
		TotalPages: totalPages,
		HasMore:    page < totalPages-1,
	}, nil
}

func validateTask(task *model.Task) error {
	switch {
	case strings.TrimSpace(task.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	case task.Points < 0:
		return fmt.Errorf("%w: points must not be negative", ErrInvalidRequest)
	case !task.Type.Valid():
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, task.Type)
	}
	return nil
}
