package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

// TaskService lists tasks and records task starts.
type TaskService struct {
	store    repository.Store
	accounts *AccountService
	clock    clockwork.Clock
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(store repository.Store, accounts *AccountService, clock clockwork.Clock) *TaskService {
	return &TaskService{
		store:    store,
		accounts: accounts,
		clock:    clock,
	}
}

// ListTasks returns the active tasks with the caller's progress on each.
func (s *TaskService) ListTasks(ctx context.Context, initData string) ([]*model.TaskProgress, error) {
	user, _, err := s.accounts.EnsureUser(ctx, initData)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	userTasks, err := s.store.ListUserTasks(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tasks: %w", err)
	}

	byTask := make(map[string]*model.UserTask, len(userTasks))
	for _, ut := range userTasks {
		byTask[ut.TaskID] = ut
	}

	progress := make([]*model.TaskProgress, 0, len(tasks))
	for _, task := range tasks {
		p := &model.TaskProgress{Task: *task}
		if ut, ok := byTask[task.ID]; ok {
			started := ut.TaskStartTimestamp
			p.TaskStartTimestamp = &started
			p.IsStarted = true
			p.IsCompleted = ut.IsCompleted
		}
		progress = append(progress, p)
	}

	return progress, nil
}

// StartTask records that the caller began a task. Starting an already started
// task returns the existing record unchanged, so the wait clock is never reset.
func (s *TaskService) StartTask(ctx context.Context, initData, taskID string) (*model.UserTask, error) {
	if initData == "" || taskID == "" {
		return nil, ErrInvalidRequest
	}

	identity, err := s.accounts.Authenticate(initData)
	if err != nil {
		return nil, err
	}

	user, err := s.accounts.GetUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if !task.IsActive {
		return nil, ErrTaskInactive
	}

	userTask, created, err := s.store.StartUserTask(ctx, user.ID, task.ID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	if created {
		log.Info().
			Str("telegram_id", identity.ID).
			Str("task_id", task.ID).
			Msg("Task started")
	}

	return userTask, nil
}
