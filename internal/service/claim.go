package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

// IdentityVerifier turns signed init data into a verified identity.
type IdentityVerifier interface {
	Verify(initData string) (*model.Identity, error)
}

// ClaimService credits users for completed VISIT tasks.
type ClaimService struct {
	store    repository.Store
	verifier IdentityVerifier
	clock    clockwork.Clock
	wait     time.Duration
}

// NewClaimService creates a new ClaimService instance.
func NewClaimService(
	store repository.Store,
	verifier IdentityVerifier,
	clock clockwork.Clock,
	wait time.Duration,
) *ClaimService {
	return &ClaimService{
		store:    store,
		verifier: verifier,
		clock:    clock,
		wait:     wait,
	}
}

// ClaimVisitTask completes a started VISIT task once the wait time has elapsed
// and adds the task reward to the user's points and points balance.
//
// While the wait is still running it returns a result with Success=false and
// the remaining whole seconds (rounded up), and changes nothing. Every other
// failure is returned as an error; a failed transaction is a *ClaimFailedError.
func (s *ClaimService) ClaimVisitTask(ctx context.Context, initData, taskID string) (*model.ClaimResult, error) {
	if initData == "" || taskID == "" {
		return nil, ErrInvalidRequest
	}

	identity, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	var result *model.ClaimResult
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var txErr error
		result, txErr = s.claim(ctx, tx, identity.ID, taskID)
		return txErr
	})
	if err != nil {
		if isKnownError(err) {
			return nil, err
		}
		log.Error().
			Err(err).
			Str("telegram_id", identity.ID).
			Str("task_id", taskID).
			Msg("Claim transaction failed")
		return nil, &ClaimFailedError{Cause: err}
	}

	if result.Success {
		log.Info().
			Str("telegram_id", identity.ID).
			Str("task_id", taskID).
			Msg("Visit task claimed")
	}

	return result, nil
}

// claim runs inside the transaction. Checks are ordered; the first failing one wins.
func (s *ClaimService) claim(ctx context.Context, tx repository.Tx, telegramID, taskID string) (*model.ClaimResult, error) {
	user, err := tx.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	if !task.IsActive {
		return nil, ErrTaskInactive
	}

	if task.Type != model.TaskTypeVisit || !task.HasTaskData() {
		return nil, ErrUnsupportedTaskType
	}

	if s.wait <= 0 {
		return nil, ErrWaitNotConfigured
	}

	userTask, err := tx.GetUserTask(ctx, user.ID, task.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserTaskNotFound) {
			return nil, ErrTaskNotStarted
		}
		return nil, err
	}

	if userTask.IsCompleted {
		return nil, ErrTaskAlreadyCompleted
	}

	waitEnd := userTask.TaskStartTimestamp.Add(s.wait)
	if now := s.clock.Now(); now.Before(waitEnd) {
		remaining := remainingSeconds(waitEnd.Sub(now))
		return &model.ClaimResult{
			Success:       false,
			Message:       fmt.Sprintf("Not enough time has passed. Please wait %d more seconds.", remaining),
			RemainingTime: &remaining,
		}, nil
	}

	completed, err := tx.CompleteUserTask(ctx, userTask.ID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.IncrementUserPoints(ctx, user.ID, task.Points); err != nil {
		return nil, err
	}

	if _, err := tx.RecordPointsTransaction(ctx, user.ID, task.Points, model.PointsTxTaskReward, task.ID); err != nil {
		return nil, err
	}

	return &model.ClaimResult{
		Success:     true,
		Message:     "Task completed successfully",
		IsCompleted: &completed.IsCompleted,
	}, nil
}

// remainingSeconds rounds a positive duration up to whole seconds.
func remainingSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
