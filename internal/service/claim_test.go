package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

const testWait = 30 * time.Second

// fakeVerifier accepts init data strings it knows about.
type fakeVerifier map[string]*model.Identity

func (v fakeVerifier) Verify(initData string) (*model.Identity, error) {
	identity, ok := v[initData]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return identity, nil
}

type claimFixture struct {
	store    *repository.MemoryStore
	clock    *clockwork.FakeClock
	claims   *ClaimService
	accounts *AccountService
	tasks    *TaskService
}

func newClaimFixture(t *testing.T, wait time.Duration) *claimFixture {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	verifier := fakeVerifier{
		"alice": {ID: "1001", Username: "alice"},
		"bob":   {ID: "1002", FirstName: "Bob"},
	}
	accounts := NewAccountService(store, verifier)

	return &claimFixture{
		store:    store,
		clock:    clock,
		claims:   NewClaimService(store, verifier, clock, wait),
		accounts: accounts,
		tasks:    NewTaskService(store, accounts, clock),
	}
}

func (f *claimFixture) createTask(t *testing.T, task *model.Task) *model.Task {
	t.Helper()
	created, err := f.store.CreateTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func (f *claimFixture) visitTask(t *testing.T, points int64) *model.Task {
	t.Helper()
	return f.createTask(t, &model.Task{
		Title:    "Visit our site",
		Points:   points,
		Type:     model.TaskTypeVisit,
		Category: "Social",
		TaskData: json.RawMessage(`{"link":"https://example.com"}`),
		IsActive: true,
	})
}

// startedVisit registers alice and starts a fresh VISIT task at the current fake time.
func (f *claimFixture) startedVisit(t *testing.T, points int64) (*model.User, *model.Task) {
	t.Helper()
	ctx := context.Background()

	user, _, err := f.accounts.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	task := f.visitTask(t, points)
	_, err = f.tasks.StartTask(ctx, "alice", task.ID)
	require.NoError(t, err)

	return user, task
}

func (f *claimFixture) user(t *testing.T, telegramID string) *model.User {
	t.Helper()
	user, err := f.store.GetUserByTelegramID(context.Background(), telegramID)
	require.NoError(t, err)
	return user
}

func TestClaimVisitTask_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newClaimFixture(t, testWait)
	_, task := f.startedVisit(t, 150)

	f.clock.Advance(10 * time.Second)
	result, err := f.claims.ClaimVisitTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.Pending())
	require.NotNil(t, result.RemainingTime)
	assert.Equal(t, int64(20), *result.RemainingTime)
	assert.Equal(t, "Not enough time has passed. Please wait 20 more seconds.", result.Message)
	assert.Zero(t, f.user(t, "1001").Points)

	f.clock.Advance(20 * time.Second)
	result, err = f.claims.ClaimVisitTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Task completed successfully", result.Message)
	require.NotNil(t, result.IsCompleted)
	assert.True(t, *result.IsCompleted)
	assert.Nil(t, result.RemainingTime)

	user := f.user(t, "1001")
	assert.Equal(t, int64(150), user.Points)
	assert.Equal(t, int64(150), user.PointsBalance)

	_, err = f.claims.ClaimVisitTask(ctx, "alice", task.ID)
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)

	user = f.user(t, "1001")
	assert.Equal(t, int64(150), user.Points)
	assert.Equal(t, int64(150), user.PointsBalance)

	ledger, err := f.accounts.RecentTransactions(ctx, &model.Identity{ID: "1001"}, 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(150), ledger[0].Amount)
	assert.Equal(t, model.PointsTxTaskReward, ledger[0].Type)
	assert.Equal(t, task.ID, ledger[0].Reference)
}

func TestClaimVisitTask_TimeGate(t *testing.T) {
	ctx := context.Background()

	t.Run("one millisecond early is pending", func(t *testing.T) {
		f := newClaimFixture(t, testWait)
		_, task := f.startedVisit(t, 100)

		f.clock.Advance(testWait - time.Millisecond)
		result, err := f.claims.ClaimVisitTask(ctx, "alice", task.ID)
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.NotNil(t, result.RemainingTime)
		assert.Equal(t, int64(1), *result.RemainingTime)
	})

	t.Run("exactly the wait time succeeds", func(t *testing.T) {
		f := newClaimFixture(t, testWait)
		_, task := f.startedVisit(t, 100)

		f.clock.Advance(testWait)
		result, err := f.claims.ClaimVisitTask(ctx, "alice", task.ID)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, int64(100), f.user(t, "1001").Points)
	})

	t.Run("pending claim does not complete the task", func(t *testing.T) {
		f := newClaimFixture(t, testWait)
		user, task := f.startedVisit(t, 100)

		_, err := f.claims.ClaimVisitTask(ctx, "alice", task.ID)
		require.NoError(t, err)

		ut, err := f.store.GetUserTask(ctx, user.ID, task.ID)
		require.NoError(t, err)
		assert.False(t, ut.IsCompleted)

		ledger, err := f.store.ListPointsTransactions(ctx, user.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, ledger)
	})
}

func TestClaimVisitTask_NoDoubleCredit(t *testing.T) {
	ctx := context.Background()
	f := newClaimFixture(t, testWait)
	_, task := f.startedVisit(t, 75)
	f.clock.Advance(testWait)

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		completed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.claims.ClaimVisitTask(ctx, "alice", task.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && result.Success:
				successes++
			case errors.Is(err, ErrTaskAlreadyCompleted):
				completed++
			default:
				t.Errorf("unexpected claim outcome: result=%v err=%v", result, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, completed)

	user := f.user(t, "1001")
	assert.Equal(t, int64(75), user.Points)
	assert.Equal(t, int64(75), user.PointsBalance)
}

func TestClaimVisitTask_OrderedChecks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, f *claimFixture) (initData, taskID string)
		wait    time.Duration
		wantErr error
	}{
		{
			name:    "missing init data",
			setup:   func(*testing.T, *claimFixture) (string, string) { return "", "task" },
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing task id",
			setup:   func(*testing.T, *claimFixture) (string, string) { return "alice", "" },
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "rejected init data",
			setup:   func(*testing.T, *claimFixture) (string, string) { return "mallory", "task" },
			wantErr: ErrUnauthorized,
		},
		{
			name: "unknown user wins over unknown task",
			setup: func(*testing.T, *claimFixture) (string, string) {
				return "bob", "no-such-task"
			},
			wantErr: ErrUserNotFound,
		},
		{
			name: "unknown task",
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, _, err := f.accounts.EnsureUser(ctx, "alice")
				require.NoError(t, err)
				return "alice", "no-such-task"
			},
			wantErr: ErrTaskNotFound,
		},
		{
			name: "inactive task",
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, task := f.startedVisit(t, 10)
				task.IsActive = false
				_, err := f.store.UpdateTask(ctx, task)
				require.NoError(t, err)
				return "alice", task.ID
			},
			wantErr: ErrTaskInactive,
		},
		{
			name: "non visit task",
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, _, err := f.accounts.EnsureUser(ctx, "alice")
				require.NoError(t, err)
				task := f.createTask(t, &model.Task{
					Title:    "Join channel",
					Points:   10,
					Type:     model.TaskTypeTelegram,
					TaskData: json.RawMessage(`{"chatId":"@news"}`),
					IsActive: true,
				})
				return "alice", task.ID
			},
			wantErr: ErrUnsupportedTaskType,
		},
		{
			name: "visit task without task data",
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, _, err := f.accounts.EnsureUser(ctx, "alice")
				require.NoError(t, err)
				task := f.createTask(t, &model.Task{
					Title:    "Visit",
					Points:   10,
					Type:     model.TaskTypeVisit,
					TaskData: json.RawMessage(`null`),
					IsActive: true,
				})
				return "alice", task.ID
			},
			wantErr: ErrUnsupportedTaskType,
		},
		{
			name: "wait time not configured",
			wait: -1,
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, task := f.startedVisit(t, 10)
				return "alice", task.ID
			},
			wantErr: ErrWaitNotConfigured,
		},
		{
			name: "task not started",
			setup: func(t *testing.T, f *claimFixture) (string, string) {
				_, _, err := f.accounts.EnsureUser(ctx, "alice")
				require.NoError(t, err)
				return "alice", f.visitTask(t, 10).ID
			},
			wantErr: ErrTaskNotStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait := testWait
			if tt.wait != 0 {
				wait = tt.wait
			}
			f := newClaimFixture(t, wait)
			initData, taskID := tt.setup(t, f)
			f.clock.Advance(time.Hour)

			result, err := f.claims.ClaimVisitTask(ctx, initData, taskID)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)

			var claimErr *ClaimFailedError
			assert.False(t, errors.As(err, &claimErr))
		})
	}
}

func TestClaimVisitTask_UnsupportedDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newClaimFixture(t, testWait)

	user, _, err := f.accounts.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	task := f.createTask(t, &model.Task{
		Title:    "Invite friends",
		Points:   500,
		Type:     model.TaskTypeReferral,
		TaskData: json.RawMessage(`{"friends":3}`),
		IsActive: true,
	})
	_, err = f.tasks.StartTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	_, err = f.claims.ClaimVisitTask(ctx, "alice", task.ID)
	require.ErrorIs(t, err, ErrUnsupportedTaskType)

	ut, err := f.store.GetUserTask(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, ut.IsCompleted)
	assert.Zero(t, f.user(t, "1001").Points)
}

// failingStore injects err into the balance update of every transaction.
type failingStore struct {
	*repository.MemoryStore
	err error
}

type failingTx struct {
	repository.Tx
	err error
}

func (tx failingTx) IncrementUserPoints(context.Context, string, int64) (*model.User, error) {
	return nil, tx.err
}

func (s *failingStore) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.MemoryStore.RunInTx(ctx, func(tx repository.Tx) error {
		return fn(failingTx{Tx: tx, err: s.err})
	})
}

func TestClaimVisitTask_StoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{name: "generic failure", err: errors.New("disk on fire")},
		{name: "serialization conflict", err: repository.ErrSerializationConflict, wantConflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newClaimFixture(t, testWait)
			user, task := f.startedVisit(t, 40)
			f.clock.Advance(testWait)

			claims := NewClaimService(&failingStore{MemoryStore: f.store, err: tt.err}, f.claims.verifier, f.clock, testWait)
			result, err := claims.ClaimVisitTask(ctx, "alice", task.ID)
			assert.Nil(t, result)

			var claimErr *ClaimFailedError
			require.ErrorAs(t, err, &claimErr)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantConflict, claimErr.Conflict())

			ut, err := f.store.GetUserTask(ctx, user.ID, task.ID)
			require.NoError(t, err)
			assert.False(t, ut.IsCompleted, "completion must roll back with the failed balance update")
			assert.Zero(t, f.user(t, "1001").Points)

			// The untouched store still accepts the claim afterwards.
			result, err = f.claims.ClaimVisitTask(ctx, "alice", task.ID)
			require.NoError(t, err)
			assert.True(t, result.Success)
		})
	}
}

func TestClaimVisitTask_IndependentTasks(t *testing.T) {
	ctx := context.Background()
	f := newClaimFixture(t, testWait)
	_, first := f.startedVisit(t, 100)
	second := f.visitTask(t, 50)
	_, err := f.tasks.StartTask(ctx, "alice", second.ID)
	require.NoError(t, err)

	f.clock.Advance(testWait)
	for _, id := range []string{first.ID, second.ID} {
		result, err := f.claims.ClaimVisitTask(ctx, "alice", id)
		require.NoError(t, err)
		assert.True(t, result.Success)
	}

	user := f.user(t, "1001")
	assert.Equal(t, int64(150), user.Points)
	assert.Equal(t, int64(150), user.PointsBalance)
}
