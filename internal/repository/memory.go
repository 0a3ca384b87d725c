package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-clicker/internal/model"
)

// memoryData is the full state of a MemoryStore.
type memoryData struct {
	users     map[string]*model.User     // by ID
	tasks     map[string]*model.Task     // by ID
	userTasks map[string]*model.UserTask // by ID
	ledger    []*model.PointsTransaction
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:     make(map[string]*model.User),
		tasks:     make(map[string]*model.Task),
		userTasks: make(map[string]*model.UserTask),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for id, u := range d.users {
		u := *u
		c.users[id] = &u
	}
	for id, t := range d.tasks {
		t := *t
		c.tasks[id] = &t
	}
	for id, ut := range d.userTasks {
		ut := *ut
		c.userTasks[id] = &ut
	}
	// Ledger entries are never modified, so sharing them is safe.
	c.ledger = slices.Clone(d.ledger)
	return c
}

// MemoryStore is an in-process Store for local development and tests.
// Transactions run one at a time against a snapshot that replaces the live
// state only on commit, which makes them trivially serializable.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData(), now: time.Now}
}

// RunInTx runs fn against a snapshot and commits it if fn returns nil.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(&memoryTx{data: snapshot, now: s.now}); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}

// autocommit runs a single operation against the live state.
func (s *MemoryStore) autocommit() (*memoryTx, func()) {
	s.mu.Lock()
	return &memoryTx{data: s.data, now: s.now}, s.mu.Unlock
}

func (s *MemoryStore) GetUserByTelegramID(ctx context.Context, telegramID string) (*model.User, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.GetUserByTelegramID(ctx, telegramID)
}

func (s *MemoryStore) CreateUser(ctx context.Context, telegramID, username string) (*model.User, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.CreateUser(ctx, telegramID, username)
}

func (s *MemoryStore) IncrementUserPoints(ctx context.Context, userID string, amount int64) (*model.User, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.IncrementUserPoints(ctx, userID, amount)
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.CountUsers(ctx)
}

func (s *MemoryStore) ExportUsers(ctx context.Context, fields []string, offset, limit int) ([]map[string]any, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.ExportUsers(ctx, fields, offset, limit)
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.GetTask(ctx, id)
}

func (s *MemoryStore) ListTasks(ctx context.Context, activeOnly bool) ([]*model.Task, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.ListTasks(ctx, activeOnly)
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.CreateTask(ctx, task)
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.UpdateTask(ctx, task)
}

func (s *MemoryStore) CountTasks(ctx context.Context) (int64, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.CountTasks(ctx)
}

func (s *MemoryStore) GetUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.GetUserTask(ctx, userID, taskID)
}

func (s *MemoryStore) ListUserTasks(ctx context.Context, userID string) ([]*model.UserTask, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.ListUserTasks(ctx, userID)
}

func (s *MemoryStore) StartUserTask(ctx context.Context, userID, taskID string, startedAt time.Time) (*model.UserTask, bool, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.StartUserTask(ctx, userID, taskID, startedAt)
}

func (s *MemoryStore) RecordPointsTransaction(ctx context.Context, userID string, amount int64, txType, reference string) (*model.PointsTransaction, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.RecordPointsTransaction(ctx, userID, amount, txType, reference)
}

func (s *MemoryStore) ListPointsTransactions(ctx context.Context, userID string, limit int) ([]*model.PointsTransaction, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.ListPointsTransactions(ctx, userID, limit)
}

func (s *MemoryStore) CompleteUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	tx, unlock := s.autocommit()
	defer unlock()
	return tx.CompleteUserTask(ctx, id)
}

// memoryTx implements Tx over memoryData. The caller holds the store lock.
// Returned records are copies.
type memoryTx struct {
	data *memoryData
	now  func() time.Time
}

func (tx *memoryTx) GetUserByTelegramID(_ context.Context, telegramID string) (*model.User, error) {
	for _, u := range tx.data.users {
		if u.TelegramID == telegramID {
			u := *u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (tx *memoryTx) CreateUser(ctx context.Context, telegramID, username string) (*model.User, error) {
	if _, err := tx.GetUserByTelegramID(ctx, telegramID); err == nil {
		return nil, fmt.Errorf("failed to create user: telegram id %s already exists", telegramID)
	}
	now := tx.now()
	u := &model.User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Username:   username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx.data.users[u.ID] = u
	created := *u
	return &created, nil
}

func (tx *memoryTx) IncrementUserPoints(_ context.Context, userID string, amount int64) (*model.User, error) {
	u, ok := tx.data.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Points += amount
	u.PointsBalance += amount
	u.UpdatedAt = tx.now()
	updated := *u
	return &updated, nil
}

func (tx *memoryTx) CountUsers(context.Context) (int64, error) {
	return int64(len(tx.data.users)), nil
}

func (tx *memoryTx) ExportUsers(_ context.Context, fields []string, offset, limit int) ([]map[string]any, error) {
	for _, field := range fields {
		if _, ok := model.UserExportFields[field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExportField, field)
		}
	}

	users := make([]*model.User, 0, len(tx.data.users))
	for _, u := range tx.data.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b *model.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if offset < 0 || limit <= 0 || offset >= len(users) {
		return []map[string]any{}, nil
	}
	end := len(users)
	if limit < end-offset {
		end = offset + limit
	}
	users = users[offset:end]

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		all := map[string]any{
			"id":            u.ID,
			"telegramId":    u.TelegramID,
			"username":      u.Username,
			"points":        u.Points,
			"pointsBalance": u.PointsBalance,
			"createdAt":     u.CreatedAt,
			"updatedAt":     u.UpdatedAt,
		}
		row := make(map[string]any, len(fields))
		for _, field := range fields {
			row[field] = all[field]
		}
		out = append(out, row)
	}
	return out, nil
}

func (tx *memoryTx) GetTask(_ context.Context, id string) (*model.Task, error) {
	t, ok := tx.data.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	task := *t
	return &task, nil
}

func (tx *memoryTx) ListTasks(_ context.Context, activeOnly bool) ([]*model.Task, error) {
	var tasks []*model.Task
	for _, t := range tx.data.tasks {
		if activeOnly && !t.IsActive {
			continue
		}
		task := *t
		tasks = append(tasks, &task)
	}
	slices.SortFunc(tasks, func(a, b *model.Task) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return tasks, nil
}

func (tx *memoryTx) CreateTask(_ context.Context, task *model.Task) (*model.Task, error) {
	t := *task
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := tx.data.tasks[t.ID]; exists {
		return nil, fmt.Errorf("failed to create task: id %s already exists", t.ID)
	}
	if !t.HasTaskData() {
		t.TaskData = nil
	}
	now := tx.now()
	t.CreatedAt, t.UpdatedAt = now, now
	tx.data.tasks[t.ID] = &t
	created := t
	return &created, nil
}

func (tx *memoryTx) UpdateTask(_ context.Context, task *model.Task) (*model.Task, error) {
	existing, ok := tx.data.tasks[task.ID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	t := *task
	if !t.HasTaskData() {
		t.TaskData = nil
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = tx.now()
	tx.data.tasks[t.ID] = &t
	updated := t
	return &updated, nil
}

func (tx *memoryTx) CountTasks(context.Context) (int64, error) {
	return int64(len(tx.data.tasks)), nil
}

func (tx *memoryTx) findUserTask(userID, taskID string) *model.UserTask {
	for _, ut := range tx.data.userTasks {
		if ut.UserID == userID && ut.TaskID == taskID {
			return ut
		}
	}
	return nil
}

func (tx *memoryTx) GetUserTask(_ context.Context, userID, taskID string) (*model.UserTask, error) {
	ut := tx.findUserTask(userID, taskID)
	if ut == nil {
		return nil, ErrUserTaskNotFound
	}
	found := *ut
	return &found, nil
}

func (tx *memoryTx) ListUserTasks(_ context.Context, userID string) ([]*model.UserTask, error) {
	var out []*model.UserTask
	for _, ut := range tx.data.userTasks {
		if ut.UserID == userID {
			found := *ut
			out = append(out, &found)
		}
	}
	return out, nil
}

func (tx *memoryTx) StartUserTask(_ context.Context, userID, taskID string, startedAt time.Time) (*model.UserTask, bool, error) {
	if ut := tx.findUserTask(userID, taskID); ut != nil {
		found := *ut
		return &found, false, nil
	}
	if _, ok := tx.data.users[userID]; !ok {
		return nil, false, fmt.Errorf("failed to start user task: %w", ErrUserNotFound)
	}
	if _, ok := tx.data.tasks[taskID]; !ok {
		return nil, false, fmt.Errorf("failed to start user task: %w", ErrTaskNotFound)
	}
	now := tx.now()
	ut := &model.UserTask{
		ID:                 uuid.NewString(),
		UserID:             userID,
		TaskID:             taskID,
		TaskStartTimestamp: startedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx.data.userTasks[ut.ID] = ut
	created := *ut
	return &created, true, nil
}

func (tx *memoryTx) CompleteUserTask(_ context.Context, id string) (*model.UserTask, error) {
	ut, ok := tx.data.userTasks[id]
	if !ok || ut.IsCompleted {
		return nil, ErrUserTaskCompleted
	}
	ut.IsCompleted = true
	ut.UpdatedAt = tx.now()
	updated := *ut
	return &updated, nil
}

func (tx *memoryTx) RecordPointsTransaction(_ context.Context, userID string, amount int64, txType, reference string) (*model.PointsTransaction, error) {
	if _, ok := tx.data.users[userID]; !ok {
		return nil, fmt.Errorf("failed to create transaction: %w", ErrUserNotFound)
	}
	if txType == model.PointsTxTaskReward {
		for _, entry := range tx.data.ledger {
			if entry.UserID == userID && entry.Type == txType && entry.Reference == reference {
				return nil, fmt.Errorf("failed to create transaction: duplicate %s for %s", txType, reference)
			}
		}
	}
	entry := &model.PointsTransaction{
		ID:        int64(len(tx.data.ledger) + 1),
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		Reference: reference,
		CreatedAt: tx.now(),
	}
	tx.data.ledger = append(tx.data.ledger, entry)
	created := *entry
	return &created, nil
}

func (tx *memoryTx) ListPointsTransactions(_ context.Context, userID string, limit int) ([]*model.PointsTransaction, error) {
	var out []*model.PointsTransaction
	for i := len(tx.data.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if entry := tx.data.ledger[i]; entry.UserID == userID {
			found := *entry
			out = append(out, &found)
		}
	}
	return out, nil
}
