// Package model defines the data models for the clicker backend.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// User represents a player account, keyed by Telegram identity.
type User struct {
	ID            string    `db:"id" json:"id"`
	TelegramID    string    `db:"telegram_id" json:"telegramId"`
	Username      string    `db:"username" json:"username"`
	Points        int64     `db:"points" json:"points"`
	PointsBalance int64     `db:"points_balance" json:"pointsBalance"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// TaskType tags the kind of action a task asks for.
type TaskType string

// Task types.
const (
	TaskTypeVisit    TaskType = "VISIT"    // Open an external link and wait
	TaskTypeTelegram TaskType = "TELEGRAM" // Join a Telegram channel
	TaskTypeReferral TaskType = "REFERRAL" // Invite friends
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeVisit, TaskTypeTelegram, TaskTypeReferral:
		return true
	}
	return false
}

// Task is a static earn-task definition.
type Task struct {
	ID           string          `db:"id" json:"id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Points       int64           `db:"points" json:"points"`
	Type         TaskType        `db:"type" json:"type"`
	Category     string          `db:"category" json:"category"`
	Image        string          `db:"image" json:"image"`
	CallToAction string          `db:"call_to_action" json:"callToAction"`
	TaskData     json.RawMessage `db:"task_data" json:"taskData"`
	IsActive     bool            `db:"is_active" json:"isActive"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// HasTaskData reports whether the task carries a non-null task_data payload.
func (t *Task) HasTaskData() bool {
	data := bytes.TrimSpace(t.TaskData)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}

// UserTask is the per-user progress record for a task.
// There is at most one per (UserID, TaskID).
type UserTask struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"userId"`
	TaskID             string    `db:"task_id" json:"taskId"`
	TaskStartTimestamp time.Time `db:"task_start_timestamp" json:"taskStartTimestamp"`
	IsCompleted        bool      `db:"is_completed" json:"isCompleted"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

// Points transaction types.
const (
	PointsTxTaskReward = "task_reward" // Reference is the task ID
)

// PointsTransaction is one entry of a user's points ledger.
type PointsTransaction struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Amount    int64     `db:"amount" json:"amount"`
	Type      string    `db:"type" json:"type"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TaskProgress is a task together with the caller's progress on it.
type TaskProgress struct {
	Task
	TaskStartTimestamp *time.Time `json:"taskStartTimestamp,omitempty"`
	IsStarted          bool       `json:"isStarted"`
	IsCompleted        bool       `json:"isCompleted"`
}

// Identity is a verified external (Telegram) identity.
type Identity struct {
	ID        string
	Username  string
	FirstName string
}

// DisplayName returns the username, falling back to the first name.
func (i *Identity) DisplayName() string {
	if i.Username != "" {
		return i.Username
	}
	return i.FirstName
}

// ClaimResult is the outcome of a claim that did not fail.
// Success is false only while the wait is still pending.
type ClaimResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RemainingTime *int64 `json:"remainingTime,omitempty"`
	IsCompleted   *bool  `json:"isCompleted,omitempty"`
}

// Pending reports whether the claim is waiting on the dwell time.
func (r *ClaimResult) Pending() bool {
	return !r.Success && r.RemainingTime != nil
}

// UserExportFields maps exportable JSON field names to user columns.
var UserExportFields = map[string]string{
	"id":            "id",
	"telegramId":    "telegram_id",
	"username":      "username",
	"points":        "points",
	"pointsBalance": "points_balance",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
}

// UserExportPage is one page of the admin user export.
type UserExportPage struct {
	Users      []map[string]any `json:"users"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	HasMore    bool             `json:"hasMore"`
}

// TaskPatch carries the task fields an admin update may change. Nil fields are left as they are.
type TaskPatch struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Points       *int64           `json:"points"`
	Type         *TaskType        `json:"type"`
	Category     *string          `json:"category"`
	Image        *string          `json:"image"`
	CallToAction *string          `json:"callToAction"`
	TaskData     *json.RawMessage `json:"taskData"`
	IsActive     *bool            `json:"isActive"`
}

// Apply copies the set fields onto t.
func (p *TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Points != nil {
		t.Points = *p.Points
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Image != nil {
		t.Image = *p.Image
	}
	if p.CallToAction != nil {
		t.CallToAction = *p.CallToAction
	}
	if p.TaskData != nil {
		t.TaskData = *p.TaskData
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
}
