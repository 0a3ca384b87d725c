package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

// seedTask is one entry of the task seed file.
type seedTask struct {
	ID           string         `yaml:"id"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	Points       int64          `yaml:"points"`
	Type         model.TaskType `yaml:"type"`
	Category     string         `yaml:"category"`
	Image        string         `yaml:"image"`
	CallToAction string         `yaml:"callToAction"`
	TaskData     map[string]any `yaml:"taskData"`
	IsActive     *bool          `yaml:"isActive"`
}

type seedFile struct {
	Tasks []seedTask `yaml:"tasks"`
}

// LoadSeedTasks reads task definitions from a YAML (or JSON) file.
func LoadSeedTasks(path string) ([]*model.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	tasks := make([]*model.Task, 0, len(file.Tasks))
	for i, st := range file.Tasks {
		task := &model.Task{
			ID:           st.ID,
			Title:        st.Title,
			Description:  st.Description,
			Points:       st.Points,
			Type:         st.Type,
			Category:     st.Category,
			Image:        st.Image,
			CallToAction: st.CallToAction,
			IsActive:     st.IsActive == nil || *st.IsActive,
		}
		if st.TaskData != nil {
			data, err := json.Marshal(st.TaskData)
			if err != nil {
				return nil, fmt.Errorf("seed task %d: invalid taskData: %w", i, err)
			}
			task.TaskData = data
		}
		if err := validateTask(task); err != nil {
			return nil, fmt.Errorf("seed task %d: %w", i, err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// SeedTasks inserts tasks when the task table is empty. Returns the number inserted.
func SeedTasks(ctx context.Context, store repository.Store, tasks []*model.Task) (int, error) {
	inserted := 0
	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		count, err := tx.CountTasks(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		for _, task := range tasks {
			if _, err := tx.CreateTask(ctx, task); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed tasks: %w", err)
	}

	if inserted > 0 {
		log.Info().Int("count", inserted).Msg("Tasks seeded")
	}

	return inserted, nil
}
