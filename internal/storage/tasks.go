package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
)

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	if task.CreatedDate.IsZero() {
		task.CreatedDate = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// DueTasks returns pending tasks whose expire date has passed.
func (s *Storage) DueTasks(ctx context.Context, now time.Time) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := s.db.
		WithContext(ctx).
		Where("cancelled = ? AND completed = ? AND expire_date <= ?", false, false, now).
		Preload("User").
		Preload("Server").
		Preload("Game").
		Preload("Channel").
		Find(&tasks).
		Error; err != nil {
		return nil, fmt.Errorf("listing due tasks: %w", err)
	}
	return tasks, nil
}

func (s *Storage) CompleteTask(ctx context.Context, taskPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskPK).
		Update("completed", true).
		Error; err != nil {
		return fmt.Errorf("completing task: %w", err)
	}
	return nil
}
