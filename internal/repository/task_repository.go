package repository

import (
	"context"
	"fmt"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"wildfire-analytics/internal/domain"
)

type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, updates map[string]any) error
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)
}

type rethinkTaskRepository struct {
	session r.QueryExecutor
	table   string
}

func NewTaskRepository(session r.QueryExecutor, table string) TaskRepository {
	return &rethinkTaskRepository{
		session: session,
		table:   table,
	}
}

func (repo *rethinkTaskRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	result, err := r.Table(repo.table).Insert(task).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if task.ID == "" && len(result.GeneratedKeys) > 0 {
		task.ID = result.GeneratedKeys[0]
	}

	return nil
}

func (repo *rethinkTaskRepository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	cursor, err := r.Table(repo.table).Get(id).Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	var task domain.Task
	if err := cursor.One(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}

	return &task, nil
}

func (repo *rethinkTaskRepository) UpdateTask(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()

	res, err := r.Table(repo.table).Get(id).Update(updates).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if res.Skipped > 0 {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	return nil
}

func (repo *rethinkTaskRepository) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	cursor, err := r.Table(repo.table).
		OrderBy(r.Desc("created_at")).
		Limit(limit).
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer cursor.Close()

	tasks := []domain.Task{}
	if err := cursor.All(&tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	return tasks, nil
}
