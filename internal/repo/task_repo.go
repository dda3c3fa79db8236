package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// TaskRepo — репозиторий для работы с tasks, их переменными и шагами.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create сохраняет task вместе с переменными и шагами.
//
// Если имя занято, поведение определяет onConflict: ABORT возвращает
// ErrAlreadyExists, UPDATE заменяет содержимое существующего task,
// сохраняя его ID и время создания. При UPDATE поля task.ID и task.CreatedAt
// перезаписываются значениями существующей записи.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task, onConflict domain.OnConflict) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID uuid.UUID
	var existingCreatedAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, created_at FROM tasks WHERE name = $1
	`, task.Name).Scan(&existingID, &existingCreatedAt)

	switch {
	case err == nil:
		if onConflict != domain.OnConflictUpdate {
			return ErrAlreadyExists
		}
		task.ID = existingID
		task.CreatedAt = existingCreatedAt
		if _, err := tx.Exec(ctx, `
			UPDATE tasks
			SET description = $2, labels = $3, updated_at = $4
			WHERE id = $1
		`, task.ID, task.Description, task.Labels, task.UpdatedAt); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM task_variables WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("delete task variables: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM task_steps WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("delete task steps: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, name, description, labels, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, task.ID, task.Name, task.Description, task.Labels, task.CreatedAt, task.UpdatedAt); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	default:
		return fmt.Errorf("get task by name: %w", err)
	}

	for i := range task.Variables {
		v := &task.Variables[i]
		v.TaskID = task.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_variables (id, task_id, key, description, default_value, example_value, selection)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, v.ID, v.TaskID, v.Key, v.Description, v.DefaultValue, v.ExampleValue, v.Selection); err != nil {
			return fmt.Errorf("insert task variable: %w", err)
		}
	}

	for i := range task.Steps {
		s := &task.Steps[i]
		s.TaskID = task.ID
		processorJSON, err := json.Marshal(s.Processor)
		if err != nil {
			return fmt.Errorf("marshal processor: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_steps (id, task_id, name, description, processor, position, advertised_variable_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, s.ID, s.TaskID, s.Name, s.Description, processorJSON, s.Position, s.AdvertisedVariableKey); err != nil {
			return fmt.Errorf("insert task step: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает task по ID вместе с переменными и шагами.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, name, description, labels, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`
	task, err := r.scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadVariables(ctx, task); err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetByName возвращает task по имени вместе с переменными и шагами.
func (r *TaskRepo) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	query := `
		SELECT id, name, description, labels, created_at, updated_at
		FROM tasks
		WHERE name = $1
	`
	task, err := r.scanTask(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, err
	}
	if err := r.loadVariables(ctx, task); err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// List возвращает список tasks с фильтрацией.
// Переменные и шаги не загружаются.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	query := `
		SELECT id, name, description, labels, created_at, updated_at
		FROM tasks
		WHERE ($1::text IS NULL OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		  AND ($2::text IS NULL OR $2 = ANY(labels))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Search),
		nullString(filter.Label),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := r.scanTaskFromRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Delete удаляет task вместе с переменными, шагами и расписаниями.
// Существующие jobs остаются, теряя ссылку на task.
func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE jobs SET task_id = NULL WHERE task_id = $1`, id); err != nil {
		return fmt.Errorf("detach jobs: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedules WHERE task_id = $1`, id); err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_variables WHERE task_id = $1`, id); err != nil {
		return fmt.Errorf("delete task variables: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_steps WHERE task_id = $1`, id); err != nil {
		return fmt.Errorf("delete task steps: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListAdvertisers возвращает шаги tasks, публикующие переменную key.
func (r *TaskRepo) ListAdvertisers(ctx context.Context, key string) ([]Advertiser, error) {
	query := `
		SELECT t.id, t.name, s.name
		FROM task_steps s
		JOIN tasks t ON t.id = s.task_id
		WHERE s.advertised_variable_key = $1
		ORDER BY t.name ASC, s.position ASC
	`
	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("list advertisers: %w", err)
	}
	defer rows.Close()

	var advertisers []Advertiser
	for rows.Next() {
		var a Advertiser
		if err := rows.Scan(&a.TaskID, &a.TaskName, &a.StepName); err != nil {
			return nil, fmt.Errorf("scan advertiser: %w", err)
		}
		advertisers = append(advertisers, a)
	}
	return advertisers, rows.Err()
}

// --- Helpers ---

// TaskFilter — параметры фильтрации tasks.
type TaskFilter struct {
	Search string
	Label  string
	Limit  int
	Offset int
}

// Advertiser — шаг task, публикующий значение переменной.
type Advertiser struct {
	TaskID   uuid.UUID `json:"task_id"`
	TaskName string    `json:"task_name"`
	StepName string    `json:"step_name"`
}

// scanTask сканирует одну строку в Task.
func (r *TaskRepo) scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.Labels,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &task, nil
}

// scanTaskFromRows сканирует строку из rows в Task.
func (r *TaskRepo) scanTaskFromRows(rows pgx.Rows) (*domain.Task, error) {
	var task domain.Task
	err := rows.Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.Labels,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &task, nil
}

// loadVariables загружает переменные task.
func (r *TaskRepo) loadVariables(ctx context.Context, task *domain.Task) error {
	query := `
		SELECT id, task_id, key, description, default_value, example_value, selection
		FROM task_variables
		WHERE task_id = $1
		ORDER BY key ASC
	`
	rows, err := r.pool.Query(ctx, query, task.ID)
	if err != nil {
		return fmt.Errorf("list task variables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variable
		if err := rows.Scan(
			&v.ID,
			&v.TaskID,
			&v.Key,
			&v.Description,
			&v.DefaultValue,
			&v.ExampleValue,
			&v.Selection,
		); err != nil {
			return fmt.Errorf("scan task variable: %w", err)
		}
		task.Variables = append(task.Variables, v)
	}
	return rows.Err()
}

// loadSteps загружает шаги task в порядке выполнения.
func (r *TaskRepo) loadSteps(ctx context.Context, task *domain.Task) error {
	query := `
		SELECT id, task_id, name, description, processor, position, advertised_variable_key
		FROM task_steps
		WHERE task_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, task.ID)
	if err != nil {
		return fmt.Errorf("list task steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Step
		var processorJSON []byte
		if err := rows.Scan(
			&s.ID,
			&s.TaskID,
			&s.Name,
			&s.Description,
			&processorJSON,
			&s.Position,
			&s.AdvertisedVariableKey,
		); err != nil {
			return fmt.Errorf("scan task step: %w", err)
		}
		if err := json.Unmarshal(processorJSON, &s.Processor); err != nil {
			return fmt.Errorf("unmarshal processor: %w", err)
		}
		task.Steps = append(task.Steps, s)
	}
	return rows.Err()
}
