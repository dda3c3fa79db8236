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

// JobRepo — репозиторий для работы с jobs, их шагами и переменными.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create сохраняет job вместе со снимками шагов и значениями переменных.
//
// К имени job дописывается порядковый номер запуска task: "<task> #<n>".
// Если task job'а уже имеет job с тем же ключом идемпотентности,
// возвращается ErrAlreadyExists и ничего не создаётся.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job, vars []domain.JobVariable) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job.TaskID != nil && job.IdempotencyKey != nil {
		var existingID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id FROM jobs WHERE task_id = $1 AND idempotency_key = $2
		`, job.TaskID, job.IdempotencyKey).Scan(&existingID)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get job by idempotency key: %w", err)
		}
	}

	if job.TaskID != nil {
		var seq int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) + 1 FROM jobs WHERE task_id = $1
		`, job.TaskID).Scan(&seq)
		if err != nil {
			return fmt.Errorf("count task jobs: %w", err)
		}
		job.Name = fmt.Sprintf("%s #%d", job.Name, seq)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO jobs (id, name, description, status, task_id, privileges,
		                  cancel_requested, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		job.ID,
		job.Name,
		job.Description,
		job.Status,
		job.TaskID,
		job.Privileges,
		job.CancelRequested,
		job.IdempotencyKey,
		job.CreatedAt,
		job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for i := range job.Steps {
		s := &job.Steps[i]
		processorJSON, err := json.Marshal(s.Processor)
		if err != nil {
			return fmt.Errorf("marshal processor: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_steps (id, job_id, name, description, processor, position,
			                       advertised_variable_key, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, s.ID, s.JobID, s.Name, s.Description, processorJSON, s.Position,
			s.AdvertisedVariableKey, s.Status); err != nil {
			return fmt.Errorf("insert job step: %w", err)
		}
	}

	for _, v := range vars {
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_variables (job_id, key, value)
			VALUES ($1, $2, $3)
		`, v.JobID, v.Key, v.Value); err != nil {
			return fmt.Errorf("insert job variable: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID вместе с шагами.
// Значения переменных не загружаются, см. GetVariables.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, name, description, status, task_id, privileges,
		       cancel_requested, idempotency_key, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job, err := r.scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetByIdempotencyKey возвращает job task'а по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, taskID uuid.UUID, key string) (*domain.Job, error) {
	query := `
		SELECT id, name, description, status, task_id, privileges,
		       cancel_requested, idempotency_key, created_at, updated_at
		FROM jobs
		WHERE task_id = $1 AND idempotency_key = $2
	`
	job, err := r.scanJob(r.pool.QueryRow(ctx, query, taskID, key))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List возвращает список jobs с фильтрацией.
// Шаги не загружаются.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT id, name, description, status, task_id, privileges,
		       cancel_requested, idempotency_key, created_at, updated_at
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR task_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullUUID(filter.TaskID),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListScheduled возвращает jobs, ожидающие взятия воркером,
// старые первыми.
func (r *JobRepo) ListScheduled(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
		SELECT id, name, description, status, task_id, privileges,
		       cancel_requested, idempotency_key, created_at, updated_at
		FROM jobs
		WHERE status = 'SCHEDULED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Claim атомарно забирает job воркеру: SCHEDULED -> PENDING.
//
// Если job уже взят другим воркером (или не существует), возвращает
// ErrConflict — вызывающий молча переходит к следующему кандидату.
func (r *JobRepo) Claim(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'PENDING', updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'
	`, id)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_steps
		SET status = 'PENDING'
		WHERE job_id = $1 AND status = 'INITIALIZED'
	`, id); err != nil {
		return fmt.Errorf("claim job steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateStatus обновляет статус job.
func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStep обновляет шаг job и продлевает heartbeat job.
//
// Вместе со статусом записывается конфигурация процессора: после рендеринга
// шаблонов job хранит фактически выполненные параметры шага.
func (r *JobRepo) UpdateStep(ctx context.Context, step *domain.JobStep) error {
	processorJSON, err := json.Marshal(step.Processor)
	if err != nil {
		return fmt.Errorf("marshal processor: %w", err)
	}
	var outputJSON []byte
	if step.Output != nil {
		outputJSON, err = json.Marshal(step.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	}

	query := `
		UPDATE job_steps
		SET status = $2, processor = $3, started_at = $4, finished_at = $5, output = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		step.ID,
		step.Status,
		processorJSON,
		step.StartedAt,
		step.FinishedAt,
		outputJSON,
	)
	if err != nil {
		return fmt.Errorf("update job step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := r.pool.Exec(ctx, `
		UPDATE jobs SET updated_at = NOW() WHERE id = $1
	`, step.JobID); err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

// RequestCancel выставляет флаг отмены job.
// Воркер проверяет флаг перед каждым шагом.
func (r *JobRepo) RequestCancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelIfScheduled мгновенно отменяет job, который ещё не взят воркером.
// Возвращает true, если отмена состоялась.
func (r *JobRepo) CancelIfScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'
	`, id)
	if err != nil {
		return false, fmt.Errorf("cancel scheduled job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_steps
		SET status = 'CANCELLED'
		WHERE job_id = $1 AND status IN ('INITIALIZED', 'PENDING')
	`, id); err != nil {
		return false, fmt.Errorf("cancel job steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// IsCancelRequested возвращает текущее значение флага отмены job.
func (r *JobRepo) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var cancelRequested bool
	err := r.pool.QueryRow(ctx, `
		SELECT cancel_requested FROM jobs WHERE id = $1
	`, id).Scan(&cancelRequested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get cancel flag: %w", err)
	}
	return cancelRequested, nil
}

// GetVariables возвращает зашифрованные значения переменных job.
func (r *JobRepo) GetVariables(ctx context.Context, jobID uuid.UUID) ([]domain.JobVariable, error) {
	query := `
		SELECT job_id, key, value
		FROM job_variables
		WHERE job_id = $1
		ORDER BY key ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job variables: %w", err)
	}
	defer rows.Close()

	var vars []domain.JobVariable
	for rows.Next() {
		var v domain.JobVariable
		if err := rows.Scan(&v.JobID, &v.Key, &v.Value); err != nil {
			return nil, fmt.Errorf("scan job variable: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// UpsertVariable записывает значение переменной job, заменяя существующее.
// Используется шагами, публикующими свой вывод в переменную.
func (r *JobRepo) UpsertVariable(ctx context.Context, v domain.JobVariable) error {
	query := `
		INSERT INTO job_variables (job_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.pool.Exec(ctx, query, v.JobID, v.Key, v.Value); err != nil {
		return fmt.Errorf("upsert job variable: %w", err)
	}
	return nil
}

// FailStale помечает FAILED jobs, взятые воркером и не подававшие признаков
// жизни дольше порога. Выполнявшиеся шаги получают FAILED, не начатые —
// CANCELLED. Возвращает ID затронутых jobs.
func (r *JobRepo) FailStale(ctx context.Context, threshold time.Time) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE jobs
		SET status = 'FAILED', updated_at = NOW()
		WHERE status IN ('PENDING', 'RUNNING') AND updated_at < $1
		RETURNING id
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_steps
		SET status = 'FAILED', finished_at = NOW()
		WHERE job_id = ANY($1) AND status = 'RUNNING'
	`, ids); err != nil {
		return nil, fmt.Errorf("fail stale steps: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE job_steps
		SET status = 'CANCELLED'
		WHERE job_id = ANY($1) AND status IN ('INITIALIZED', 'PENDING')
	`, ids); err != nil {
		return nil, fmt.Errorf("cancel stale steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ids, nil
}

// --- Helpers ---

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	Status domain.JobStatus
	TaskID *uuid.UUID
	Limit  int
	Offset int
}

// scanJob сканирует одну строку в Job.
func (r *JobRepo) scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.Description,
		&job.Status,
		&job.TaskID,
		&job.Privileges,
		&job.CancelRequested,
		&job.IdempotencyKey,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}

// scanJobFromRows сканирует строку из rows в Job.
func (r *JobRepo) scanJobFromRows(rows pgx.Rows) (*domain.Job, error) {
	var job domain.Job
	err := rows.Scan(
		&job.ID,
		&job.Name,
		&job.Description,
		&job.Status,
		&job.TaskID,
		&job.Privileges,
		&job.CancelRequested,
		&job.IdempotencyKey,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}

// loadSteps загружает шаги job в порядке выполнения.
func (r *JobRepo) loadSteps(ctx context.Context, job *domain.Job) error {
	query := `
		SELECT id, job_id, name, description, processor, position,
		       advertised_variable_key, status, started_at, finished_at, output
		FROM job_steps
		WHERE job_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, job.ID)
	if err != nil {
		return fmt.Errorf("list job steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.JobStep
		var processorJSON, outputJSON []byte
		if err := rows.Scan(
			&s.ID,
			&s.JobID,
			&s.Name,
			&s.Description,
			&processorJSON,
			&s.Position,
			&s.AdvertisedVariableKey,
			&s.Status,
			&s.StartedAt,
			&s.FinishedAt,
			&outputJSON,
		); err != nil {
			return fmt.Errorf("scan job step: %w", err)
		}
		if err := json.Unmarshal(processorJSON, &s.Processor); err != nil {
			return fmt.Errorf("unmarshal processor: %w", err)
		}
		if outputJSON != nil {
			s.Output = &domain.StepOutput{}
			if err := json.Unmarshal(outputJSON, s.Output); err != nil {
				return fmt.Errorf("unmarshal output: %w", err)
			}
		}
		job.Steps = append(job.Steps, s)
	}
	return rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
