package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// VariableRepo — репозиторий для работы с глобальными переменными.
// Значения хранятся зашифрованными; репозиторий их не расшифровывает.
type VariableRepo struct {
	pool *pgxpool.Pool
}

// NewVariableRepo создаёт новый VariableRepo.
func NewVariableRepo(pool *pgxpool.Pool) *VariableRepo {
	return &VariableRepo{pool: pool}
}

// Create сохраняет глобальную переменную.
//
// Если ключ занят, поведение определяет onConflict: ABORT возвращает
// ErrAlreadyExists, UPDATE заменяет значение существующей переменной.
func (r *VariableRepo) Create(ctx context.Context, v *domain.GlobalVariable, onConflict domain.OnConflict) error {
	if onConflict == domain.OnConflictUpdate {
		query := `
			INSERT INTO global_variables (key, value, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`
		if _, err := r.pool.Exec(ctx, query, v.Key, v.Value, v.CreatedAt, v.UpdatedAt); err != nil {
			return fmt.Errorf("upsert global variable: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO global_variables (key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, v.Key, v.Value, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert global variable: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get возвращает глобальную переменную по ключу.
func (r *VariableRepo) Get(ctx context.Context, key string) (*domain.GlobalVariable, error) {
	query := `
		SELECT key, value, created_at, updated_at
		FROM global_variables
		WHERE key = $1
	`
	var v domain.GlobalVariable
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&v.Key,
		&v.Value,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get global variable: %w", err)
	}
	return &v, nil
}

// List возвращает все глобальные переменные, отсортированные по ключу.
func (r *VariableRepo) List(ctx context.Context) ([]domain.GlobalVariable, error) {
	query := `
		SELECT key, value, created_at, updated_at
		FROM global_variables
		ORDER BY key ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list global variables: %w", err)
	}
	defer rows.Close()

	var vars []domain.GlobalVariable
	for rows.Next() {
		var v domain.GlobalVariable
		if err := rows.Scan(&v.Key, &v.Value, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan global variable: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// Delete удаляет глобальную переменную.
func (r *VariableRepo) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM global_variables WHERE key = $1`
	result, err := r.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete global variable: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
