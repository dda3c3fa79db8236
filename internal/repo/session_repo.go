package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// SessionRepo — репозиторий для работы с сессиями API.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create создаёт новую сессию.
func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, token, privileges, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.Token,
		session.Privileges,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID возвращает сессию по ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, token, privileges, created_at
		FROM sessions
		WHERE id = $1
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetByToken возвращает сессию по токену.
// Используется при аутентификации каждого запроса API.
func (r *SessionRepo) GetByToken(ctx context.Context, token uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, token, privileges, created_at
		FROM sessions
		WHERE token = $1
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, token))
}

// UpdatePrivileges заменяет набор привилегий сессии.
func (r *SessionRepo) UpdatePrivileges(ctx context.Context, id uuid.UUID, privileges []string) error {
	query := `
		UPDATE sessions
		SET privileges = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, privileges)
	if err != nil {
		return fmt.Errorf("update session privileges: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// scanSession сканирует одну строку в Session.
func (r *SessionRepo) scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	err := row.Scan(
		&session.ID,
		&session.Token,
		&session.Privileges,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}
