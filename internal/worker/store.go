package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// JobStore — операции хранилища jobs, которые использует воркер.
//
// Протокол выполнения (захват, каскадная отмена, объявление переменных)
// проверяется в тестах на in-memory реализации, поэтому воркер работает
// через интерфейс, а не с *repo.JobRepo напрямую.
type JobStore interface {
	// GetByID возвращает job вместе со снимками шагов.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListScheduled возвращает кандидатов на выполнение, старые первыми.
	ListScheduled(ctx context.Context, limit int) ([]domain.Job, error)

	// Claim атомарно захватывает job: SCHEDULED → PENDING.
	// Проигранная гонка — repo.ErrConflict.
	Claim(ctx context.Context, id uuid.UUID) error

	// UpdateStatus записывает статус job.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error

	// UpdateStep записывает состояние шага и обновляет heartbeat job.
	UpdateStep(ctx context.Context, step *domain.JobStep) error

	// IsCancelRequested возвращает флаг внешней отмены job.
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// GetVariables возвращает зашифрованный пул переменных job.
	GetVariables(ctx context.Context, jobID uuid.UUID) ([]domain.JobVariable, error)

	// UpsertVariable записывает или заменяет переменную job.
	UpsertVariable(ctx context.Context, v domain.JobVariable) error

	// FailStale закрывает jobs без heartbeat дольше порога
	// и возвращает их идентификаторы.
	FailStale(ctx context.Context, threshold time.Time) ([]uuid.UUID, error)
}

// GlobalStore — чтение глобальных переменных сервера.
type GlobalStore interface {
	// List возвращает все глобальные переменные с зашифрованными значениями.
	List(ctx context.Context) ([]domain.GlobalVariable, error)
}

var (
	_ JobStore    = (*repo.JobRepo)(nil)
	_ GlobalStore = (*repo.VariableRepo)(nil)
)
