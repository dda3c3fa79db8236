package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — экземпляр выполнения task.
//
// Job создаётся, когда:
//   - Пользователь запускает task вручную (через API/CLI)
//   - Scheduler создаёт job по расписанию
//
// Job — неизменяемый снимок: шаги и значения переменных копируются из task
// в момент создания. Последующие изменения task на существующие jobs
// не влияют; удаление task оставляет jobs с TaskID = nil.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Name — имя job, производное от имени task: "<task> #<n>".
	Name string `json:"name"`

	// Description — описание, скопированное из task при создании.
	Description string `json:"description,omitempty"`

	// Status — текущий статус выполнения.
	Status JobStatus `json:"status"`

	// TaskID — ссылка на task-источник.
	// Nil, если task был удалён после создания job.
	TaskID *uuid.UUID `json:"task_id,omitempty"`

	// Privileges — снимок привилегий сессии, создавшей job.
	// Воркер сверяется с этим списком, а не с таблицей сессий.
	Privileges []string `json:"privileges,omitempty"`

	// CancelRequested — флаг внешней отмены.
	// Воркер проверяет его перед каждым шагом.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Например, для scheduled jobs: "{schedule_id}_{next_due_at}"
	IdempotencyKey *string `json:"idempotency_key,omitempty"`

	// Steps — снимки шагов task в порядке выполнения.
	Steps []JobStep `json:"steps,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если job завершён (в любом статусе).
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// HasPrivilege возвращает true, если снимок привилегий job содержит token.
func (j *Job) HasPrivilege(token string) bool {
	for _, p := range j.Privileges {
		if p == token {
			return true
		}
	}
	return false
}

// JobStep — снимок шага task внутри job.
//
// Processor хранит конфигурацию с шаблонными плейсхолдерами до выполнения;
// в момент выполнения воркер записывает на её место отрендеренную
// конфигурацию, чтобы job показывал фактически выполненные параметры.
type JobStep struct {
	// ID — уникальный идентификатор шага job.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на родительский job.
	JobID uuid.UUID `json:"job_id"`

	// Name — имя шага, скопированное из task.
	Name string `json:"name"`

	// Description — описание шага, скопированное из task.
	Description string `json:"description,omitempty"`

	// Processor — конфигурация процессора.
	Processor Processor `json:"processor"`

	// Position — порядковый номер шага, начиная с 1.
	Position int `json:"position"`

	// AdvertisedVariableKey — ключ переменной, скопированный из шага task.
	// Снимок нужен воркеру: task может быть удалён во время выполнения job.
	AdvertisedVariableKey *string `json:"advertised_variable_key,omitempty"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// StartedAt — время начала выполнения шага.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения шага.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Output — вывод шага после завершения.
	Output *StepOutput `json:"output,omitempty"`
}

// Duration возвращает продолжительность выполнения шага.
// Возвращает 0, если шаг ещё не завершён.
func (s *JobStep) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// MarkRunning переводит шаг в статус RUNNING.
func (s *JobStep) MarkRunning() {
	now := time.Now().UTC()
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// MarkOK переводит шаг в статус OK с выводом.
func (s *JobStep) MarkOK(output *StepOutput) {
	now := time.Now().UTC()
	s.Status = StepStatusOK
	s.FinishedAt = &now
	s.Output = output
}

// MarkFailed переводит шаг в статус FAILED.
// Текст ошибки записывается как вывод шага.
func (s *JobStep) MarkFailed(errText string) {
	now := time.Now().UTC()
	s.Status = StepStatusFailed
	s.FinishedAt = &now
	s.Output = &StepOutput{Text: &errText}
}

// MarkCancelled переводит шаг в статус CANCELLED.
func (s *JobStep) MarkCancelled() {
	now := time.Now().UTC()
	s.Status = StepStatusCancelled
	s.FinishedAt = &now
}

// StepOutput — вывод завершённого шага.
type StepOutput struct {
	// Text — текстовый вывод. Nil, если шаг ничего не вернул.
	Text *string `json:"text,omitempty"`

	// HTML — вывод в HTML, если процессор его формирует.
	HTML *string `json:"html,omitempty"`
}

// JobVariable — значение переменной, зафиксированное для job.
//
// Значение шифруется перед записью в базу и расшифровывается только
// в момент рендеринга конфигурации шага.
type JobVariable struct {
	// JobID — ссылка на родительский job.
	JobID uuid.UUID `json:"job_id"`

	// Key — имя переменной.
	Key string `json:"key"`

	// Value — зашифрованное значение.
	Value string `json:"-"`
}
