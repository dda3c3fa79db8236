package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Task DTOs

// CreateTaskRequest — запрос на создание task.
type CreateTaskRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Labels      []string              `json:"labels,omitempty"`
	Variables   []TaskVariableRequest `json:"variables,omitempty"`
	Steps       []StepRequest         `json:"steps"`
	OnConflict  string                `json:"on_conflict,omitempty"`
}

// TaskVariableRequest — объявление переменной в запросе создания task.
type TaskVariableRequest struct {
	Key          string   `json:"key"`
	Description  string   `json:"description,omitempty"`
	DefaultValue *string  `json:"default_value,omitempty"`
	ExampleValue *string  `json:"example_value,omitempty"`
	Selection    []string `json:"selection,omitempty"`
}

// StepRequest — шаг в запросе создания task.
// Если позиции не заданы, они назначаются по порядку массива.
type StepRequest struct {
	Name                  string           `json:"name"`
	Description           string           `json:"description,omitempty"`
	Processor             domain.Processor `json:"processor"`
	Position              int              `json:"position,omitempty"`
	AdvertisedVariableKey *string          `json:"advertised_variable_key,omitempty"`
}

// ToDomain собирает domain.Task из запроса, выдавая новые ID и время создания.
func (req *CreateTaskRequest) ToDomain() *domain.Task {
	now := time.Now()
	task := &domain.Task{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Labels:      req.Labels,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, v := range req.Variables {
		task.Variables = append(task.Variables, domain.Variable{
			ID:           uuid.New(),
			TaskID:       task.ID,
			Key:          v.Key,
			Description:  v.Description,
			DefaultValue: v.DefaultValue,
			ExampleValue: v.ExampleValue,
			Selection:    v.Selection,
		})
	}

	sequential := true
	for _, s := range req.Steps {
		if s.Position != 0 {
			sequential = false
			break
		}
	}
	for i, s := range req.Steps {
		position := s.Position
		if sequential {
			position = i + 1
		}
		task.Steps = append(task.Steps, domain.Step{
			ID:                    uuid.New(),
			TaskID:                task.ID,
			Name:                  s.Name,
			Description:           s.Description,
			Processor:             s.Processor,
			Position:              position,
			AdvertisedVariableKey: s.AdvertisedVariableKey,
		})
	}
	return task
}

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID          uuid.UUID              `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Variables   []TaskVariableResponse `json:"variables,omitempty"`
	Steps       []StepResponse         `json:"steps,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// TaskVariableResponse — объявление переменной task в ответе.
type TaskVariableResponse struct {
	ID           uuid.UUID `json:"id"`
	Key          string    `json:"key"`
	Description  string    `json:"description,omitempty"`
	DefaultValue *string   `json:"default_value,omitempty"`
	ExampleValue *string   `json:"example_value,omitempty"`
	Selection    []string  `json:"selection,omitempty"`
	Required     bool      `json:"required"`
}

// StepResponse — шаг task в ответе.
type StepResponse struct {
	ID                    uuid.UUID        `json:"id"`
	Name                  string           `json:"name"`
	Description           string           `json:"description,omitempty"`
	Processor             domain.Processor `json:"processor"`
	Position              int              `json:"position"`
	AdvertisedVariableKey *string          `json:"advertised_variable_key,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Labels:      t.Labels,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	for i := range t.Variables {
		v := &t.Variables[i]
		resp.Variables = append(resp.Variables, TaskVariableResponse{
			ID:           v.ID,
			Key:          v.Key,
			Description:  v.Description,
			DefaultValue: v.DefaultValue,
			ExampleValue: v.ExampleValue,
			Selection:    v.Selection,
			Required:     v.IsRequired(),
		})
	}
	for i := range t.Steps {
		s := &t.Steps[i]
		resp.Steps = append(resp.Steps, StepResponse{
			ID:                    s.ID,
			Name:                  s.Name,
			Description:           s.Description,
			Processor:             s.Processor,
			Position:              s.Position,
			AdvertisedVariableKey: s.AdvertisedVariableKey,
		})
	}
	return resp
}

// Job DTOs

// CreateJobRequest — запрос на создание job из task.
type CreateJobRequest struct {
	Variables      map[string]string `json:"variables,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Status          string            `json:"status"`
	TaskID          *uuid.UUID        `json:"task_id,omitempty"`
	Privileges      []string          `json:"privileges,omitempty"`
	CancelRequested bool              `json:"cancel_requested"`
	Steps           []JobStepResponse `json:"steps,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// JobStepResponse — шаг job в ответе, включая вывод.
type JobStepResponse struct {
	ID                    uuid.UUID          `json:"id"`
	Name                  string             `json:"name"`
	Description           string             `json:"description,omitempty"`
	Processor             domain.Processor   `json:"processor"`
	Position              int                `json:"position"`
	AdvertisedVariableKey *string            `json:"advertised_variable_key,omitempty"`
	Status                string             `json:"status"`
	StartedAt             *time.Time         `json:"started_at,omitempty"`
	FinishedAt            *time.Time         `json:"finished_at,omitempty"`
	Output                *domain.StepOutput `json:"output,omitempty"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
// Значения переменных job в ответ не попадают.
func JobFromDomain(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		Name:            j.Name,
		Description:     j.Description,
		Status:          string(j.Status),
		TaskID:          j.TaskID,
		Privileges:      j.Privileges,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	for i := range j.Steps {
		s := &j.Steps[i]
		resp.Steps = append(resp.Steps, JobStepResponse{
			ID:                    s.ID,
			Name:                  s.Name,
			Description:           s.Description,
			Processor:             s.Processor,
			Position:              s.Position,
			AdvertisedVariableKey: s.AdvertisedVariableKey,
			Status:                string(s.Status),
			StartedAt:             s.StartedAt,
			FinishedAt:            s.FinishedAt,
			Output:                s.Output,
		})
	}
	return resp
}

// Global variable DTOs

// CreateVariableRequest — запрос на создание глобальной переменной.
type CreateVariableRequest struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	OnConflict string `json:"on_conflict,omitempty"`
}

// GlobalVariableResponse — ответ с глобальной переменной.
// Значение не возвращается никогда.
type GlobalVariableResponse struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GlobalVariableFromDomain конвертирует domain.GlobalVariable в ответ без значения.
func GlobalVariableFromDomain(v domain.GlobalVariable) GlobalVariableResponse {
	return GlobalVariableResponse{
		Key:       v.Key,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// AdvertiserResponse — шаг task, публикующий значение переменной.
type AdvertiserResponse struct {
	TaskID   uuid.UUID `json:"task_id"`
	TaskName string    `json:"task_name"`
	StepName string    `json:"step_name"`
}

// AdvertiserFromRepo конвертирует repo.Advertiser в AdvertiserResponse.
func AdvertiserFromRepo(a repo.Advertiser) AdvertiserResponse {
	return AdvertiserResponse{
		TaskID:   a.TaskID,
		TaskName: a.TaskName,
		StepName: a.StepName,
	}
}

// Session DTOs

// CreateSessionRequest — запрос на создание сессии.
type CreateSessionRequest struct {
	Privileges []string `json:"privileges,omitempty"`
}

// UpdatePrivilegesRequest — запрос на замену привилегий сессии.
type UpdatePrivilegesRequest struct {
	Privileges []string `json:"privileges"`
}

// SessionResponse — ответ с сессией.
// Token заполняется только в ответе на создание сессии.
type SessionResponse struct {
	ID         uuid.UUID `json:"id"`
	Token      uuid.UUID `json:"token,omitzero"`
	Privileges []string  `json:"privileges"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionFromDomain конвертирует domain.Session в SessionResponse без токена.
func SessionFromDomain(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		Privileges: s.Privileges,
		CreatedAt:  s.CreatedAt,
	}
}

// SessionWithToken конвертирует domain.Session вместе с токеном.
// Используется единственный раз: в ответе на создание сессии.
func SessionWithToken(s *domain.Session) SessionResponse {
	resp := SessionFromDomain(s)
	resp.Token = s.Token
	return resp
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
// Nil Enabled означает включённое расписание.
type CreateScheduleRequest struct {
	TaskID      uuid.UUID         `json:"task_id"`
	Name        string            `json:"name,omitempty"`
	CronExpr    string            `json:"cron_expr,omitempty"`
	IntervalSec int               `json:"interval_sec,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ со schedule.
type ScheduleResponse struct {
	ID          uuid.UUID         `json:"id"`
	TaskID      uuid.UUID         `json:"task_id"`
	Name        string            `json:"name,omitempty"`
	CronExpr    string            `json:"cron_expr,omitempty"`
	IntervalSec int               `json:"interval_sec,omitempty"`
	Timezone    string            `json:"timezone"`
	Enabled     bool              `json:"enabled"`
	NextDueAt   *time.Time        `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time        `json:"last_run_at,omitempty"`
	LastJobID   *uuid.UUID        `json:"last_job_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Privileges  []string          `json:"privileges,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:          s.ID,
		TaskID:      s.TaskID,
		Name:        s.Name,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		LastJobID:   s.LastJobID,
		Variables:   s.Variables,
		Privileges:  s.Privileges,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
