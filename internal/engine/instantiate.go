package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/secret"
)

// JobInput — параметры создания job из task.
type JobInput struct {
	// Variables — значения переменных от вызывающей стороны.
	Variables map[string]string

	// Privileges — привилегии сессии, снимаемые на job.
	Privileges []string

	// IdempotencyKey — ключ идемпотентности (для scheduler).
	IdempotencyKey *string
}

// InstantiateTask строит job-снимок из task.
//
// Проверяет и дополняет значения переменных, шифрует их и копирует шаги.
// Ничего не сохраняет: персистентность — забота репозитория, поэтому
// API и scheduler используют один и тот же путь создания.
//
// Правила переменных:
//   - переменная без значения по умолчанию обязательна;
//     отсутствие значения — ошибка "missing required variable: <key>"
//   - значение, нарушающее selection, — ошибка
//     `variable "<key>" must be one of: <...>`
//   - незаявленные ключи допускаются: они попадают в пул job как есть
//   - глобальные переменные не копируются, они подставляются при рендеринге
func InstantiateTask(task *domain.Task, in JobInput, codec *secret.Codec) (*domain.Job, []domain.JobVariable, error) {
	values, err := resolveVariables(task, in.Variables)
	if err != nil {
		return nil, nil, err
	}

	jobID := uuid.New()

	vars := make([]domain.JobVariable, 0, len(values))
	for key, value := range values {
		encrypted, err := codec.Encrypt(value)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt variable %q: %w", key, err)
		}
		vars = append(vars, domain.JobVariable{
			JobID: jobID,
			Key:   key,
			Value: encrypted,
		})
	}

	steps := make([]domain.Step, len(task.Steps))
	copy(steps, task.Steps)
	SortSteps(steps)

	jobSteps := make([]domain.JobStep, 0, len(steps))
	for _, s := range steps {
		jobSteps = append(jobSteps, domain.JobStep{
			ID:                    uuid.New(),
			JobID:                 jobID,
			Name:                  s.Name,
			Description:           s.Description,
			Processor:             s.Processor,
			Position:              s.Position,
			AdvertisedVariableKey: s.AdvertisedVariableKey,
			Status:                domain.StepStatusInitialized,
		})
	}

	taskID := task.ID
	now := time.Now()
	job := &domain.Job{
		ID:             jobID,
		Name:           task.Name,
		Description:    task.Description,
		Status:         domain.JobStatusScheduled,
		TaskID:         &taskID,
		Privileges:     in.Privileges,
		IdempotencyKey: in.IdempotencyKey,
		Steps:          jobSteps,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return job, vars, nil
}

// resolveVariables объединяет значения вызывающей стороны со значениями
// по умолчанию и проверяет ограничения.
func resolveVariables(task *domain.Task, supplied map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(supplied))
	for key, value := range supplied {
		values[key] = value
	}

	var missing []string
	for i := range task.Variables {
		v := &task.Variables[i]

		value, ok := values[v.Key]
		if !ok {
			if v.DefaultValue == nil {
				missing = append(missing, v.Key)
				continue
			}
			values[v.Key] = *v.DefaultValue
			continue
		}

		if !v.AllowsValue(value) {
			return nil, NewValidationError("", v.Key,
				fmt.Sprintf("variable %q must be one of: %s", v.Key, strings.Join(v.Selection, ", ")),
				ErrSelection)
		}
	}

	if len(missing) > 0 {
		msgs := make([]string, len(missing))
		for i, key := range missing {
			msgs[i] = "missing required variable: " + key
		}
		return nil, NewValidationError("", "variables", strings.Join(msgs, "; "), ErrMissingVariable)
	}

	return values, nil
}
