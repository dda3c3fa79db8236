package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Validate проверяет структурную корректность task.
//
// Правила:
//   - имя task непустое
//   - каждая метка состоит из строчных букв, цифр и подчёркиваний
//   - ключи переменных непустые и уникальны в рамках task
//   - значение по умолчанию входит в список допустимых, если задан и тот и другой
//   - task содержит хотя бы один шаг
//   - имена шагов непустые
//   - позиции шагов образуют 1..N без пропусков и повторов
//   - каждый шаг конфигурирует ровно один процессор
//
// Конфигурации процессоров проверяются отдельно реестром процессоров:
// engine не знает, как устроен каждый вид.
func Validate(task *domain.Task) error {
	if task.Name == "" {
		return NewValidationError("", "name", "task name is required", ErrEmptyName)
	}

	for _, label := range task.Labels {
		if !domain.ValidLabel(label) {
			return NewValidationError("", "labels",
				fmt.Sprintf("label %q must contain only lowercase letters, digits and underscores", label),
				ErrInvalidLabel)
		}
	}

	if err := validateVariables(task.Variables); err != nil {
		return err
	}

	if len(task.Steps) == 0 {
		return NewValidationError("", "steps", "task must have at least one step", ErrEmptySteps)
	}

	return validateSteps(task.Steps)
}

// validateVariables проверяет объявления переменных task.
func validateVariables(vars []domain.Variable) error {
	keys := make(map[string]bool, len(vars))

	for i := range vars {
		v := &vars[i]

		if v.Key == "" {
			return NewValidationError("", "variables", "variable key is required", ErrEmptyVariableKey)
		}
		if keys[v.Key] {
			return NewValidationError("", "variables",
				fmt.Sprintf("variable %q is declared more than once", v.Key),
				ErrDuplicateVariableKey)
		}
		keys[v.Key] = true

		if v.DefaultValue != nil && !v.AllowsValue(*v.DefaultValue) {
			return NewValidationError("", "variables",
				fmt.Sprintf("default value of %q is not in its selection", v.Key),
				ErrDefaultOutsideSelection)
		}
	}

	return nil
}

// validateSteps проверяет шаги task.
func validateSteps(steps []domain.Step) error {
	positions := make(map[int]bool, len(steps))

	for i := range steps {
		s := &steps[i]

		if s.Name == "" {
			return NewValidationError("", "steps",
				fmt.Sprintf("step at position %d has no name", s.Position),
				ErrEmptyStepName)
		}

		if kinds := s.Processor.Kinds(); len(kinds) != 1 {
			return NewValidationError(s.Name, "processor",
				fmt.Sprintf("expected exactly one processor, got %d", len(kinds)),
				ErrProcessorKind)
		}

		if positions[s.Position] {
			return NewValidationError(s.Name, "position",
				fmt.Sprintf("position %d is used more than once", s.Position),
				ErrInvalidPosition)
		}
		positions[s.Position] = true
	}

	for want := 1; want <= len(steps); want++ {
		if !positions[want] {
			return NewValidationError("", "steps",
				fmt.Sprintf("position %d is missing", want),
				ErrInvalidPosition)
		}
	}

	return nil
}

// SortSteps упорядочивает шаги по позиции.
func SortSteps(steps []domain.Step) {
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})
}
