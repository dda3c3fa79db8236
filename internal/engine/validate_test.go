package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// validTask строит минимальный корректный task для тестов.
func validTask() *domain.Task {
	return &domain.Task{
		ID:   uuid.New(),
		Name: "deploy-docs",
		Steps: []domain.Step{
			{
				Name:     "print",
				Position: 1,
				Processor: domain.Processor{
					PrintOutput: &domain.PrintOutputConfig{Output: "hello"},
				},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	task := validTask()
	task.Labels = []string{"docs", "deploy_v2"}
	task.Variables = []domain.Variable{
		{Key: "env", Selection: []string{"staging", "prod"}, DefaultValue: strPtr("staging")},
	}

	if err := Validate(task); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*domain.Task)
		expected error
	}{
		{
			name:     "empty name",
			mutate:   func(task *domain.Task) { task.Name = "" },
			expected: ErrEmptyName,
		},
		{
			name:     "no steps",
			mutate:   func(task *domain.Task) { task.Steps = nil },
			expected: ErrEmptySteps,
		},
		{
			name:     "uppercase label",
			mutate:   func(task *domain.Task) { task.Labels = []string{"Docs"} },
			expected: ErrInvalidLabel,
		},
		{
			name:     "label with dash",
			mutate:   func(task *domain.Task) { task.Labels = []string{"my-label"} },
			expected: ErrInvalidLabel,
		},
		{
			name: "duplicate variable key",
			mutate: func(task *domain.Task) {
				task.Variables = []domain.Variable{{Key: "x"}, {Key: "x"}}
			},
			expected: ErrDuplicateVariableKey,
		},
		{
			name: "empty variable key",
			mutate: func(task *domain.Task) {
				task.Variables = []domain.Variable{{Key: ""}}
			},
			expected: ErrEmptyVariableKey,
		},
		{
			name: "default outside selection",
			mutate: func(task *domain.Task) {
				task.Variables = []domain.Variable{
					{Key: "env", Selection: []string{"a", "b"}, DefaultValue: strPtr("c")},
				}
			},
			expected: ErrDefaultOutsideSelection,
		},
		{
			name: "step without name",
			mutate: func(task *domain.Task) {
				task.Steps[0].Name = ""
			},
			expected: ErrEmptyStepName,
		},
		{
			name: "no processor",
			mutate: func(task *domain.Task) {
				task.Steps[0].Processor = domain.Processor{}
			},
			expected: ErrProcessorKind,
		},
		{
			name: "two processors",
			mutate: func(task *domain.Task) {
				task.Steps[0].Processor.StringRegex = &domain.StringRegexConfig{Input: "x", Regex: "x"}
			},
			expected: ErrProcessorKind,
		},
		{
			name: "duplicate position",
			mutate: func(task *domain.Task) {
				task.Steps = append(task.Steps, domain.Step{
					Name:      "second",
					Position:  1,
					Processor: domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "x"}},
				})
			},
			expected: ErrInvalidPosition,
		},
		{
			name: "position gap",
			mutate: func(task *domain.Task) {
				task.Steps[0].Position = 2
			},
			expected: ErrInvalidPosition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)

			err := Validate(task)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}

			// Все ошибки валидации несут контекст
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func strPtr(s string) *string {
	return &s
}
