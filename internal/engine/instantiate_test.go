package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/secret"
)

func testCodec(t *testing.T) *secret.Codec {
	t.Helper()
	codec, err := secret.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

// taskWithVariables строит task с двумя шагами и набором переменных.
func taskWithVariables(vars ...domain.Variable) *domain.Task {
	return &domain.Task{
		ID:          uuid.New(),
		Name:        "release",
		Description: "build and publish",
		Variables:   vars,
		Steps: []domain.Step{
			{
				Name:     "second",
				Position: 2,
				Processor: domain.Processor{
					PrintOutput: &domain.PrintOutputConfig{Output: "done"},
				},
			},
			{
				Name:     "first",
				Position: 1,
				Processor: domain.Processor{
					StringRegex: &domain.StringRegexConfig{Input: "{{version}}", Regex: `\d+`},
				},
			},
		},
	}
}

func TestInstantiateTask_Snapshot(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables(domain.Variable{Key: "version", DefaultValue: strPtr("1.0")})

	key := "sched_1"
	job, vars, err := InstantiateTask(task, JobInput{
		Privileges:     []string{domain.PrivilegeShellCommand},
		IdempotencyKey: &key,
	}, codec)
	if err != nil {
		t.Fatalf("InstantiateTask failed: %v", err)
	}

	if job.Status != domain.JobStatusScheduled {
		t.Errorf("new job should be SCHEDULED, got %s", job.Status)
	}
	if job.TaskID == nil || *job.TaskID != task.ID {
		t.Error("job should reference its task")
	}
	if job.Description != task.Description {
		t.Error("description should be copied from task")
	}
	if !job.HasPrivilege(domain.PrivilegeShellCommand) {
		t.Error("privileges should be snapshotted onto the job")
	}
	if job.IdempotencyKey == nil || *job.IdempotencyKey != key {
		t.Error("idempotency key should be carried")
	}

	// Шаги упорядочены по позиции и начинают с INITIALIZED
	if len(job.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(job.Steps))
	}
	if job.Steps[0].Name != "first" || job.Steps[1].Name != "second" {
		t.Errorf("steps should be ordered by position: %s, %s", job.Steps[0].Name, job.Steps[1].Name)
	}
	for _, s := range job.Steps {
		if s.Status != domain.StepStatusInitialized {
			t.Errorf("step %s should be INITIALIZED, got %s", s.Name, s.Status)
		}
		if s.JobID != job.ID {
			t.Errorf("step %s should reference the job", s.Name)
		}
	}

	// Значение по умолчанию попало в пул и зашифровано
	if len(vars) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(vars))
	}
	if vars[0].Value == "1.0" {
		t.Error("variable value should be encrypted")
	}
	decrypted, err := codec.Decrypt(vars[0].Value)
	if err != nil || decrypted != "1.0" {
		t.Errorf("expected decrypted %q, got %q (%v)", "1.0", decrypted, err)
	}
}

func TestInstantiateTask_MissingRequired(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables(
		domain.Variable{Key: "version"},
		domain.Variable{Key: "target"},
		domain.Variable{Key: "optional", DefaultValue: strPtr("x")},
	)

	_, _, err := InstantiateTask(task, JobInput{}, codec)
	if !errors.Is(err, ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}

	// Сообщение перечисляет каждую отсутствующую переменную
	expected := "missing required variable: version; missing required variable: target"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestInstantiateTask_Selection(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables(
		domain.Variable{Key: "env", Selection: []string{"staging", "prod"}},
	)

	// Значение из списка проходит
	_, vars, err := InstantiateTask(task, JobInput{
		Variables: map[string]string{"env": "prod"},
	}, codec)
	if err != nil {
		t.Fatalf("allowed value rejected: %v", err)
	}
	if len(vars) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(vars))
	}

	// Значение вне списка — ошибка с точным сообщением
	_, _, err = InstantiateTask(task, JobInput{
		Variables: map[string]string{"env": "qa"},
	}, codec)
	if !errors.Is(err, ErrSelection) {
		t.Fatalf("expected ErrSelection, got %v", err)
	}
	expected := `variable "env" must be one of: staging, prod`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestInstantiateTask_UndeclaredKeysAllowed(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables()

	job, vars, err := InstantiateTask(task, JobInput{
		Variables: map[string]string{"extra": "value"},
	}, codec)
	if err != nil {
		t.Fatalf("undeclared key should be allowed: %v", err)
	}
	if len(vars) != 1 || vars[0].Key != "extra" {
		t.Errorf("extra variable should land in the pool: %+v", vars)
	}
	if job == nil {
		t.Fatal("job should be created")
	}
}

func TestInstantiateTask_SuppliedOverridesDefault(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables(domain.Variable{Key: "version", DefaultValue: strPtr("1.0")})

	_, vars, err := InstantiateTask(task, JobInput{
		Variables: map[string]string{"version": "2.0"},
	}, codec)
	if err != nil {
		t.Fatalf("InstantiateTask failed: %v", err)
	}

	decrypted, _ := codec.Decrypt(vars[0].Value)
	if decrypted != "2.0" {
		t.Errorf("supplied value should win over default, got %q", decrypted)
	}
}

func TestInstantiateTask_StepIDsFresh(t *testing.T) {
	codec := testCodec(t)
	task := taskWithVariables()

	first, _, _ := InstantiateTask(task, JobInput{}, codec)
	second, _, _ := InstantiateTask(task, JobInput{}, codec)

	if first.ID == second.ID {
		t.Error("jobs should get distinct ids")
	}
	if first.Steps[0].ID == second.Steps[0].ID {
		t.Error("job steps should get distinct ids")
	}
	if !strings.HasPrefix(first.Name, task.Name) {
		t.Errorf("job name should derive from task name, got %q", first.Name)
	}
}
