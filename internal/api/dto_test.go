package api

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestCreateTaskRequestToDomain_AssignsPositions(t *testing.T) {
	req := CreateTaskRequest{
		Name: "deploy-docs",
		Steps: []StepRequest{
			{Name: "clone", Processor: domain.Processor{GitClone: &domain.GitCloneConfig{URL: "https://example.com/repo.git"}}},
			{Name: "report", Processor: domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "done"}}},
		},
	}

	task := req.ToDomain()

	if task.ID == uuid.Nil {
		t.Error("task ID not assigned")
	}
	if len(task.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(task.Steps))
	}
	for i, s := range task.Steps {
		if s.Position != i+1 {
			t.Errorf("step %q position = %d, want %d", s.Name, s.Position, i+1)
		}
		if s.TaskID != task.ID {
			t.Errorf("step %q task_id = %s, want %s", s.Name, s.TaskID, task.ID)
		}
		if s.ID == uuid.Nil {
			t.Errorf("step %q ID not assigned", s.Name)
		}
	}
}

func TestCreateTaskRequestToDomain_KeepsExplicitPositions(t *testing.T) {
	req := CreateTaskRequest{
		Name: "ordered",
		Steps: []StepRequest{
			{Name: "second", Position: 2, Processor: domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "b"}}},
			{Name: "first", Position: 1, Processor: domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "a"}}},
		},
	}

	task := req.ToDomain()

	if task.Steps[0].Position != 2 || task.Steps[1].Position != 1 {
		t.Errorf("positions = %d, %d, want explicit 2, 1",
			task.Steps[0].Position, task.Steps[1].Position)
	}
}

func TestCreateTaskRequestToDomain_Variables(t *testing.T) {
	defaultVal := "main"
	req := CreateTaskRequest{
		Name: "with-vars",
		Variables: []TaskVariableRequest{
			{Key: "branch", DefaultValue: &defaultVal},
			{Key: "version"},
		},
		Steps: []StepRequest{
			{Name: "noop", Processor: domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "x"}}},
		},
	}

	task := req.ToDomain()

	if len(task.Variables) != 2 {
		t.Fatalf("variables = %d, want 2", len(task.Variables))
	}
	if task.Variables[0].IsRequired() {
		t.Error("variable with default reported as required")
	}
	if !task.Variables[1].IsRequired() {
		t.Error("variable without default reported as optional")
	}
	for _, v := range task.Variables {
		if v.TaskID != task.ID {
			t.Errorf("variable %q task_id = %s, want %s", v.Key, v.TaskID, task.ID)
		}
	}
}

func TestTaskFromDomain_RequiredFlag(t *testing.T) {
	defaultVal := "eu-west"
	task := &domain.Task{
		ID:   uuid.New(),
		Name: "backup",
		Variables: []domain.Variable{
			{ID: uuid.New(), Key: "region", DefaultValue: &defaultVal},
			{ID: uuid.New(), Key: "target"},
		},
	}

	resp := TaskFromDomain(task)

	if len(resp.Variables) != 2 {
		t.Fatalf("variables = %d, want 2", len(resp.Variables))
	}
	if resp.Variables[0].Required {
		t.Error("region marked required despite default value")
	}
	if !resp.Variables[1].Required {
		t.Error("target not marked required")
	}
}

func TestJobFromDomain(t *testing.T) {
	taskID := uuid.New()
	text := "hello"
	started := time.Now().Add(-time.Minute)
	finished := time.Now()

	job := &domain.Job{
		ID:              uuid.New(),
		Name:            "greet #1",
		Status:          domain.JobStatusOK,
		TaskID:          &taskID,
		Privileges:      []string{domain.PrivilegeShellCommand},
		CancelRequested: false,
		Steps: []domain.JobStep{
			{
				ID:         uuid.New(),
				Name:       "say",
				Processor:  domain.Processor{PrintOutput: &domain.PrintOutputConfig{Output: "hello"}},
				Position:   1,
				Status:     domain.StepStatusOK,
				StartedAt:  &started,
				FinishedAt: &finished,
				Output:     &domain.StepOutput{Text: &text},
			},
		},
	}

	resp := JobFromDomain(job)

	if resp.Status != "OK" {
		t.Errorf("status = %q, want OK", resp.Status)
	}
	if resp.TaskID == nil || *resp.TaskID != taskID {
		t.Errorf("task_id = %v, want %s", resp.TaskID, taskID)
	}
	if len(resp.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(resp.Steps))
	}
	step := resp.Steps[0]
	if step.Status != "OK" {
		t.Errorf("step status = %q, want OK", step.Status)
	}
	if step.Output == nil || step.Output.Text == nil || *step.Output.Text != "hello" {
		t.Errorf("step output = %+v, want text %q", step.Output, "hello")
	}
	if step.StartedAt == nil || step.FinishedAt == nil {
		t.Error("step timestamps not mapped")
	}
}

func TestScheduleFromDomain_Nil(t *testing.T) {
	resp := ScheduleFromDomain(nil)
	if resp.ID != uuid.Nil {
		t.Errorf("nil schedule produced non-zero response: %+v", resp)
	}
}
