package domain

import "testing"

func steps(statuses ...StepStatus) []JobStep {
	out := make([]JobStep, len(statuses))
	for i, s := range statuses {
		out[i] = JobStep{Position: i + 1, Status: s}
	}
	return out
}

func TestJobStatusFromSteps(t *testing.T) {
	tests := []struct {
		name     string
		steps    []JobStep
		expected JobStatus
	}{
		{
			name:     "all ok",
			steps:    steps(StepStatusOK, StepStatusOK, StepStatusOK),
			expected: JobStatusOK,
		},
		{
			name:     "failed wins over cancelled",
			steps:    steps(StepStatusOK, StepStatusFailed, StepStatusCancelled),
			expected: JobStatusFailed,
		},
		{
			name:     "cancelled without failures",
			steps:    steps(StepStatusOK, StepStatusCancelled, StepStatusCancelled),
			expected: JobStatusCancelled,
		},
		{
			name:     "partial progress",
			steps:    steps(StepStatusOK, StepStatusPending, StepStatusPending),
			expected: JobStatusRunning,
		},
		{
			name:     "step running",
			steps:    steps(StepStatusRunning, StepStatusPending),
			expected: JobStatusRunning,
		},
		{
			name:     "nothing started",
			steps:    steps(StepStatusPending, StepStatusPending),
			expected: JobStatusPending,
		},
		{
			name:     "fresh snapshot",
			steps:    steps(StepStatusInitialized, StepStatusInitialized),
			expected: JobStatusPending,
		},
		{
			name:     "no steps",
			steps:    nil,
			expected: JobStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JobStatusFromSteps(tt.steps); got != tt.expected {
				t.Errorf("JobStatusFromSteps() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusOK, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []JobStatus{JobStatusScheduled, JobStatusPending, JobStatusRunning}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseJobStatus(t *testing.T) {
	if got := ParseJobStatus("RUNNING"); got != JobStatusRunning {
		t.Errorf("ParseJobStatus(RUNNING) = %q", got)
	}

	// Неизвестные значения не проходят
	if got := ParseJobStatus("running"); got != "" {
		t.Errorf("ParseJobStatus(running) = %q, want empty", got)
	}
	if got := ParseJobStatus("DONE"); got != "" {
		t.Errorf("ParseJobStatus(DONE) = %q, want empty", got)
	}
}
