package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/processor"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secret"
)

// --- Test Doubles ---

// fakeStore — in-memory хранилище одного job, реализует JobStore и GlobalStore.
type fakeStore struct {
	mu       sync.Mutex
	job      *domain.Job
	vars     map[string]string // key → зашифрованное значение
	globals  []domain.GlobalVariable
	cancel   bool
	statuses []domain.JobStatus // история UpdateStatus

	staleIDs       []uuid.UUID
	staleThreshold time.Time
}

var (
	_ JobStore    = (*fakeStore)(nil)
	_ GlobalStore = (*fakeStore)(nil)
)

func newFakeStore(job *domain.Job) *fakeStore {
	return &fakeStore{job: job, vars: make(map[string]string)}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil || s.job.ID != id {
		return nil, repo.ErrNotFound
	}
	return s.copyJob(), nil
}

func (s *fakeStore) ListScheduled(_ context.Context, _ int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil || s.job.Status != domain.JobStatusScheduled {
		return nil, nil
	}
	return []domain.Job{*s.copyJob()}, nil
}

func (s *fakeStore) Claim(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil || s.job.ID != id || s.job.Status != domain.JobStatusScheduled {
		return repo.ErrConflict
	}
	s.job.Status = domain.JobStatusPending
	for i := range s.job.Steps {
		if s.job.Steps[i].Status == domain.StepStatusInitialized {
			s.job.Steps[i].Status = domain.StepStatusPending
		}
	}
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil || s.job.ID != id {
		return repo.ErrNotFound
	}
	s.job.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) UpdateStep(_ context.Context, step *domain.JobStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.job.Steps {
		if s.job.Steps[i].ID == step.ID {
			s.job.Steps[i] = *step
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *fakeStore) IsCancelRequested(_ context.Context, _ uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel, nil
}

func (s *fakeStore) GetVariables(_ context.Context, jobID uuid.UUID) ([]domain.JobVariable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := make([]domain.JobVariable, 0, len(s.vars))
	for key, value := range s.vars {
		vars = append(vars, domain.JobVariable{JobID: jobID, Key: key, Value: value})
	}
	return vars, nil
}

func (s *fakeStore) UpsertVariable(_ context.Context, v domain.JobVariable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[v.Key] = v.Value
	return nil
}

func (s *fakeStore) FailStale(_ context.Context, threshold time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleThreshold = threshold
	return s.staleIDs, nil
}

func (s *fakeStore) List(_ context.Context) ([]domain.GlobalVariable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globals, nil
}

func (s *fakeStore) copyJob() *domain.Job {
	j := *s.job
	j.Steps = make([]domain.JobStep, len(s.job.Steps))
	copy(j.Steps, s.job.Steps)
	return &j
}

func (s *fakeStore) jobStatus() domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Status
}

func (s *fakeStore) step(t *testing.T, position int) domain.JobStep {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.job.Steps {
		if step.Position == position {
			return step
		}
	}
	t.Fatalf("step at position %d not found", position)
	return domain.JobStep{}
}

func (s *fakeStore) setCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = true
}

func (s *fakeStore) storedVar(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars[key]
}

// hookProc — процессор-заглушка, перехватывающий Execute произвольной функцией.
type hookProc struct {
	kind string
	fn   func(ctx context.Context, req *processor.Request) (*processor.Response, error)
}

func (p *hookProc) Kind() string                      { return p.kind }
func (p *hookProc) Privilege() string                 { return "" }
func (p *hookProc) Validate(_ domain.Processor) error { return nil }

func (p *hookProc) Execute(ctx context.Context, req *processor.Request) (*processor.Response, error) {
	return p.fn(ctx, req)
}

// makeJob собирает SCHEDULED job из printOutput шагов с заданными выводами.
func makeJob(outputs ...string) *domain.Job {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.New(),
		Name:      "test job",
		Status:    domain.JobStatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, out := range outputs {
		job.Steps = append(job.Steps, domain.JobStep{
			ID:       uuid.New(),
			JobID:    job.ID,
			Name:     fmt.Sprintf("step-%d", i+1),
			Position: i + 1,
			Status:   domain.StepStatusInitialized,
			Processor: domain.Processor{
				PrintOutput: &domain.PrintOutputConfig{Output: out},
			},
		})
	}
	return job
}

func testCodec(t *testing.T) *secret.Codec {
	t.Helper()
	codec, err := secret.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func newTestWorker(t *testing.T, store *fakeStore, reg *processor.Registry) *Worker {
	t.Helper()
	return New(Config{
		Jobs:          store,
		Globals:       store,
		Registry:      reg,
		Codec:         testCodec(t),
		WorkspaceRoot: t.TempDir(),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// --- Construction Tests ---

func TestNew_DefaultConfig(t *testing.T) {
	w := New(Config{})

	if w.pollInterval != defaultPollInterval {
		t.Errorf("expected poll interval %v, got %v", defaultPollInterval, w.pollInterval)
	}
	if w.batchSize != defaultBatchSize {
		t.Errorf("expected batch size %d, got %d", defaultBatchSize, w.batchSize)
	}
	if w.staleAfter != defaultStaleAfter {
		t.Errorf("expected stale after %v, got %v", defaultStaleAfter, w.staleAfter)
	}
	if w.workspaceRoot == "" {
		t.Error("expected default workspace root")
	}
	if w.registry == nil {
		t.Error("expected default registry")
	}
	if w.logger == nil {
		t.Error("expected default logger")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	w := New(Config{
		PollInterval:  100 * time.Millisecond,
		BatchSize:     3,
		StaleAfter:    time.Hour,
		StepTimeout:   time.Minute,
		WorkspaceRoot: "/srv/conveyor",
	})

	if w.pollInterval != 100*time.Millisecond {
		t.Errorf("expected poll interval 100ms, got %v", w.pollInterval)
	}
	if w.batchSize != 3 {
		t.Errorf("expected batch size 3, got %d", w.batchSize)
	}
	if w.staleAfter != time.Hour {
		t.Errorf("expected stale after 1h, got %v", w.staleAfter)
	}
	if w.stepTimeout != time.Minute {
		t.Errorf("expected step timeout 1m, got %v", w.stepTimeout)
	}
	if w.workspaceRoot != "/srv/conveyor" {
		t.Errorf("expected workspace root /srv/conveyor, got %s", w.workspaceRoot)
	}
}

// --- Execution Tests ---

func TestProcessJob_AllStepsOK(t *testing.T) {
	job := makeJob("hello", "world")
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusOK {
		t.Errorf("expected job status OK, got %s", got)
	}

	// Job прошёл через RUNNING к терминальному статусу
	if len(store.statuses) != 2 || store.statuses[0] != domain.JobStatusRunning || store.statuses[1] != domain.JobStatusOK {
		t.Errorf("expected RUNNING then OK transitions, got %v", store.statuses)
	}

	for pos := 1; pos <= 2; pos++ {
		step := store.step(t, pos)
		if step.Status != domain.StepStatusOK {
			t.Errorf("step %d: expected status OK, got %s", pos, step.Status)
		}
		if step.StartedAt == nil || step.FinishedAt == nil {
			t.Errorf("step %d: expected timestamps to be set", pos)
		}
	}

	first := store.step(t, 1)
	if first.Output == nil || first.Output.Text == nil || *first.Output.Text != "hello" {
		t.Errorf("expected first step output %q, got %+v", "hello", first.Output)
	}
}

func TestProcessJob_FailureCascade(t *testing.T) {
	job := makeJob("one", "two", "three")
	store := newFakeStore(job)

	// Второй шаг падает, третий не должен запуститься
	reg := processor.NewRegistry()
	reg.Register(&hookProc{kind: domain.KindPrintOutput, fn: func(_ context.Context, req *processor.Request) (*processor.Response, error) {
		if req.Config.PrintOutput.Output == "two" {
			return nil, errors.New("boom")
		}
		return processor.TextResponse(req.Config.PrintOutput.Output), nil
	}})

	w := newTestWorker(t, store, reg)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusFailed {
		t.Errorf("expected job status FAILED, got %s", got)
	}

	if got := store.step(t, 1).Status; got != domain.StepStatusOK {
		t.Errorf("step 1: expected status OK, got %s", got)
	}

	second := store.step(t, 2)
	if second.Status != domain.StepStatusFailed {
		t.Errorf("step 2: expected status FAILED, got %s", second.Status)
	}
	if second.Output == nil || second.Output.Text == nil || *second.Output.Text != "boom" {
		t.Errorf("expected failure text as step output, got %+v", second.Output)
	}

	third := store.step(t, 3)
	if third.Status != domain.StepStatusCancelled {
		t.Errorf("step 3: expected status CANCELLED, got %s", third.Status)
	}
	if third.StartedAt != nil {
		t.Error("cascaded step should not have started")
	}
}

func TestProcessJob_CancelBetweenSteps(t *testing.T) {
	job := makeJob("one", "two", "three")
	store := newFakeStore(job)

	// Отмена прилетает во время выполнения первого шага
	reg := processor.NewRegistry()
	reg.Register(&hookProc{kind: domain.KindPrintOutput, fn: func(_ context.Context, req *processor.Request) (*processor.Response, error) {
		store.setCancel()
		return processor.TextResponse(req.Config.PrintOutput.Output), nil
	}})

	w := newTestWorker(t, store, reg)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusCancelled {
		t.Errorf("expected job status CANCELLED, got %s", got)
	}

	// Запущенный шаг дорабатывает до конца, остальные закрываются
	if got := store.step(t, 1).Status; got != domain.StepStatusOK {
		t.Errorf("step 1: expected status OK, got %s", got)
	}
	for pos := 2; pos <= 3; pos++ {
		if got := store.step(t, pos).Status; got != domain.StepStatusCancelled {
			t.Errorf("step %d: expected status CANCELLED, got %s", pos, got)
		}
	}
}

func TestProcessJob_ClaimConflict(t *testing.T) {
	job := makeJob("one")
	job.Status = domain.JobStatusRunning // уже захвачен другим воркером
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	err := w.processJob(context.Background(), job.ID)
	if !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected ErrJobNotClaimed, got %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusRunning {
		t.Errorf("lost claim must not touch the job, got %s", got)
	}
}

func TestProcessJob_PrivilegeGate(t *testing.T) {
	job := makeJob()
	job.Steps = append(job.Steps, domain.JobStep{
		ID:       uuid.New(),
		JobID:    job.ID,
		Name:     "restricted",
		Position: 1,
		Status:   domain.StepStatusInitialized,
		Processor: domain.Processor{
			ShellCommand: &domain.ShellCommandConfig{Command: "uname"},
		},
	})
	store := newFakeStore(job)

	invoked := false
	reg := processor.NewRegistry()
	reg.Register(&hookProc{kind: domain.KindShellCommand, fn: func(_ context.Context, _ *processor.Request) (*processor.Response, error) {
		invoked = true
		return processor.EmptyResponse(), nil
	}})

	w := newTestWorker(t, store, reg)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if invoked {
		t.Error("processor must not run without the privilege")
	}

	step := store.step(t, 1)
	if step.Status != domain.StepStatusFailed {
		t.Errorf("expected status FAILED, got %s", step.Status)
	}
	if step.Output == nil || step.Output.Text == nil || !strings.Contains(*step.Output.Text, "missing privilege: shell_command") {
		t.Errorf("expected missing privilege in step output, got %+v", step.Output)
	}

	if got := store.jobStatus(); got != domain.JobStatusFailed {
		t.Errorf("expected job status FAILED, got %s", got)
	}
}

func TestProcessJob_PrivilegeGranted(t *testing.T) {
	job := makeJob()
	job.Privileges = []string{domain.PrivilegeShellCommand}
	job.Steps = append(job.Steps, domain.JobStep{
		ID:       uuid.New(),
		JobID:    job.ID,
		Name:     "restricted",
		Position: 1,
		Status:   domain.StepStatusInitialized,
		Processor: domain.Processor{
			ShellCommand: &domain.ShellCommandConfig{Command: "uname"},
		},
	})
	store := newFakeStore(job)

	invoked := false
	reg := processor.NewRegistry()
	reg.Register(&hookProc{kind: domain.KindShellCommand, fn: func(_ context.Context, _ *processor.Request) (*processor.Response, error) {
		invoked = true
		return processor.TextResponse("Linux"), nil
	}})

	w := newTestWorker(t, store, reg)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if !invoked {
		t.Error("processor should run with the privilege granted")
	}
	if got := store.step(t, 1).Status; got != domain.StepStatusOK {
		t.Errorf("expected status OK, got %s", got)
	}
}

func TestProcessJob_AdvertiseVisibleToLaterStep(t *testing.T) {
	job := makeJob("hello", "{{greeting}} world")
	key := "greeting"
	job.Steps[0].AdvertisedVariableKey = &key
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusOK {
		t.Fatalf("expected job status OK, got %s", got)
	}

	second := store.step(t, 2)
	if second.Output == nil || second.Output.Text == nil || *second.Output.Text != "hello world" {
		t.Errorf("expected rendered output %q, got %+v", "hello world", second.Output)
	}

	// Шаг хранит конфигурацию с уже подставленными значениями
	if got := second.Processor.PrintOutput.Output; got != "hello world" {
		t.Errorf("expected rendered config, got %q", got)
	}

	// Значение в пуле хранится зашифрованным
	stored := store.storedVar("greeting")
	if stored == "" {
		t.Fatal("expected advertised variable in the pool")
	}
	if stored == "hello" {
		t.Error("advertised value must be encrypted at rest")
	}
	decrypted, err := testCodec(t).Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != "hello" {
		t.Errorf("expected decrypted value %q, got %q", "hello", decrypted)
	}
}

func TestProcessJob_PreviousOutput(t *testing.T) {
	job := makeJob("alpha", "{{previous_output}}-beta")
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	second := store.step(t, 2)
	if second.Output == nil || second.Output.Text == nil || *second.Output.Text != "alpha-beta" {
		t.Errorf("expected output %q, got %+v", "alpha-beta", second.Output)
	}
}

func TestProcessJob_RenderErrorFailsStep(t *testing.T) {
	job := makeJob("{{undeclared_variable}}", "two")
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if got := store.jobStatus(); got != domain.JobStatusFailed {
		t.Errorf("expected job status FAILED, got %s", got)
	}

	first := store.step(t, 1)
	if first.Status != domain.StepStatusFailed {
		t.Errorf("step 1: expected status FAILED, got %s", first.Status)
	}
	if first.Output == nil || first.Output.Text == nil || !strings.Contains(*first.Output.Text, "undeclared_variable") {
		t.Errorf("expected render error in step output, got %+v", first.Output)
	}

	if got := store.step(t, 2).Status; got != domain.StepStatusCancelled {
		t.Errorf("step 2: expected status CANCELLED, got %s", got)
	}
}

func TestProcessJob_CorruptVariableFailsJob(t *testing.T) {
	job := makeJob("one", "two")
	store := newFakeStore(job)
	store.vars["token"] = "not a valid ciphertext"

	invoked := false
	reg := processor.NewRegistry()
	reg.Register(&hookProc{kind: domain.KindPrintOutput, fn: func(_ context.Context, _ *processor.Request) (*processor.Response, error) {
		invoked = true
		return processor.EmptyResponse(), nil
	}})

	w := newTestWorker(t, store, reg)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	if invoked {
		t.Error("processors must not run with a corrupt variable pool")
	}

	first := store.step(t, 1)
	if first.Status != domain.StepStatusFailed {
		t.Errorf("step 1: expected status FAILED, got %s", first.Status)
	}
	if first.Output == nil || first.Output.Text == nil || !strings.Contains(*first.Output.Text, `decrypt variable "token"`) {
		t.Errorf("expected decrypt failure in step output, got %+v", first.Output)
	}

	if got := store.step(t, 2).Status; got != domain.StepStatusCancelled {
		t.Errorf("step 2: expected status CANCELLED, got %s", got)
	}
	if got := store.jobStatus(); got != domain.JobStatusFailed {
		t.Errorf("expected job status FAILED, got %s", got)
	}
}

func TestProcessJob_GlobalVariablesMerged(t *testing.T) {
	job := makeJob("{{region}}/{{name}}")
	store := newFakeStore(job)
	codec := testCodec(t)

	encRegion, err := codec.Encrypt("eu-west")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	encGlobalName, err := codec.Encrypt("global-name")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	encJobName, err := codec.Encrypt("job-name")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Переменная job перекрывает одноимённую глобальную
	store.globals = []domain.GlobalVariable{
		{Key: "region", Value: encRegion},
		{Key: "name", Value: encGlobalName},
	}
	store.vars["name"] = encJobName

	w := newTestWorker(t, store, nil)

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob failed: %v", err)
	}

	first := store.step(t, 1)
	if first.Output == nil || first.Output.Text == nil || *first.Output.Text != "eu-west/job-name" {
		t.Errorf("expected output %q, got %+v", "eu-west/job-name", first.Output)
	}
}

// --- Polling Tests ---

func TestPoll_ExecutesScheduledJob(t *testing.T) {
	job := makeJob("hello")
	store := newFakeStore(job)
	w := newTestWorker(t, store, nil)

	w.poll(context.Background())

	if got := store.jobStatus(); got != domain.JobStatusOK {
		t.Errorf("expected job executed by poll, got status %s", got)
	}
}

func TestReap_FailsStaleJobs(t *testing.T) {
	store := newFakeStore(nil)
	store.staleIDs = []uuid.UUID{uuid.New()}
	w := newTestWorker(t, store, nil)

	lo := time.Now().UTC().Add(-w.staleAfter)
	w.reap(context.Background())
	hi := time.Now().UTC().Add(-w.staleAfter)

	if store.staleThreshold.Before(lo) || store.staleThreshold.After(hi) {
		t.Errorf("expected threshold near now minus staleAfter, got %v", store.staleThreshold)
	}
}

// --- Handler Tests ---

func TestHandleJobScheduled_UnknownJobAcked(t *testing.T) {
	store := newFakeStore(nil)
	w := newTestWorker(t, store, nil)

	delivery := &mq.Delivery{
		Message: mq.Message{
			Type:    mq.MessageTypeJobScheduled,
			Payload: mq.JobScheduledPayload{JobID: uuid.New()},
		},
	}

	// Неизвестный job не возвращает ошибку: сообщение подтверждается
	if err := w.handleJobScheduled(context.Background(), delivery); err != nil {
		t.Errorf("expected nil for unknown job, got %v", err)
	}
}

func TestHandleJobScheduled_BadPayload(t *testing.T) {
	store := newFakeStore(nil)
	w := newTestWorker(t, store, nil)

	delivery := &mq.Delivery{
		Message: mq.Message{
			Type:    mq.MessageTypeJobScheduled,
			Payload: map[string]any{"job_id": "not-a-uuid"},
		},
	}

	if err := w.handleJobScheduled(context.Background(), delivery); err == nil {
		t.Error("expected error for malformed payload")
	}
}

// --- Lifecycle Tests ---

func TestWorker_StartStop(t *testing.T) {
	store := newFakeStore(nil)
	w := newTestWorker(t, store, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Даём циклам сделать первый проход
	time.Sleep(20 * time.Millisecond)

	w.Stop()

	if !w.IsStopped() {
		t.Error("worker should be stopped after Stop")
	}
}

func TestWorker_IsStopped(t *testing.T) {
	w := New(Config{})

	if w.IsStopped() {
		t.Error("new worker should not be stopped")
	}

	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	if !w.IsStopped() {
		t.Error("worker should be stopped")
	}
}
