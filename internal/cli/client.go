package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — task из API.
type TaskResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	Variables   []TaskVariableResponse `json:"variables,omitempty"`
	Steps       []StepResponse         `json:"steps,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at"`
}

// TaskVariableResponse — переменная task из API.
type TaskVariableResponse struct {
	ID           string   `json:"id"`
	Key          string   `json:"key"`
	Description  string   `json:"description,omitempty"`
	DefaultValue *string  `json:"default_value,omitempty"`
	ExampleValue *string  `json:"example_value,omitempty"`
	Selection    []string `json:"selection,omitempty"`
	Required     bool     `json:"required"`
}

// StepResponse — шаг task из API.
type StepResponse struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Description           string         `json:"description,omitempty"`
	Processor             map[string]any `json:"processor"`
	Position              int            `json:"position"`
	AdvertisedVariableKey *string        `json:"advertised_variable_key,omitempty"`
}

// JobResponse — job из API.
type JobResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Status          string            `json:"status"`
	TaskID          string            `json:"task_id,omitempty"`
	Privileges      []string          `json:"privileges,omitempty"`
	CancelRequested bool              `json:"cancel_requested"`
	Steps           []JobStepResponse `json:"steps,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// JobStepResponse — шаг job из API.
type JobStepResponse struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Processor             map[string]any `json:"processor"`
	Position              int            `json:"position"`
	AdvertisedVariableKey *string        `json:"advertised_variable_key,omitempty"`
	Status                string         `json:"status"`
	StartedAt             string         `json:"started_at,omitempty"`
	FinishedAt            string         `json:"finished_at,omitempty"`
	Output                *StepOutput    `json:"output,omitempty"`
}

// StepOutput — вывод шага job.
type StepOutput struct {
	Text *string `json:"text,omitempty"`
	HTML *string `json:"html,omitempty"`
}

// GlobalVariableResponse — глобальная переменная из API (без значения).
type GlobalVariableResponse struct {
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AdvertiserResponse — шаг task, публикующий переменную.
type AdvertiserResponse struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	StepName string `json:"step_name"`
}

// SessionResponse — сессия из API.
type SessionResponse struct {
	ID         string   `json:"id"`
	Token      string   `json:"token"`
	Privileges []string `json:"privileges"`
	CreatedAt  string   `json:"created_at"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	Name        string            `json:"name,omitempty"`
	CronExpr    string            `json:"cron_expr,omitempty"`
	IntervalSec int               `json:"interval_sec,omitempty"`
	Timezone    string            `json:"timezone"`
	Enabled     bool              `json:"enabled"`
	NextDueAt   string            `json:"next_due_at,omitempty"`
	LastRunAt   string            `json:"last_run_at,omitempty"`
	LastJobID   string            `json:"last_job_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Privileges  []string          `json:"privileges,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// --- Request types ---

// CreateJobRequest — создание job из task.
type CreateJobRequest struct {
	Variables      map[string]string `json:"variables,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// CreateVariableRequest — создание глобальной переменной.
type CreateVariableRequest struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	OnConflict string `json:"on_conflict,omitempty"`
}

// CreateSessionRequest — создание сессии.
type CreateSessionRequest struct {
	Privileges []string `json:"privileges,omitempty"`
}

// UpdatePrivilegesRequest — замена привилегий сессии.
type UpdatePrivilegesRequest struct {
	Privileges []string `json:"privileges"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	TaskID      string            `json:"task_id"`
	Name        string            `json:"name,omitempty"`
	CronExpr    string            `json:"cron_expr,omitempty"`
	IntervalSec int               `json:"interval_sec,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// ListTasksOpts — параметры фильтрации tasks.
type ListTasksOpts struct {
	Search string
	Label  string
	Limit  int
}

// ListJobsOpts — параметры фильтрации jobs.
type ListJobsOpts struct {
	TaskID string
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
// Если задан token, все запросы аутентифицируются Bearer-заголовком.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает tasks с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Search != "" {
		params.Set("search", opts.Search)
	}
	if opts.Label != "" {
		params.Set("label", opts.Label)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// CreateTask создаёт task из JSON-описания.
func (c *Client) CreateTask(definition json.RawMessage) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", definition, &task)
	return &task, err
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// DeleteTask удаляет task.
func (c *Client) DeleteTask(id string) error {
	return c.delete("/api/v1/tasks/" + id)
}

// --- Jobs ---

// ListJobs возвращает jobs с фильтрацией, новые первыми.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.TaskID != "" {
		params.Set("task_id", opts.TaskID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// CreateJob создаёт job из task.
func (c *Client) CreateJob(taskID string, req CreateJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/tasks/"+taskID+"/jobs", req, &job)
	return &job, err
}

// GetJob возвращает job по ID вместе с шагами.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+id, &job)
	return &job, err
}

// CancelJob запрашивает отмену job.
func (c *Client) CancelJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/jobs/"+id+"/cancel", nil, &job)
	return &job, err
}

// --- Global variables ---

// ListVariables возвращает ключи глобальных переменных.
func (c *Client) ListVariables() ([]GlobalVariableResponse, error) {
	var vars []GlobalVariableResponse
	err := c.list("/api/v1/variables", nil, &vars)
	return vars, err
}

// CreateVariable создаёт глобальную переменную.
func (c *Client) CreateVariable(req CreateVariableRequest) (*GlobalVariableResponse, error) {
	var v GlobalVariableResponse
	err := c.post("/api/v1/variables", req, &v)
	return &v, err
}

// DeleteVariable удаляет глобальную переменную.
func (c *Client) DeleteVariable(key string) error {
	return c.delete("/api/v1/variables/" + key)
}

// ListAdvertisers возвращает шаги tasks, публикующие переменную.
func (c *Client) ListAdvertisers(key string) ([]AdvertiserResponse, error) {
	var advertisers []AdvertiserResponse
	err := c.list("/api/v1/variables/"+key+"/advertisers", nil, &advertisers)
	return advertisers, err
}

// --- Sessions ---

// CreateSession создаёт сессию с привилегиями.
func (c *Client) CreateSession(privileges []string) (*SessionResponse, error) {
	var session SessionResponse
	err := c.post("/api/v1/sessions", CreateSessionRequest{Privileges: privileges}, &session)
	return &session, err
}

// GetCurrentSession возвращает сессию текущего токена.
func (c *Client) GetCurrentSession() (*SessionResponse, error) {
	var session SessionResponse
	err := c.get("/api/v1/sessions/me", &session)
	return &session, err
}

// UpdateSessionPrivileges заменяет привилегии сессии.
func (c *Client) UpdateSessionPrivileges(id string, privileges []string) (*SessionResponse, error) {
	var session SessionResponse
	err := c.put("/api/v1/sessions/"+id+"/privileges", UpdatePrivilegesRequest{Privileges: privileges}, &session)
	return &session, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если taskID не пустой — фильтрует.
func (c *Client) ListSchedules(taskID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if taskID != "" {
		params.Set("task_id", taskID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для task.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает schedule.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.patch("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает schedule.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.patch("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) patch(path string, body any, result any) error {
	return c.doData(http.MethodPatch, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
