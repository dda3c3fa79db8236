package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

const (
	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPRequestProcessor — HTTP запрос к внешнему сервису.
//
// Тело ответа становится текстовым выводом шага. Если задан assertStatus,
// код ответа вне списка считается ошибкой выполнения.
type HTTPRequestProcessor struct {
	client *http.Client
}

// NewHTTPRequestProcessor создаёт новый HTTPRequestProcessor.
func NewHTTPRequestProcessor() *HTTPRequestProcessor {
	return &HTTPRequestProcessor{
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Kind возвращает вид процессора.
func (p *HTTPRequestProcessor) Kind() string {
	return domain.KindHTTPRequest
}

// Privilege возвращает необходимую привилегию.
func (p *HTTPRequestProcessor) Privilege() string {
	return ""
}

// Validate проверяет адрес запроса.
func (p *HTTPRequestProcessor) Validate(cfg domain.Processor) error {
	c := cfg.HTTPRequest
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindHTTPRequest)
	}
	if c.URL == "" {
		return fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, domain.KindHTTPRequest)
	}
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %s: invalid url %q", ErrInvalidConfig, domain.KindHTTPRequest, c.URL)
	}
	return nil
}

// Execute выполняет запрос и возвращает тело ответа.
func (p *HTTPRequestProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.HTTPRequest
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindHTTPRequest)
	}

	httpReq, err := p.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := p.client
	if req.Timeout > 0 {
		client = &http.Client{Timeout: req.Timeout}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if len(cfg.AssertStatus) > 0 && !containsStatus(cfg.AssertStatus, resp.StatusCode) {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return TextResponse(string(body)), nil
}

// buildRequest создаёт HTTP запрос из конфигурации.
func (p *HTTPRequestProcessor) buildRequest(ctx context.Context, cfg *domain.HTTPRequestConfig) (*http.Request, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if cfg.Body != nil {
		body = strings.NewReader(*cfg.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return nil, err
	}

	for _, h := range cfg.Headers {
		httpReq.Header.Set(h.Name, h.Value)
	}

	return httpReq, nil
}

// containsStatus проверяет принадлежность кода списку допустимых.
func containsStatus(allowed []int, status int) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
