package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ошибки процессоров.
var (
	// ErrKindNotFound — вид процессора не найден в реестре.
	ErrKindNotFound = errors.New("processor kind not found")

	// ErrInvalidConfig — невалидная конфигурация процессора.
	ErrInvalidConfig = errors.New("invalid processor config")

	// ErrCancelled — выполнение процессора отменено.
	ErrCancelled = errors.New("processor execution cancelled")
)

// Processor — интерфейс для видов процессоров.
//
// Каждый вид (gitClone, httpRequest, jsonEdit, printOutput, redisCommand,
// shellCommand, sqlQuery, stringRegex) реализует этот интерфейс.
type Processor interface {
	// Kind возвращает вид процессора.
	Kind() string

	// Privilege возвращает привилегию, необходимую для запуска.
	// Пустая строка — процессор доступен без привилегий.
	Privilege() string

	// Validate проверяет конфигурацию до создания task:
	// компилируемость регулярного выражения, синтаксис URL и т.п.
	// Плейсхолдеры переменных на этом этапе ещё не подставлены.
	Validate(cfg domain.Processor) error

	// Execute выполняет процессор с отрендеренной конфигурацией.
	// Процессор должен уважать ctx для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения процессора.
type Request struct {
	// JobID — идентификатор job, которому принадлежит шаг.
	JobID uuid.UUID

	// Config — конфигурация процессора с уже подставленными переменными.
	Config domain.Processor

	// Workspace — абсолютный путь рабочей директории job.
	Workspace string

	// Timeout — таймаут выполнения.
	// Если 0, используется таймаут по умолчанию вида.
	Timeout time.Duration
}

// Response — результат выполнения процессора.
type Response struct {
	// Text — текстовый вывод. Nil, если процессор ничего не вернул.
	Text *string

	// HTML — вывод в HTML, если процессор его формирует.
	HTML *string
}

// NewRequest создаёт новый Request.
func NewRequest(jobID uuid.UUID, cfg domain.Processor, workspace string, timeout time.Duration) *Request {
	return &Request{
		JobID:     jobID,
		Config:    cfg,
		Workspace: workspace,
		Timeout:   timeout,
	}
}

// TextResponse возвращает Response с текстовым выводом.
// Пустая строка означает отсутствие вывода.
func TextResponse(text string) *Response {
	if text == "" {
		return &Response{}
	}
	return &Response{Text: &text}
}

// EmptyResponse возвращает Response без вывода.
func EmptyResponse() *Response {
	return &Response{}
}

// Output преобразует Response в вывод шага job.
func (r *Response) Output() *domain.StepOutput {
	if r == nil {
		return nil
	}
	return &domain.StepOutput{Text: r.Text, HTML: r.HTML}
}
