package processor

import (
	"context"
	"fmt"

	"github.com/russross/blackfriday/v2"

	"github.com/shaiso/Conveyor/internal/domain"
)

// PrintOutputProcessor — вывод строки как результата шага.
//
// Текст дополнительно рендерится из Markdown в HTML, чтобы клиенты
// могли показывать форматированный результат.
type PrintOutputProcessor struct{}

// NewPrintOutputProcessor создаёт новый PrintOutputProcessor.
func NewPrintOutputProcessor() *PrintOutputProcessor {
	return &PrintOutputProcessor{}
}

// Kind возвращает вид процессора.
func (p *PrintOutputProcessor) Kind() string {
	return domain.KindPrintOutput
}

// Privilege возвращает необходимую привилегию.
func (p *PrintOutputProcessor) Privilege() string {
	return ""
}

// Validate проверяет конфигурацию.
func (p *PrintOutputProcessor) Validate(cfg domain.Processor) error {
	if cfg.PrintOutput == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindPrintOutput)
	}
	return nil
}

// Execute возвращает сконфигурированную строку как вывод шага.
func (p *PrintOutputProcessor) Execute(_ context.Context, req *Request) (*Response, error) {
	cfg := req.Config.PrintOutput
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindPrintOutput)
	}

	if cfg.Output == "" {
		return EmptyResponse(), nil
	}

	text := cfg.Output
	html := string(blackfriday.Run([]byte(text)))

	return &Response{Text: &text, HTML: &html}, nil
}
