package processor

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shaiso/Conveyor/internal/domain"
)

// StringRegexProcessor — применение регулярного выражения к строке.
//
// Без replace возвращает первое совпадение: вход "2024-01-01" с выражением
// `\d{4}` даёт "2024". С replace выполняет замену всех совпадений,
// поддерживая ссылки на группы ($1, $2, ...).
type StringRegexProcessor struct{}

// NewStringRegexProcessor создаёт новый StringRegexProcessor.
func NewStringRegexProcessor() *StringRegexProcessor {
	return &StringRegexProcessor{}
}

// Kind возвращает вид процессора.
func (p *StringRegexProcessor) Kind() string {
	return domain.KindStringRegex
}

// Privilege возвращает необходимую привилегию.
func (p *StringRegexProcessor) Privilege() string {
	return ""
}

// Validate проверяет, что регулярное выражение компилируется.
func (p *StringRegexProcessor) Validate(cfg domain.Processor) error {
	c := cfg.StringRegex
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindStringRegex)
	}
	if _, err := regexp.Compile(c.Regex); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, domain.KindStringRegex, err)
	}
	return nil
}

// Execute применяет выражение к входной строке.
func (p *StringRegexProcessor) Execute(_ context.Context, req *Request) (*Response, error) {
	cfg := req.Config.StringRegex
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindStringRegex)
	}

	re, err := regexp.Compile(cfg.Regex)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	if cfg.Replace != nil {
		return TextResponse(re.ReplaceAllString(cfg.Input, *cfg.Replace)), nil
	}

	loc := re.FindStringIndex(cfg.Input)
	if loc == nil {
		if cfg.MismatchError != nil {
			return nil, errors.New(*cfg.MismatchError)
		}
		return nil, fmt.Errorf("Match error: %q does not match pattern: %s", cfg.Input, cfg.Regex)
	}

	return TextResponse(cfg.Input[loc[0]:loc[1]]), nil
}
