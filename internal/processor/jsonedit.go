package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/shaiso/Conveyor/internal/domain"
)

// JSONEditProcessor — трансформация JSON документа jq-программой.
//
// Каждый результат программы выводится отдельной строкой:
// null-результаты пропускаются, строки выводятся без кавычек,
// остальные значения кодируются обратно в JSON.
type JSONEditProcessor struct{}

// NewJSONEditProcessor создаёт новый JSONEditProcessor.
func NewJSONEditProcessor() *JSONEditProcessor {
	return &JSONEditProcessor{}
}

// Kind возвращает вид процессора.
func (p *JSONEditProcessor) Kind() string {
	return domain.KindJSONEdit
}

// Privilege возвращает необходимую привилегию.
func (p *JSONEditProcessor) Privilege() string {
	return ""
}

// Validate проверяет синтаксис jq-программы.
// Входной документ не проверяется: он обычно подставляется из переменных.
func (p *JSONEditProcessor) Validate(cfg domain.Processor) error {
	c := cfg.JSONEdit
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindJSONEdit)
	}
	if _, err := gojq.Parse(c.Program); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, domain.KindJSONEdit, err)
	}
	return nil
}

// Execute прогоняет документ через программу.
func (p *JSONEditProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.JSONEdit
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindJSONEdit)
	}

	var input any
	if err := json.Unmarshal([]byte(cfg.JSON), &input); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	query, err := gojq.Parse(cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}

	var lines []string
	iter := query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("run program: %w", err)
		}
		if v == nil {
			continue
		}

		if s, isStr := v.(string); isStr {
			lines = append(lines, s)
			continue
		}

		var encoded []byte
		if cfg.PrettyOutput {
			encoded, err = json.MarshalIndent(v, "", "  ")
		} else {
			encoded, err = json.Marshal(v)
		}
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		lines = append(lines, string(encoded))
	}

	return TextResponse(strings.TrimSpace(strings.Join(lines, "\n"))), nil
}
