package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "bare identifier",
			template: "clone into {{repo_path}}",
			expected: "clone into {{.repo_path}}",
		},
		{
			name:     "spaces around identifier",
			template: "{{ workspace }}/src",
			expected: "{{.workspace}}/src",
		},
		{
			name:     "several placeholders",
			template: "{{host}}:{{port}}",
			expected: "{{.host}}:{{.port}}",
		},
		{
			name:     "dotted form untouched",
			template: "{{.already}}",
			expected: "{{.already}}",
		},
		{
			name:     "keywords untouched",
			template: "{{if .ok}}yes{{else}}no{{end}}",
			expected: "{{if .ok}}yes{{else}}no{{end}}",
		},
		{
			name:     "function names untouched",
			template: "{{lower .name}}",
			expected: "{{lower .name}}",
		},
		{
			name:     "plain text untouched",
			template: "no placeholders here",
			expected: "no placeholders here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.template); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRender(t *testing.T) {
	ctx := NewContext(map[string]string{
		"repo_url": "https://example.com/repo.git",
		"branch":   "main",
	})
	ctx.SetWorkspace("/tmp/job-1")
	ctx.SetPreviousOutput("2024")

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "variable",
			template: "clone {{repo_url}}",
			expected: "clone https://example.com/repo.git",
		},
		{
			name:     "system workspace",
			template: "{{workspace}}/src",
			expected: "/tmp/job-1/src",
		},
		{
			name:     "system previous output",
			template: "year={{previous_output}}",
			expected: "year=2024",
		},
		{
			name:     "template function",
			template: "{{upper .branch}}",
			expected: "MAIN",
		},
		{
			name:     "no template",
			template: "plain",
			expected: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_MissingVariable(t *testing.T) {
	ctx := NewContext(map[string]string{"known": "v"})

	// Необъявленная переменная — ошибка, а не пустая подстановка
	_, err := Render("{{unknown}}", ctx)
	if !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", err)
	}
}

func TestRender_ParseError(t *testing.T) {
	ctx := NewContext(nil)

	_, err := Render("{{if}}", ctx)
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}

func TestRender_VariableOverridesNothing(t *testing.T) {
	// Системный ключ имеет приоритет над одноимённой переменной пула
	ctx := NewContext(map[string]string{"workspace": "/elsewhere"})
	ctx.SetWorkspace("/tmp/job-2")

	result := MustRender("{{workspace}}", ctx)
	if result != "/tmp/job-2" {
		t.Errorf("system key should win, got %q", result)
	}
}

func TestContext_Set(t *testing.T) {
	ctx := NewContext(map[string]string{"key": "old"})

	// Объявленная шагом переменная заменяет прежнее значение
	ctx.Set("key", "new")
	if got := MustRender("{{key}}", ctx); got != "new" {
		t.Errorf("expected %q, got %q", "new", got)
	}

	ctx.Set("fresh", "value")
	if got := MustRender("{{fresh}}", ctx); got != "value" {
		t.Errorf("expected %q, got %q", "value", got)
	}
}

func TestRenderConfig(t *testing.T) {
	ctx := NewContext(map[string]string{
		"url":    "https://example.com",
		"token":  "s3cr3t",
		"branch": "main",
	})

	config := map[string]any{
		"url":    "{{url}}/api",
		"method": "POST",
		"headers": []any{
			map[string]any{"name": "Authorization", "value": "Bearer {{token}}"},
		},
		"assertStatus": []any{float64(200), float64(201)},
		"prettyOutput": true,
		"body":         nil,
	}

	rendered, err := RenderConfig(config, ctx)
	if err != nil {
		t.Fatalf("RenderConfig failed: %v", err)
	}

	if rendered["url"] != "https://example.com/api" {
		t.Errorf("url not rendered: %v", rendered["url"])
	}

	headers, ok := rendered["headers"].([]any)
	if !ok || len(headers) != 1 {
		t.Fatalf("headers shape lost: %v", rendered["headers"])
	}
	header := headers[0].(map[string]any)
	if header["value"] != "Bearer s3cr3t" {
		t.Errorf("nested value not rendered: %v", header["value"])
	}

	// Числа и булевы значения проходят без изменений
	statuses := rendered["assertStatus"].([]any)
	if statuses[0] != float64(200) || statuses[1] != float64(201) {
		t.Errorf("numbers should pass through: %v", statuses)
	}
	if rendered["prettyOutput"] != true {
		t.Errorf("bool should pass through: %v", rendered["prettyOutput"])
	}
	if rendered["body"] != nil {
		t.Errorf("null should stay nil: %v", rendered["body"])
	}
}

func TestRenderValue_UnexpectedLeaf(t *testing.T) {
	ctx := NewContext(nil)

	// В конфигурации из базы могут быть только типы JSON;
	// всё остальное — повреждение данных
	_, err := RenderValue(map[string]any{"bad": make(chan int)}, ctx)
	if !errors.Is(err, ErrConfigValue) {
		t.Errorf("expected ErrConfigValue, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "unexpected serialized data stored in database") {
		t.Errorf("unexpected message: %v", err)
	}
}
