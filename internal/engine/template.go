package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// Context — контекст для рендеринга конфигурации шага.
//
// Содержит плоский пул переменных job (глобальные переменные, поверх них —
// переменные job) и системные значения, доступные в шаблонах:
//   - {{workspace}} — абсолютный путь рабочей директории job
//   - {{previous_output}} — текстовый вывод предыдущего шага
type Context struct {
	vars           map[string]string
	workspace      string
	previousOutput string
}

// NewContext создаёт контекст с расшифрованным пулом переменных.
func NewContext(vars map[string]string) *Context {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &Context{vars: vars}
}

// Set добавляет или заменяет переменную пула.
// Используется, когда шаг объявляет переменную своим выводом.
func (c *Context) Set(key, value string) {
	c.vars[key] = value
}

// SetWorkspace устанавливает путь рабочей директории job.
func (c *Context) SetWorkspace(path string) {
	c.workspace = path
}

// Workspace возвращает путь рабочей директории job.
func (c *Context) Workspace() string {
	return c.workspace
}

// SetPreviousOutput устанавливает вывод предыдущего шага.
// Для первого шага и после шага без вывода значение — пустая строка.
func (c *Context) SetPreviousOutput(text string) {
	c.previousOutput = text
}

// Data собирает данные для text/template.
// Системные ключи имеют приоритет над одноимёнными переменными пула.
func (c *Context) Data() map[string]any {
	data := make(map[string]any, len(c.vars)+2)
	for k, v := range c.vars {
		data[k] = v
	}
	data["workspace"] = c.workspace
	data["previous_output"] = c.previousOutput
	return data
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// hasPrefix — проверяет префикс строки
	"hasPrefix": strings.HasPrefix,

	// hasSuffix — проверяет суффикс строки
	"hasSuffix": strings.HasSuffix,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// bareIdent находит действия шаблона, состоящие из одного идентификатора:
// {{repo_path}}, {{ workspace }}.
var bareIdent = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// reservedWords — слова, которые нельзя превращать в обращение к переменной:
// ключевые слова text/template, встроенные и зарегистрированные функции.
var reservedWords = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"template": true, "block": true, "define": true, "break": true,
	"continue": true, "nil": true, "true": true, "false": true,
	"and": true, "or": true, "not": true, "len": true, "index": true,
	"slice": true, "print": true, "printf": true, "println": true,
	"html": true, "js": true, "urlquery": true, "call": true,
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"json": true, "default": true, "coalesce": true, "join": true,
	"split": true, "contains": true, "hasPrefix": true, "hasSuffix": true,
	"lower": true, "upper": true, "trim": true, "replace": true,
}

// normalize превращает плоские плейсхолдеры в обращения к данным шаблона:
// {{repo_path}} → {{.repo_path}}.
//
// Конфигурации шагов пишутся в плоской форме без точки; полная форма
// text/template ({{.key}}, {{if ...}}, функции) остаётся доступной.
func normalize(tmpl string) string {
	return bareIdent.ReplaceAllStringFunc(tmpl, func(action string) string {
		ident := bareIdent.FindStringSubmatch(action)[1]
		if reservedWords[ident] {
			return action
		}
		return "{{." + ident + "}}"
	})
}

// Render рендерит строковый шаблон с контекстом.
//
// Обращение к необъявленной переменной — ошибка рендеринга, а не пустая
// подстановка: молчаливо потерянный секрет в команде хуже явного отказа.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(normalize(tmpl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx.Data()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит значение из декодированной JSON конфигурации.
// Строки рендерятся, объекты и массивы обходятся рекурсивно, числа и
// булевы значения проходят без изменений, null пропускается.
func RenderValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil

	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case float64, bool:
		return value, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrConfigValue, value)
	}
}

// RenderConfig рендерит конфигурацию процессора.
// Это обёртка над RenderValue для map[string]any.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	if config == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(config, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только для тестов.
func MustRender(tmpl string, ctx *Context) string {
	result, err := Render(tmpl, ctx)
	if err != nil {
		panic(err)
	}
	return result
}
