package domain

import "encoding/json"

// Виды процессоров. Значения совпадают с JSON-ключами в конфигурации шага.
const (
	KindGitClone     = "gitClone"
	KindHTTPRequest  = "httpRequest"
	KindJSONEdit     = "jsonEdit"
	KindPrintOutput  = "printOutput"
	KindRedisCommand = "redisCommand"
	KindShellCommand = "shellCommand"
	KindSQLQuery     = "sqlQuery"
	KindStringRegex  = "stringRegex"
)

// Привилегии, которыми сессия должна обладать для запуска
// соответствующих процессоров.
const (
	PrivilegeShellCommand = "shell_command"
	PrivilegeSQLQuery     = "sql_query"
	PrivilegeRedisCommand = "redis_command"
)

// ValidPrivilege возвращает true для известных токенов привилегий.
func ValidPrivilege(token string) bool {
	switch token {
	case PrivilegeShellCommand, PrivilegeSQLQuery, PrivilegeRedisCommand:
		return true
	}
	return false
}

// Processor — конфигурация процессора шага: размеченное объединение.
//
// Ровно одно поле должно быть заполнено; оно определяет вид процессора.
// Сериализуется в JSON вида {"stringRegex": {...}} — ключ служит меткой вида.
type Processor struct {
	GitClone     *GitCloneConfig     `json:"gitClone,omitempty"`
	HTTPRequest  *HTTPRequestConfig  `json:"httpRequest,omitempty"`
	JSONEdit     *JSONEditConfig     `json:"jsonEdit,omitempty"`
	PrintOutput  *PrintOutputConfig  `json:"printOutput,omitempty"`
	RedisCommand *RedisCommandConfig `json:"redisCommand,omitempty"`
	ShellCommand *ShellCommandConfig `json:"shellCommand,omitempty"`
	SQLQuery     *SQLQueryConfig     `json:"sqlQuery,omitempty"`
	StringRegex  *StringRegexConfig  `json:"stringRegex,omitempty"`
}

// Kinds возвращает метки всех заполненных полей.
// У валидного Processor ровно одна метка.
func (p Processor) Kinds() []string {
	var kinds []string
	if p.GitClone != nil {
		kinds = append(kinds, KindGitClone)
	}
	if p.HTTPRequest != nil {
		kinds = append(kinds, KindHTTPRequest)
	}
	if p.JSONEdit != nil {
		kinds = append(kinds, KindJSONEdit)
	}
	if p.PrintOutput != nil {
		kinds = append(kinds, KindPrintOutput)
	}
	if p.RedisCommand != nil {
		kinds = append(kinds, KindRedisCommand)
	}
	if p.ShellCommand != nil {
		kinds = append(kinds, KindShellCommand)
	}
	if p.SQLQuery != nil {
		kinds = append(kinds, KindSQLQuery)
	}
	if p.StringRegex != nil {
		kinds = append(kinds, KindStringRegex)
	}
	return kinds
}

// Kind возвращает вид процессора.
// Возвращает пустую строку, если заполнено не ровно одно поле.
func (p Processor) Kind() string {
	kinds := p.Kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Privilege возвращает привилегию, необходимую для запуска процессора.
// Пустая строка означает, что процессор доступен без привилегий.
func (p Processor) Privilege() string {
	switch p.Kind() {
	case KindShellCommand:
		return PrivilegeShellCommand
	case KindSQLQuery:
		return PrivilegeSQLQuery
	case KindRedisCommand:
		return PrivilegeRedisCommand
	default:
		return ""
	}
}

// config возвращает указатель на заполненное поле.
func (p Processor) config() any {
	switch p.Kind() {
	case KindGitClone:
		return p.GitClone
	case KindHTTPRequest:
		return p.HTTPRequest
	case KindJSONEdit:
		return p.JSONEdit
	case KindPrintOutput:
		return p.PrintOutput
	case KindRedisCommand:
		return p.RedisCommand
	case KindShellCommand:
		return p.ShellCommand
	case KindSQLQuery:
		return p.SQLQuery
	case KindStringRegex:
		return p.StringRegex
	default:
		return nil
	}
}

// ConfigMap возвращает конфигурацию заполненного вида как дерево
// декодированного JSON. Используется для рендеринга шаблонных плейсхолдеров
// по всем строковым листьям конфигурации.
func (p Processor) ConfigMap() (map[string]any, error) {
	raw, err := json.Marshal(p.config())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// WithConfigMap возвращает копию Processor того же вида с конфигурацией,
// восстановленной из дерева JSON. Обратная операция к ConfigMap.
func (p Processor) WithConfigMap(m map[string]any) (Processor, error) {
	raw, err := json.Marshal(map[string]any{p.Kind(): m})
	if err != nil {
		return Processor{}, err
	}
	var out Processor
	if err := json.Unmarshal(raw, &out); err != nil {
		return Processor{}, err
	}
	return out, nil
}

// GitCloneConfig — клонирование git-репозитория в рабочую директорию job.
type GitCloneConfig struct {
	// URL — адрес репозитория.
	URL string `json:"url"`

	// Path — поддиректория рабочей директории для клонирования.
	// Nil — клонировать в корень рабочей директории.
	Path *string `json:"path,omitempty"`

	// Username и Password — учётные данные HTTP basic auth.
	// Используются только когда заданы оба.
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// HTTPRequestConfig — HTTP запрос к внешнему сервису.
type HTTPRequestConfig struct {
	// URL — адрес запроса.
	URL string `json:"url"`

	// Method — HTTP метод (GET, POST, ...).
	Method string `json:"method"`

	// Headers — заголовки запроса.
	Headers []Header `json:"headers,omitempty"`

	// Body — тело запроса.
	Body *string `json:"body,omitempty"`

	// AssertStatus — допустимые коды ответа.
	// Пустой список — любой код считается успехом.
	AssertStatus []int `json:"assertStatus,omitempty"`
}

// Header — заголовок HTTP запроса.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// JSONEditConfig — трансформация JSON документа jq-программой.
type JSONEditConfig struct {
	// JSON — входной документ.
	JSON string `json:"json"`

	// Program — jq-программа.
	Program string `json:"program"`

	// PrettyOutput — форматировать результат с отступами.
	PrettyOutput bool `json:"prettyOutput,omitempty"`
}

// PrintOutputConfig — вывод строки как результата шага.
type PrintOutputConfig struct {
	// Output — строка для вывода. Поддерживает разметку Markdown.
	Output string `json:"output"`
}

// RedisCommandConfig — выполнение команды Redis.
type RedisCommandConfig struct {
	// URL — адрес сервера (redis://...).
	URL string `json:"url"`

	// Command — имя команды (GET, SET, LPUSH, ...).
	Command string `json:"command"`

	// Args — аргументы команды.
	Args []string `json:"args,omitempty"`
}

// ShellCommandConfig — запуск команды оболочки в рабочей директории job.
type ShellCommandConfig struct {
	// Command — исполняемый файл.
	Command string `json:"command"`

	// Args — аргументы команды.
	Args []string `json:"args,omitempty"`

	// Cwd — рабочая директория команды относительно рабочей директории job.
	Cwd *string `json:"cwd,omitempty"`

	// Paths — директории относительно рабочей директории job,
	// добавляемые в PATH на время выполнения.
	Paths []string `json:"paths,omitempty"`

	// Stdin — строка, передаваемая команде на стандартный ввод.
	Stdin *string `json:"stdin,omitempty"`
}

// SQLQueryConfig — выполнение читающего SQL запроса к PostgreSQL.
type SQLQueryConfig struct {
	// URL — строка подключения (postgres://...).
	URL string `json:"url"`

	// Query — текст запроса. Допускается один SELECT.
	Query string `json:"query"`

	// Parameters — позиционные параметры запроса ($1, $2, ...).
	Parameters []SQLParameter `json:"parameters,omitempty"`
}

// SQLParameter — типизированный параметр SQL запроса.
// Ровно одно поле должно быть заполнено.
type SQLParameter struct {
	Text *string `json:"text,omitempty"`
	Int  *int    `json:"int,omitempty"`
	Bool *bool   `json:"bool,omitempty"`
}

// Value возвращает заполненное значение параметра.
// Возвращает nil, если заполнено не ровно одно поле.
func (p SQLParameter) Value() any {
	set := 0
	var v any
	if p.Text != nil {
		set++
		v = *p.Text
	}
	if p.Int != nil {
		set++
		v = *p.Int
	}
	if p.Bool != nil {
		set++
		v = *p.Bool
	}
	if set != 1 {
		return nil
	}
	return v
}

// StringRegexConfig — применение регулярного выражения к строке.
type StringRegexConfig struct {
	// Input — входная строка.
	Input string `json:"input"`

	// Regex — регулярное выражение.
	Regex string `json:"regex"`

	// MismatchError — текст ошибки, возвращаемый при несовпадении
	// вместо стандартного сообщения.
	MismatchError *string `json:"mismatchError,omitempty"`

	// Replace — строка замены (поддерживает ссылки $1, $2, ...).
	// Nil — вернуть первое совпадение вместо замены.
	Replace *string `json:"replace,omitempty"`
}
