package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Task — переиспользуемое определение работы.
//
// Task — это "рецепт": упорядоченный список шагов, параметризованный
// переменными. Сам по себе task ничего не выполняет; при запуске из него
// создаётся Job — неизменяемый снимок шагов и значений переменных.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя task (например, "deploy-docs", "nightly-backup").
	Name string `json:"name"`

	// Description — описание назначения task.
	Description string `json:"description,omitempty"`

	// Labels — метки для группировки и поиска.
	// Каждая метка: строчные латинские буквы, цифры и подчёркивания.
	Labels []string `json:"labels,omitempty"`

	// Variables — объявленные переменные task.
	Variables []Variable `json:"variables,omitempty"`

	// Steps — шаги в порядке выполнения.
	Steps []Step `json:"steps"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// VariableByKey возвращает переменную task по ключу.
// Возвращает nil, если переменная не объявлена.
func (t *Task) VariableByKey(key string) *Variable {
	for i := range t.Variables {
		if t.Variables[i].Key == key {
			return &t.Variables[i]
		}
	}
	return nil
}

// labelPattern — допустимый формат метки.
var labelPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidLabel возвращает true, если строка — допустимая метка task.
func ValidLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// Variable — объявление переменной task.
//
// Переменные подставляются в конфигурацию шагов при выполнении job.
// Переменная без значения по умолчанию обязательна: без неё job
// не может быть создан.
type Variable struct {
	// ID — уникальный идентификатор переменной.
	ID uuid.UUID `json:"id"`

	// TaskID — ссылка на родительский task.
	TaskID uuid.UUID `json:"task_id"`

	// Key — имя переменной, уникальное в рамках task.
	Key string `json:"key"`

	// Description — описание назначения переменной.
	Description string `json:"description,omitempty"`

	// DefaultValue — значение по умолчанию.
	// Nil означает, что значение обязательно при создании job.
	DefaultValue *string `json:"default_value,omitempty"`

	// ExampleValue — пример значения для подсказки пользователю.
	ExampleValue *string `json:"example_value,omitempty"`

	// Selection — допустимые значения переменной.
	// Пустой список означает отсутствие ограничения.
	Selection []string `json:"selection,omitempty"`
}

// IsRequired возвращает true, если переменная обязательна при создании job.
func (v *Variable) IsRequired() bool {
	return v.DefaultValue == nil
}

// AllowsValue возвращает true, если значение проходит ограничение Selection.
func (v *Variable) AllowsValue(value string) bool {
	if len(v.Selection) == 0 {
		return true
	}
	for _, s := range v.Selection {
		if s == value {
			return true
		}
	}
	return false
}

// Step — шаг task: именованный вызов одного процессора.
type Step struct {
	// ID — уникальный идентификатор шага.
	ID uuid.UUID `json:"id"`

	// TaskID — ссылка на родительский task.
	TaskID uuid.UUID `json:"task_id"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name"`

	// Description — описание назначения шага.
	Description string `json:"description,omitempty"`

	// Processor — конфигурация процессора (ровно один вид).
	Processor Processor `json:"processor"`

	// Position — порядковый номер шага в task, начиная с 1.
	// Шаги job выполняются строго в этом порядке.
	Position int `json:"position"`

	// AdvertisedVariableKey — ключ переменной, в которую после успешного
	// выполнения шага записывается его текстовый вывод.
	AdvertisedVariableKey *string `json:"advertised_variable_key,omitempty"`
}

// OnConflict — поведение при создании сущности с занятым именем/ключом.
type OnConflict string

const (
	// OnConflictAbort — вернуть ошибку, ничего не менять.
	OnConflictAbort OnConflict = "ABORT"

	// OnConflictUpdate — заменить существующую сущность новым содержимым.
	OnConflictUpdate OnConflict = "UPDATE"
)

// Valid возвращает true для известных значений OnConflict.
func (c OnConflict) Valid() bool {
	return c == OnConflictAbort || c == OnConflictUpdate
}
