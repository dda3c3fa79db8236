package engine

import "errors"

// Ошибки валидации task.
var (
	// ErrEmptyName — task не имеет имени.
	ErrEmptyName = errors.New("task has empty name")

	// ErrEmptySteps — task не содержит шагов.
	ErrEmptySteps = errors.New("task has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrInvalidLabel — метка task не соответствует формату.
	ErrInvalidLabel = errors.New("invalid task label")

	// ErrDuplicateVariableKey — несколько переменных с одинаковым ключом.
	ErrDuplicateVariableKey = errors.New("duplicate variable key")

	// ErrEmptyVariableKey — переменная не имеет ключа.
	ErrEmptyVariableKey = errors.New("variable has empty key")

	// ErrInvalidPosition — позиции шагов не образуют 1..N без пропусков.
	ErrInvalidPosition = errors.New("step positions must be contiguous starting at 1")

	// ErrProcessorKind — шаг должен конфигурировать ровно один процессор.
	ErrProcessorKind = errors.New("step must configure exactly one processor")

	// ErrDefaultOutsideSelection — значение по умолчанию вне списка допустимых.
	ErrDefaultOutsideSelection = errors.New("default value violates selection constraint")
)

// Ошибки создания job из task.
var (
	// ErrMissingVariable — обязательная переменная не получила значения.
	ErrMissingVariable = errors.New("missing required variable")

	// ErrSelection — значение переменной вне списка допустимых.
	ErrSelection = errors.New("value violates selection constraint")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrConfigValue — в сохранённой конфигурации шага встретилось значение,
	// которое не может быть отрендерено.
	ErrConfigValue = errors.New("unexpected serialized data stored in database")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Step    string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
