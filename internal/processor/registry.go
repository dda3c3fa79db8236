package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Registry — реестр видов процессоров.
//
// Позволяет регистрировать и получать реализации Processor по виду.
// Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными процессорами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewGitCloneProcessor())
	r.Register(NewHTTPRequestProcessor())
	r.Register(NewJSONEditProcessor())
	r.Register(NewPrintOutputProcessor())
	r.Register(NewRedisCommandProcessor())
	r.Register(NewShellCommandProcessor())
	r.Register(NewSQLQueryProcessor())
	r.Register(NewStringRegexProcessor())

	return r
}

// Register регистрирует процессор в реестре.
// Если процессор такого вида уже существует, он будет перезаписан.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Kind()] = p
}

// Get возвращает процессор по виду.
// Возвращает ErrKindNotFound, если вид не зарегистрирован.
func (r *Registry) Get(kind string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.processors[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, kind)
	}

	return p, nil
}

// Has проверяет, зарегистрирован ли вид.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.processors[kind]
	return exists
}

// Kinds возвращает список всех зарегистрированных видов.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.processors))
	for k := range r.processors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Count возвращает количество зарегистрированных видов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processors)
}

// ValidateConfig проверяет конфигурацию через процессор её вида.
// Конфигурация с неизвестным или не единственным видом отклоняется.
func (r *Registry) ValidateConfig(cfg domain.Processor) error {
	kind := cfg.Kind()
	if kind == "" {
		return fmt.Errorf("%w: exactly one processor must be configured", ErrInvalidConfig)
	}

	p, err := r.Get(kind)
	if err != nil {
		return err
	}

	return p.Validate(cfg)
}
