package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotFound — job не найден в БД.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimed — job достался другому воркеру, уже выполнен
	// или отменён до захвата. Не ошибка: кандидат молча пропускается.
	ErrJobNotClaimed = errors.New("job is not in SCHEDULED status")

	// ErrMissingPrivilege — у job нет привилегии для запуска процессора.
	ErrMissingPrivilege = errors.New("missing privilege")
)
