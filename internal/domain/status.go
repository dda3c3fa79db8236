package domain

// JobStatus — статус выполнения job.
//
// Жизненный цикл:
//
//	SCHEDULED → PENDING → RUNNING → OK
//	                              ↘ FAILED
//	            (или) → CANCELLED (из любого нефинального статуса)
type JobStatus string

const (
	// JobStatusScheduled — job создан и ожидает, пока его заберёт воркер.
	JobStatusScheduled JobStatus = "SCHEDULED"

	// JobStatusPending — job захвачен воркером, но выполнение ещё не началось.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — job в процессе выполнения.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusOK — все шаги job завершились успешно.
	JobStatusOK JobStatus = "OK"

	// JobStatusFailed — хотя бы один шаг завершился с ошибкой.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled — job отменён до завершения всех шагов.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (job завершён).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusOK, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus парсит строку в JobStatus.
// Неизвестные значения возвращают пустой статус.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "SCHEDULED", "PENDING", "RUNNING", "OK", "FAILED", "CANCELLED":
		return JobStatus(s)
	default:
		return ""
	}
}

// StepStatus — статус выполнения отдельного шага job.
//
// Жизненный цикл:
//
//	INITIALIZED → PENDING → RUNNING → OK
//	                                ↘ FAILED
//	              (или) → CANCELLED (шаг не будет выполнен)
type StepStatus string

const (
	// StepStatusInitialized — шаг записан при создании job, воркер его ещё не видел.
	StepStatusInitialized StepStatus = "INITIALIZED"

	// StepStatusPending — job захвачен, шаг ожидает своей очереди.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusOK — шаг успешно завершён.
	StepStatusOK StepStatus = "OK"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusCancelled — шаг не выполнялся: предыдущий шаг упал
	// или job был отменён снаружи.
	StepStatusCancelled StepStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusOK, StepStatusFailed, StepStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatusFromSteps вычисляет статус job как чистую функцию статусов его шагов.
//
// Правила, в порядке приоритета:
//  1. Хотя бы один FAILED — job FAILED.
//  2. Иначе хотя бы один CANCELLED — job CANCELLED.
//  3. Иначе все OK — job OK.
//  4. Иначе есть RUNNING или частичный прогресс — job RUNNING.
//  5. Иначе — job PENDING.
func JobStatusFromSteps(steps []JobStep) JobStatus {
	allOK := len(steps) > 0
	anyCancelled := false
	anyProgress := false

	for _, s := range steps {
		switch s.Status {
		case StepStatusFailed:
			return JobStatusFailed
		case StepStatusCancelled:
			anyCancelled = true
			allOK = false
		case StepStatusOK:
			anyProgress = true
		case StepStatusRunning:
			anyProgress = true
			allOK = false
		default:
			allOK = false
		}
	}

	switch {
	case anyCancelled:
		return JobStatusCancelled
	case allOK:
		return JobStatusOK
	case anyProgress:
		return JobStatusRunning
	default:
		return JobStatusPending
	}
}
