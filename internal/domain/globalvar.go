package domain

import "time"

// GlobalVariable — переменная, доступная всем jobs.
//
// Глобальные переменные не копируются в job при создании: они подставляются
// в момент рендеринга шага, причём одноимённая переменная job имеет
// приоритет. Значение шифруется перед записью в базу.
type GlobalVariable struct {
	// Key — имя переменной, уникальное среди глобальных.
	Key string `json:"key"`

	// Value — зашифрованное значение. Наружу никогда не отдаётся.
	Value string `json:"-"`

	// CreatedAt — время создания переменной.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения значения.
	UpdatedAt time.Time `json:"updated_at"`
}
