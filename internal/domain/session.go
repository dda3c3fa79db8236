package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session — сессия клиента API с набором привилегий.
//
// Токен сессии передаётся в заголовке Authorization. Привилегии сессии
// снимаются на job в момент его создания: воркер проверяет снимок,
// а не таблицу сессий, поэтому отзыв привилегий не влияет
// на уже созданные jobs.
type Session struct {
	// ID — уникальный идентификатор сессии.
	ID uuid.UUID `json:"id"`

	// Token — секретный токен для аутентификации запросов.
	Token uuid.UUID `json:"token"`

	// Privileges — привилегии сессии (см. Privilege* константы).
	Privileges []string `json:"privileges"`

	// CreatedAt — время создания сессии.
	CreatedAt time.Time `json:"created_at"`
}

// HasPrivilege возвращает true, если сессия обладает привилегией token.
func (s *Session) HasPrivilege(token string) bool {
	for _, p := range s.Privileges {
		if p == token {
			return true
		}
	}
	return false
}
