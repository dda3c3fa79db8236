// Package secret шифрует значения переменных перед записью в базу.
//
// Значения переменных jobs и глобальных переменных могут содержать
// секреты (токены, пароли), поэтому в базе они хранятся только
// в зашифрованном виде и расшифровываются непосредственно перед
// рендерингом конфигурации шага.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// Ошибки кодека.
var (
	// ErrEmptyKey — ключ шифрования не задан.
	ErrEmptyKey = errors.New("secret key is empty")

	// ErrIntegrity — шифротекст повреждён или зашифрован другим ключом.
	ErrIntegrity = errors.New("ciphertext integrity check failed")
)

// Codec — симметричный кодек значений переменных.
//
// Использует XChaCha20-Poly1305. Ключ выводится из произвольной строки
// через SHA-256, случайный nonce добавляется в начало шифротекста,
// результат кодируется в base64.
type Codec struct {
	aead cipher.AEAD
}

// Key возвращает ключевой материал кодека из SERVER_SECRET
// или значение по умолчанию для локальной разработки.
// Все бинари одной инсталляции должны использовать один ключ,
// иначе воркер не сможет расшифровать переменные, записанные API.
func Key() string {
	if key := os.Getenv("SERVER_SECRET"); key != "" {
		return key
	}
	return "conveyor-dev-secret"
}

// NewCodec создаёт кодек из ключевой строки (обычно из окружения).
func NewCodec(key string) (*Codec, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	sum := sha256.Sum256([]byte(key))
	aead, err := chacha20poly1305.NewX(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt шифрует строку и возвращает base64 от nonce+шифротекста.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt расшифровывает строку, полученную из Encrypt.
// Любое повреждение данных или чужой ключ дают ErrIntegrity.
func (c *Codec) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if len(sealed) < c.aead.NonceSize() {
		return "", ErrIntegrity
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}
