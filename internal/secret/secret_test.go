package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCodec(t *testing.T) {
	// Пустой ключ недопустим
	if _, err := NewCodec(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}

	// Ключ произвольной длины допустим
	if _, err := NewCodec("k"); err != nil {
		t.Errorf("short key should be accepted: %v", err)
	}
	if _, err := NewCodec(strings.Repeat("long-key-", 32)); err != nil {
		t.Errorf("long key should be accepted: %v", err)
	}
}

func TestCodec_Roundtrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "simple value", plaintext: "hello"},
		{name: "empty value", plaintext: ""},
		{name: "unicode value", plaintext: "значение-секрета"},
		{name: "long value", plaintext: strings.Repeat("x", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := codec.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if encrypted == tt.plaintext && tt.plaintext != "" {
				t.Error("ciphertext should differ from plaintext")
			}

			decrypted, err := codec.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("expected %q, got %q", tt.plaintext, decrypted)
			}
		})
	}
}

func TestCodec_UniqueNonce(t *testing.T) {
	codec, _ := NewCodec("test-secret")

	// Одинаковый plaintext даёт разный шифротекст
	a, _ := codec.Encrypt("same value")
	b, _ := codec.Encrypt("same value")
	if a == b {
		t.Error("two encryptions of the same value should differ")
	}
}

func TestCodec_WrongKey(t *testing.T) {
	first, _ := NewCodec("key-one")
	second, _ := NewCodec("key-two")

	encrypted, err := first.Encrypt("secret value")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := second.Decrypt(encrypted); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity, got %v", err)
	}
}

func TestCodec_Tampered(t *testing.T) {
	codec, _ := NewCodec("test-secret")

	encrypted, err := codec.Encrypt("secret value")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "not base64", encoded: "%%%not-base64%%%"},
		{name: "truncated", encoded: encrypted[:8]},
		{name: "flipped byte", encoded: flipLastChar(encrypted)},
		{name: "empty", encoded: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Decrypt(tt.encoded); !errors.Is(err, ErrIntegrity) {
				t.Errorf("expected ErrIntegrity, got %v", err)
			}
		})
	}
}

func flipLastChar(s string) string {
	if s == "" {
		return s
	}
	last := s[len(s)-1]
	replacement := byte('A')
	if last == 'A' {
		replacement = 'B'
	}
	return s[:len(s)-1] + string(replacement)
}
