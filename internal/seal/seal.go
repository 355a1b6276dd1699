// Package seal шифрует содержимое чувствительных сообщений перед записью в хранилище.
//
// Формат конверта: enc:<nonce>:<tag>:<ciphertext>, все части в стандартном base64.
// Ключ AES-256 получается как SHA-256 от строки MSG_ENCRYPTION_KEY.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	// MinKeyLength — ключи короче считаются ненастроенными.
	MinKeyLength = 16
	// Redacted возвращается вместо содержимого, которое нельзя расшифровать.
	Redacted = "[Encrypted]"

	envelopePrefix = "enc:"
	nonceSize      = 12
	tagSize        = 16
)

type Sealer struct {
	aead cipher.AEAD
	rand io.Reader
}

// New возвращает Sealer. При пустом или коротком ключе шифрование выключено:
// Seal пропускает текст как есть, Open возвращает Redacted для конвертов.
func New(key string) (*Sealer, error) {
	s := &Sealer{rand: rand.Reader}
	if len(key) < MinKeyLength {
		return s, nil
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("seal: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("seal: new gcm: %w", err)
	}
	s.aead = aead
	return s, nil
}

func (s *Sealer) Enabled() bool { return s != nil && s.aead != nil }

// IsSealed сообщает, является ли строка конвертом: префикс enc: и три части
// base64 с nonce и тегом нужной длины. Обычный текст вида "enc: ..." конвертом не считается.
func IsSealed(content string) bool {
	_, ok := parseEnvelope(content)
	return ok
}

type envelope struct {
	nonce, tag, ct []byte
}

func parseEnvelope(stored string) (envelope, bool) {
	rest, ok := strings.CutPrefix(stored, envelopePrefix)
	if !ok {
		return envelope{}, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return envelope{}, false
	}
	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return envelope{}, false
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return envelope{}, false
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return envelope{}, false
	}
	return envelope{nonce: nonce, tag: tag, ct: ct}, true
}

// Seal шифрует content, если сообщение помечено sensitive и ключ настроен.
func (s *Sealer) Seal(content string, sensitive bool) (string, error) {
	if !sensitive || !s.Enabled() {
		return content, nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("seal: nonce: %w", err)
	}
	out := s.aead.Seal(nil, nonce, []byte(content), nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]
	enc := base64.StdEncoding
	return envelopePrefix + enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct), nil
}

// Open возвращает исходный текст. Содержимое без конверта отдаётся как есть;
// при отсутствии ключа или ошибке проверки тега — Redacted.
func (s *Sealer) Open(stored string) string {
	env, ok := parseEnvelope(stored)
	if !ok {
		return stored
	}
	if !s.Enabled() {
		return Redacted
	}
	plain, err := s.aead.Open(nil, env.nonce, append(env.ct, env.tag...), nil)
	if err != nil {
		return Redacted
	}
	return string(plain)
}
