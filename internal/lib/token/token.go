// Package token генерирует одноразовые токены восстановления пароля.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// Generate возвращает криптографически случайный токен в hex-кодировке.
func Generate() (string, error) {
	const op = "token.Generate"
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(buf), nil
}
