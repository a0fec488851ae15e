package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

const accessCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewAccessCode returns a random alphanumeric capability token for public
// share links. The code is the only lookup key for public access.
func NewAccessCode(length int) string {
	bytes := make([]byte, length)
	_, _ = rand.Read(bytes)
	code := make([]byte, length)
	for i, b := range bytes {
		code[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(code)
}
