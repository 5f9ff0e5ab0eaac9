package app

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet excludes characters that are easy to misread: 0, O, 1, I, L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	DefaultCodeLength = 6
	maxCodeAttempts   = 10
)

// GenerateRoomCode returns a random human-typeable room code.
func GenerateRoomCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	code := make([]byte, length)
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
