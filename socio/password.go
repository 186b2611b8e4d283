package socio

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// PasswordAlphabet omits glyphs that are easy to misread (0/O, 1/l/I).
const PasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

const PasswordLength = 12

// GeneratePassword draws length characters uniformly from PasswordAlphabet
// using a cryptographically secure source.
func GeneratePassword(length int) (string, error) {
	return generatePassword(rand.Reader, length)
}

func generatePassword(src io.Reader, length int) (string, error) {
	if length < PasswordLength {
		return "", fmt.Errorf("socio: password length must be at least %d", PasswordLength)
	}
	max := big.NewInt(int64(len(PasswordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(src, max)
		if err != nil {
			return "", fmt.Errorf("socio: generate password: %w", err)
		}
		out[i] = PasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}
