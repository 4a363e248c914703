package voucher

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	CodeLength   = 20
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// generateCode picks each character uniformly from codeAlphabet.
func generateCode() (string, error) {
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCode is applied to every code a user submits.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
