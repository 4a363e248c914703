package auth

import (
	"crypto/rand"
	"encoding/base64"
)

const ReferralCodeLength = 10

func generateReferralCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:ReferralCodeLength], nil
}
