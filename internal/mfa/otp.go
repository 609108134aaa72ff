package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"math/big"
)

// OTPDigits is the length of a one-time code.
const OTPDigits = 6

var ten = big.NewInt(10)

// GenerateOTP returns a 6-digit numeric OTP string (e.g. "042917").
// Each digit is drawn independently and uniformly from crypto/rand.
func GenerateOTP() (string, error) {
	return generateOTP(rand.Reader)
}

func generateOTP(r io.Reader) (string, error) {
	s := make([]byte, OTPDigits)
	for i := range s {
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// HashOTP returns a SHA-256 hash of the OTP string, hex-encoded.
func HashOTP(otp string) string {
	h := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(h[:])
}

// OTPEqual performs constant-time comparison of the provided OTP's hash with the stored hash.
// An empty OTP never matches.
func OTPEqual(providedOTP, storedHash string) bool {
	if providedOTP == "" {
		return false
	}
	providedHash := HashOTP(providedOTP)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
