package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
)

const licenseKeyPrefix = "LG"

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// randomAlnum returns length characters of url-safe base64 with the separator
// characters stripped, so the result never contains '_' or '-'.
func randomAlnum(length int) (string, error) {
	var sb strings.Builder
	for sb.Len() < length {
		b, err := randomBytes((length*3 + 3) / 4)
		if err != nil {
			return "", err
		}
		s := base64.URLEncoding.EncodeToString(b)
		s = strings.NewReplacer("-", "", "_", "", "=", "").Replace(s)
		sb.WriteString(s)
	}
	return sb.String()[:length], nil
}

func GenerateAPIKey() (fullKey string, prefix string, keyHash string, err error) {
	prefix, err = randomAlnum(apikey.APIKeyPrefixLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}

	secret, err := randomAlnum(apikey.APIKeySecretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	fullKey = fmt.Sprintf(apikey.APIKeyFormat, prefix, secret)
	return fullKey, prefix, HashAPIKey(fullKey), nil
}

func HashAPIKey(fullKey string) string {
	sum := sha256.Sum256([]byte(fullKey))
	return hex.EncodeToString(sum[:])
}

// NewLicenseKey returns a human-typable key such as LG-ABCD-EFGH-....
// 15 random bytes give 24 base32 characters, grouped by four.
func NewLicenseKey() (string, error) {
	b, err := randomBytes(15)
	if err != nil {
		return "", err
	}
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)

	parts := []string{licenseKeyPrefix}
	for i := 0; i < len(s); i += 4 {
		end := min(i+4, len(s))
		parts = append(parts, s[i:end])
	}
	return strings.Join(parts, "-"), nil
}

// NormalizeLicenseKey strips whitespace pasted around a key. Keys are opaque
// otherwise and compared byte for byte.
func NormalizeLicenseKey(key string) string {
	return strings.TrimSpace(key)
}
