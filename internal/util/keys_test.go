package util

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	full, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	parts := strings.SplitN(full, "_", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "cg", parts[0])
	assert.Equal(t, prefix, parts[1])
	assert.Len(t, prefix, 8)
	assert.Len(t, parts[2], 32)
	assert.Equal(t, HashAPIKey(full), hash)
}

func TestNewLicenseKey(t *testing.T) {
	pattern := regexp.MustCompile(`^LG(-[A-Z2-7]{4}){6}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		key, err := NewLicenseKey()
		require.NoError(t, err)
		assert.Regexp(t, pattern, key)
		_, dup := seen[key]
		assert.False(t, dup)
		seen[key] = struct{}{}
	}
}

func TestNormalizeLicenseKey(t *testing.T) {
	assert.Equal(t, "LG-abcd", NormalizeLicenseKey("  LG-abcd \n"))
}
