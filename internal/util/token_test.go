package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyToken(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		token, err := GenerateKeyToken()
		require.NoError(t, err)

		assert.Len(t, token, 32)
		assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{32}$`), token)
	})

	t.Run("unique across calls", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			token, err := GenerateKeyToken()
			require.NoError(t, err)
			assert.False(t, seen[token], "token %s generated twice", token)
			seen[token] = true
		}
	})
}
