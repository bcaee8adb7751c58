package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLobbyCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewLobbyCode()
		assert.True(t, pattern.MatchString(code), "unexpected lobby code %q", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "codes should be effectively unique")
}

func TestNewExportToken(t *testing.T) {
	assert.NotEqual(t, NewExportToken(), NewExportToken())
}
