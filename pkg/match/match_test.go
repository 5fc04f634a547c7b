package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/authzkit/pkg/match"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"exact match", "read", "read", true},
		{"exact mismatch", "read", "write", false},
		{"case sensitive", "Read", "read", false},
		{"global wildcard", "*", "anything", true},
		{"global wildcard empty value", "*", "", true},
		{"prefix wildcard match", "file.*", "file.2024", true},
		{"prefix wildcard fixed part only", "file.*", "file.", true},
		{"prefix wildcard mismatch", "file.*", "dir.2024", false},
		{"suffix wildcard match", "*.2024", "file.2024", true},
		{"suffix wildcard mismatch", "*.2024", "file.2023", false},
		{"interior star is literal", "fi*le", "fi*le", true},
		{"interior star does not expand", "fi*le", "file", false},
		{"empty pattern empty value", "", "", true},
		{"empty pattern non-empty value", "", "x", false},
		{"lone star pattern against star", "*", "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, match.Match(tt.pattern, tt.value))
		})
	}
}
