package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(100, 0)

	tests := []struct {
		name     string
		text     string
		maxRunes int
		check    func(t *testing.T, got string)
	}{
		{
			name:  "blank",
			text:  "  \n\t ",
			check: func(t *testing.T, got string) { assert.Empty(t, got) },
		},
		{
			name:  "short text is kept",
			text:  "  Qubits are fragile.  ",
			check: func(t *testing.T, got string) { assert.Equal(t, "Qubits are fragile.", got) },
		},
		{
			name: "long text keeps the first chunk",
			text: strings.Repeat("alpha ", 30) + "\n\n" + strings.Repeat("omega ", 30),
			check: func(t *testing.T, got string) {
				assert.LessOrEqual(t, len(got), 100)
				assert.True(t, strings.HasPrefix(got, "alpha"))
				assert.NotContains(t, got, "omega")
			},
		},
		{
			name:     "rune limit is applied",
			text:     strings.Repeat("é", 80),
			maxRunes: 10,
			check: func(t *testing.T, got string) {
				assert.Equal(t, 10, utf8.RuneCountInString(got))
				assert.True(t, utf8.ValidString(got))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ts.Excerpt(tt.text, tt.maxRunes))
		})
	}
}
