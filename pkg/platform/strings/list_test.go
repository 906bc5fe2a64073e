package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "only blanks", input: []string{"", " , ,"}, expected: nil},
		{name: "one env string", input: []string{"a:1, b:2"}, expected: []string{"a:1", "b:2"}},
		{name: "already split", input: []string{"a:1", " b:2 "}, expected: []string{"a:1", "b:2"}},
		{name: "duplicates keep first position", input: []string{"b,a", "b", "c,a"}, expected: []string{"b", "a", "c"}},
		{name: "case sensitive", input: []string{"https://A.example.com,https://a.example.com"},
			expected: []string{"https://A.example.com", "https://a.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}
