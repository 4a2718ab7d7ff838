package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil input", input: nil, want: nil},
		{name: "trims and drops blanks", input: []string{"  Testlandia ", "", "   "}, want: []string{"Testlandia"}},
		{name: "keeps first occurrence order", input: []string{"b", "a", "b", "c", "a"}, want: []string{"b", "a", "c"}},
		{name: "case sensitive", input: []string{"Testlandia", "testlandia"}, want: []string{"Testlandia", "testlandia"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeLastBy(t *testing.T) {
	type row struct {
		name   string
		region string
	}
	key := func(r row) string { return r.name }

	got := DedupeLastBy([]row{
		{"Testlandia", "Old"},
		{"Maxtopia", "Lazarus"},
		{"Testlandia", "New"},
	}, key)

	assert.Equal(t, []row{{"Testlandia", "New"}, {"Maxtopia", "Lazarus"}}, got)
	assert.Empty(t, DedupeLastBy([]row{}, key))
}
