package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "whitespace only", input: "   ", expected: nil},
		{name: "only commas", input: ", ,,", expected: nil},
		{name: "single index", input: "^N225", expected: []string{"^N225"}},
		{name: "varied spacing", input: "^N225,  ^TOPX , 1306.T", expected: []string{"^N225", "^TOPX", "1306.T"}},
		{name: "trailing comma", input: "PASS_COMPLETED,", expected: []string{"PASS_COMPLETED"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseCSVOf(t *testing.T) {
	known := []string{"PASS_COMPLETED", "NOTICES_DISPATCHED"}

	got, err := ParseCSVOf("notices_dispatched, PASS_COMPLETED,Notices_Dispatched", known)
	require.NoError(t, err)
	assert.Equal(t, []string{"NOTICES_DISPATCHED", "PASS_COMPLETED"}, got)

	got, err = ParseCSVOf(" , ", known)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseCSVOf("PASS_COMPLETED,ORDER_FILLED", known)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ORDER_FILLED"`)
}
