package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"only separators and spaces", " , ,, ", nil},
		{"scale factors", "1,1.5,2", []string{"1", "1.5", "2"}},
		{"uneven spacing", "1, 1.5 ,2", []string{"1", "1.5", "2"}},
		{"trailing comma", "1,2,3,", []string{"1", "2", "3"}},
		{"inner spaces kept", "ibm qpu, sim", []string{"ibm qpu", "sim"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}
