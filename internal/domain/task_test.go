package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskType_Valid(t *testing.T) {
	tests := []struct {
		in   TaskType
		want bool
	}{
		{"BUILD", true},
		{"deploy.prod-eu_1", true},
		{TaskType(strings.Repeat("A", 64)), true},
		{"", false},
		{"MY BUILD", false},
		{"build/all", false},
		{TaskType(strings.Repeat("A", 65)), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Valid(), string(tt.in))
	}
}
