package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		handle string
		want   bool
	}{
		{"alice", true},
		{"a.b_c9", true},
		{"ab", false},
		{"Alice", false},
		{"has space", false},
		{strings.Repeat("x", 31), false},
	}
	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateHandle(tt.handle))
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())

	errs.Add("handle", "too short")
	errs.Add("caption", "too long")
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "handle: too short; caption: too long", errs.Error())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "héllo", SanitizeString("  héllo wörld ", 5))
	assert.Equal(t, "ok", SanitizeString(" ok ", 10))
	assert.True(t, ValidateLength("ñññ", 3))
	assert.False(t, ValidateLength("ñññ", 2))
	assert.True(t, ValidateDisplayName(""))
}
