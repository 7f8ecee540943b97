package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen = 100
	MaxCaptionLen     = 2200
	MaxCommentLen     = 1000
	MaxStoryTextLen   = 500
)

var (
	handleRegex = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateHandle reports whether handle is 3-30 lowercase letters, digits,
// underscores or dots. Callers normalize case first.
func ValidateHandle(handle string) bool {
	return handleRegex.MatchString(handle)
}

// ValidateDisplayName validates a display name. Empty is allowed; the
// identity provider's name is used instead.
func ValidateDisplayName(name string) bool {
	name = strings.TrimSpace(name)
	return utf8.RuneCountInString(name) <= MaxDisplayNameLen
}

// ValidateLength reports whether s has at most max runes
func ValidateLength(s string, max int) bool {
	return utf8.RuneCountInString(s) <= max
}

// SanitizeString trims whitespace and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		return string([]rune(s)[:maxLen])
	}
	return s
}
