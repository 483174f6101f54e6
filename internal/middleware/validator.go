package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

var (
	auditIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	eventIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)
)

// ValidateAuditID validates audit ID format
func ValidateAuditID(id string) error {
	if id == "" {
		return fmt.Errorf("audit ID cannot be empty")
	}
	if !auditIDPattern.MatchString(id) {
		return fmt.Errorf("invalid audit ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateEventID validates event ID format
func ValidateEventID(id string) error {
	if id == "" {
		return fmt.Errorf("event ID cannot be empty")
	}
	if !eventIDPattern.MatchString(id) {
		return fmt.Errorf("invalid event ID format")
	}
	return nil
}

// ValidateCompanyName accepts an empty name; otherwise it must be printable and short.
func ValidateCompanyName(name string) error {
	if utf8.RuneCountInString(name) > 255 {
		return fmt.Errorf("company name too long (max 255 chars)")
	}
	if strings.TrimSpace(name) != SanitizeString(name) {
		return fmt.Errorf("company name contains control characters")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
