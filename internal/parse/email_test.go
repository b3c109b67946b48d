package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAddress_Valid(t *testing.T) {
	tests := []struct {
		input      string
		local      string
		domain     string
		normalized string
	}{
		{"user@example.com", "user", "example.com", "user@example.com"},
		{"  user@example.com  ", "user", "example.com", "user@example.com"},
		{"first.last@sub.example.org", "first.last", "sub.example.org", "first.last@sub.example.org"},
		{"user+tag@example.com", "user+tag", "example.com", "user+tag@example.com"},
		{"user%x@example.com", "user%x", "example.com", "user%x@example.com"},
		{"User@EXAMPLE.COM", "User", "example.com", "User@example.com"},
		{"user@xn--mnchen-3ya.de", "user", "xn--mnchen-3ya.de", "user@xn--mnchen-3ya.de"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a := NewAddress(tt.input)
			assert.True(t, a.Valid)
			assert.Equal(t, tt.local, a.Local)
			assert.Equal(t, tt.domain, a.Domain)
			assert.Equal(t, tt.normalized, a.Normalized)
		})
	}
}

func TestNewAddress_Invalid(t *testing.T) {
	tests := []string{
		"",
		"no-at-sign",
		"@example.com",
		"user@",
		"user@example",    // no dot in domain
		"user@example.c",  // TLD shorter than two letters
		"user@example.123", // TLD not letters
		"us er@example.com",
		"user@exam ple.com",
		"user@@example.com",
		"user@münchen.de", // non-ASCII domain fails the pattern
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			a := NewAddress(input)
			assert.False(t, a.Valid)
			assert.Equal(t, input, a.Raw)
		})
	}
}

func TestNewAddress_RawIsTrimmed(t *testing.T) {
	a := NewAddress("  bad input  ")
	assert.False(t, a.Valid)
	assert.Equal(t, "bad input", a.Raw)
}
