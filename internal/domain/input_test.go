package domain

import (
	"errors"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare host gets https",
			input:    "example.com",
			expected: "https://example.com",
		},
		{
			name:     "http kept",
			input:    "http://example.com",
			expected: "http://example.com",
		},
		{
			name:     "https kept",
			input:    "https://example.com",
			expected: "https://example.com",
		},
		{
			name:     "scheme is case insensitive",
			input:    "HTTPS://Example.com/Path",
			expected: "HTTPS://Example.com/Path",
		},
		{
			name:     "path without scheme",
			input:    "nextjs.org/docs",
			expected: "https://nextjs.org/docs",
		},
		{
			name:     "other scheme is treated as host",
			input:    "ftp://files.example.com",
			expected: "https://ftp://files.example.com",
		},
		{
			name:     "surrounding spaces trimmed",
			input:    "  example.com  ",
			expected: "https://example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		url     string
		want    Input
		wantErr error
	}{
		{
			name:  "valid input is trimmed and normalized",
			title: "  Docs ",
			url:   " nextjs.org/docs ",
			want:  Input{Title: "Docs", URL: "https://nextjs.org/docs"},
		},
		{
			name:    "empty title",
			title:   "   ",
			url:     "example.com",
			wantErr: ErrEmptyTitle,
		},
		{
			name:    "empty url",
			title:   "Example",
			url:     "\t",
			wantErr: ErrEmptyURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateInput(tt.title, tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateInput() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ValidateInput() error should wrap ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateInput() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateInput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
