package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is the parent of every input rejection.
	ErrValidation = errors.New("invalid bookmark")
	ErrEmptyTitle = fmt.Errorf("%w: title is required", ErrValidation)
	ErrEmptyURL   = fmt.Errorf("%w: url is required", ErrValidation)
)

// Input is a validated create request.
type Input struct {
	Title string
	URL   string
}

// ValidateInput trims title and url, rejects empty values and normalizes the URL.
func ValidateInput(title, rawURL string) (Input, error) {
	t := strings.TrimSpace(title)
	u := strings.TrimSpace(rawURL)

	if t == "" {
		return Input{}, ErrEmptyTitle
	}
	if u == "" {
		return Input{}, ErrEmptyURL
	}

	return Input{Title: t, URL: NormalizeURL(u)}, nil
}

// NormalizeURL prepends https:// when raw has no http(s) scheme.
// Examples: "example.com" -> "https://example.com"
//
//	"HTTP://example.com" -> unchanged
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + u
}
