package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownProvider is returned for a provider that is not configured.
var ErrUnknownProvider = errors.New("unknown sign-in provider")

// SignInURL builds the authorize URL of provider, asking it to send the
// user back to redirectTo.
func SignInURL(providers map[string]string, provider, redirectTo string) (string, error) {
	base, ok := providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url for %s: %w", provider, err)
	}

	q := u.Query()
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
