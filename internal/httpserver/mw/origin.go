package mw

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// CheckOrigin returns the websocket origin policy. Entries are full origins
// ("https://app.example.com") or host patterns ("*.example.com"). With an
// empty list only same-host origins pass. Requests without an Origin header
// are not from a browser and always pass.
func CheckOrigin(allowed []string, log logger.Logger) func(r *http.Request) bool {
	if len(allowed) == 0 {
		log.Debug("CheckOrigin: empty allow-list, same host only")
	} else {
		log.Debugf("CheckOrigin: initialized with origins=%v", allowed)
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			log.Debugf("CheckOrigin: malformed Origin %q REJECTED", origin)
			return false
		}

		if len(allowed) == 0 {
			return strings.EqualFold(u.Host, r.Host)
		}
		for _, pattern := range allowed {
			if matchOrigin(u, pattern) {
				return true
			}
		}
		log.Debugf("CheckOrigin: Origin %s REJECTED", origin)
		return false
	}
}

func matchOrigin(origin *url.URL, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if strings.Contains(pattern, "://") {
		return strings.ToLower(origin.Scheme+"://"+origin.Host) == strings.TrimSuffix(pattern, "/")
	}
	return matchHost(strings.ToLower(origin.Host), pattern)
}

// matchHost checks if host matches pattern (supports wildcard *.example.com)
func matchHost(host, pattern string) bool {
	// Exact match
	if host == pattern {
		return true
	}

	// Wildcard match: *.example.com matches sub.example.com
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // Remove * to get .example.com
		return strings.HasSuffix(host, suffix)
	}

	return false
}
