package http

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// sanitizeInput trims s and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func sanitizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, sanitizeInput(n))
	}
	return out
}

// parseLimit reads ?limit=, clamped to [1, maxActivityLimit].
func parseLimit(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return defaultActivityLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultActivityLimit
	}
	return min(n, maxActivityLimit)
}

// requestBaseURL rebuilds the public root URL from the request when no
// public base URL is configured.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		scheme = p
	}
	return scheme + "://" + r.Host + "/"
}
