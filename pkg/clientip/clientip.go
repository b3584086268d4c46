package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is the bucket used when no client address can be determined.
const Unknown = "unknown"

// GetIP returns the client IP address for the request.
// It never returns an empty string.
func GetIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: "client, proxy1, proxy2".
	// The leftmost entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(strings.TrimSpace(first)); ip != "" {
			return ip
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		if ip := parseIP(strings.TrimSpace(realIP)); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		// RemoteAddr is usually "host:port", but not always.
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			if ip := parseIP(host); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.RemoteAddr); ip != "" {
			return ip
		}
		return r.RemoteAddr
	}

	return Unknown
}

// parseIP validates and normalizes an IP string.
// Returns "" for invalid or unspecified addresses.
func parseIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
