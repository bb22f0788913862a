// Package validation checks user supplied provider endpoints and state
// paths before they are used.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// EndpointValidator checks provider base URLs and feed URLs.
type EndpointValidator struct {
	// AllowLocal permits loopback and private network hosts.
	AllowLocal bool
	MaxLength  int
}

func NewEndpointValidator() *EndpointValidator {
	return &EndpointValidator{MaxLength: 2048}
}

// NewLocalEndpointValidator accepts local hosts, for self-hosted feeds and
// tests.
func NewLocalEndpointValidator() *EndpointValidator {
	return &EndpointValidator{AllowLocal: true, MaxLength: 2048}
}

// Validate returns the normalized URL or an error describing the first
// problem found.
func (v *EndpointValidator) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if v.MaxLength > 0 && len(raw) > v.MaxLength {
		return "", fmt.Errorf("endpoint too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(raw, "<>\"'` ") {
		return "", fmt.Errorf("endpoint contains invalid characters")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint must have a host")
	}
	// API keys go in headers or query parameters, never in the URL userinfo.
	if u.User != nil {
		return "", fmt.Errorf("endpoint must not carry credentials")
	}
	if !v.AllowLocal && isLocalHost(u.Hostname()) {
		return "", fmt.Errorf("local endpoint %q not permitted", u.Hostname())
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("directory traversal not allowed in endpoint path")
	}

	u.Fragment = ""
	return u.String(), nil
}

func isLocalHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
