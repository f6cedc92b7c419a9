// Package endpoint resolves backend addresses into WebSocket URLs.
//
// Configuration may specify http/https URLs (the same host serves the REST
// snapshot API); Resolve upgrades the scheme to ws/wss so the transport
// always receives a dialable WebSocket address.
package endpoint

import (
	"fmt"
	"net/url"
)

// Endpoint is the primary/fallback address pair the transport targets.
// Fallback is nil when no alternate address is configured.
type Endpoint struct {
	Primary  *url.URL
	Fallback *url.URL
}

// New resolves a primary and optional fallback address into an Endpoint.
// fallback may be empty.
func New(primary, fallback string) (Endpoint, error) {
	p, err := Resolve(primary)
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolve primary: %w", err)
	}

	var f *url.URL
	if fallback != "" {
		f, err = Resolve(fallback)
		if err != nil {
			return Endpoint{}, fmt.Errorf("resolve fallback: %w", err)
		}
	}

	return Endpoint{Primary: p, Fallback: f}, nil
}

// HasFallback reports whether an alternate address is configured.
func (e Endpoint) HasFallback() bool {
	return e.Fallback != nil
}

// Resolve parses raw as a URL and upgrades http→ws and https→wss.
// ws and wss pass through unchanged; any other scheme is rejected.
func Resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}

	return u, nil
}
