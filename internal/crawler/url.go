package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SupportedSchemes lists the schemes a session may crawl.
var SupportedSchemes = []string{"http", "https"}

// IsSupportedScheme reports whether scheme is crawlable.
func IsSupportedScheme(scheme string) bool {
	for _, s := range SupportedSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// ParseAddress parses an absolute URI. Scheme and host are required; the
// fragment, if any, is preserved so callers can decide to strip or reject it.
func ParseAddress(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Link: raw, Err: errors.New("empty address")}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &ParseError{Link: raw, Err: err}
	}
	if u.Scheme == "" {
		return nil, &ParseError{Link: raw, Err: errors.New("missing scheme")}
	}
	if u.Host == "" {
		return nil, &ParseError{Link: raw, Err: errors.New("missing host")}
	}
	return u, nil
}

// HasFragment reports whether u carries a fragment.
func HasFragment(u *url.URL) bool {
	return u.Fragment != "" || u.RawFragment != ""
}

// HasFragmentMarker reports whether a raw link string carries a fragment
// delimiter. url.Parse drops an empty trailing "#", so link strings are
// checked before parsing as well.
func HasFragmentMarker(raw string) bool {
	return strings.Contains(raw, "#")
}

// StripFragment returns a copy of u without its fragment.
func StripFragment(u *url.URL) *url.URL {
	cp := *u
	cp.Fragment = ""
	cp.RawFragment = ""
	return &cp
}

// Identity returns the dedup key for an address: scheme, authority, path and
// query. It refuses addresses that still carry a fragment so fragments are
// never silently merged into an identity.
func Identity(u *url.URL) (string, error) {
	if u == nil {
		return "", fmt.Errorf("identity of nil address: %w", ErrInvalidAddress)
	}
	if HasFragment(u) {
		return "", fmt.Errorf("identity of %q: fragment must be removed first: %w", u.String(), ErrInvalidAddress)
	}
	return u.String(), nil
}
