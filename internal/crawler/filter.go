package crawler

import "net/url"

// URLFilter decides whether a discovered link belongs to the current session.
// It is pure and safe for concurrent use.
type URLFilter struct {
	scope string
}

// NewURLFilter builds a filter scoped to the authority captured from the base URL.
func NewURLFilter(scopeAuthority string) *URLFilter {
	return &URLFilter{scope: scopeAuthority}
}

// Scope returns the authority links must match.
func (f *URLFilter) Scope() string {
	return f.scope
}

// IsEligible reports whether candidate has exactly the scope authority, no
// fragment, and a supported scheme.
func (f *URLFilter) IsEligible(candidate *url.URL) bool {
	if f == nil || candidate == nil {
		return false
	}
	if candidate.Host != f.scope {
		return false
	}
	if HasFragment(candidate) {
		return false
	}
	return IsSupportedScheme(candidate.Scheme)
}
