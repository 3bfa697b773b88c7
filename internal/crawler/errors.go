package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine. Match them with errors.Is.
var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrSessionActive     = errors.New("a crawl session is already active")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrSessionNotFound   = errors.New("session not found")
)

// ValidationError is returned synchronously by Start when a session cannot begin.
// No task is ever dispatched when it is returned.
type ValidationError struct {
	Input string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %q: %v", e.Input, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FetchError describes a failed probe or fetch for a single address.
type FetchError struct {
	URL string
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError describes a discovered link that is not a valid address.
type ParseError struct {
	Link string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse link %q: %v", e.Link, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
