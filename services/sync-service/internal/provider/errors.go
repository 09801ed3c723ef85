package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind classifies remote failures
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuthInvalid
	KindRateLimited
	KindNotFound
	KindServerError
	KindUnselectableFolder
	KindInvalidFormat
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	case KindUnselectableFolder:
		return "unselectable_folder"
	case KindInvalidFormat:
		return "invalid_format"
	default:
		return "unknown"
	}
}

// FolderLevel reports whether the failure only concerns the folder being read
func (k Kind) FolderLevel() bool {
	return k == KindUnselectableFolder || k == KindInvalidFormat
}

// Error is returned by every Client operation that fails remotely
type Error struct {
	Kind       Kind
	Op         string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNoActiveAccount is returned when a call is made before SetActiveAccount
var ErrNoActiveAccount = errors.New("no active account")

// classifiers map error text to a kind. Order matters: the first match wins.
// The list covers the failures seen so far and is expected to grow.
var classifiers = []struct {
	pattern string
	kind    Kind
}{
	{"unselectable", KindUnselectableFolder},
	{"\\noselect", KindUnselectableFolder},
	{"invalid format", KindInvalidFormat},
	{"invalid_format", KindInvalidFormat},
	{"unsupported format", KindInvalidFormat},
	{"too many requests", KindRateLimited},
	{"rate limit", KindRateLimited},
	{"ssl", KindNetwork},
	{"tls handshake", KindNetwork},
	{"handshake failure", KindNetwork},
	{"timeout", KindNetwork},
	{"timed out", KindNetwork},
	{"connection reset", KindNetwork},
	{"connection refused", KindNetwork},
	{"broken pipe", KindNetwork},
	{"no such host", KindNetwork},
	{"unexpected eof", KindNetwork},
	{"internal server error", KindServerError},
	{"bad gateway", KindServerError},
	{"service unavailable", KindServerError},
	{"server temporarily unavailable", KindServerError},
	{"authenticationfailed", KindAuthInvalid},
	{"authentication failed", KindAuthInvalid},
	{"invalid credentials", KindAuthInvalid},
	{"invalid_grant", KindAuthInvalid},
	{"token expired", KindAuthInvalid},
	{"unauthorized", KindAuthInvalid},
	{"not found", KindNotFound},
	{"doesn't exist", KindNotFound},
	{"nonexistent", KindNotFound},
}

// Classify returns the kind of err. Typed provider errors are trusted first,
// then network errors, then the error text.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, c := range classifiers {
		if strings.Contains(msg, c.pattern) {
			return c.kind
		}
	}
	return KindUnknown
}

// wrap turns a low-level failure into a classified *Error
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}
