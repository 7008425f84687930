package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport means the request never produced an HTTP response.
	ErrTransport = errors.New("transport failure")

	// ErrUnauthorized means the service rejected the credentials or a
	// row-level security policy denied the operation.
	ErrUnauthorized = errors.New("not authorized")

	// ErrNotFound means the addressed table, bucket or function does not exist.
	ErrNotFound = errors.New("resource does not exist")

	// ErrUniqueViolation means a write collided with a uniqueness constraint.
	ErrUniqueViolation = errors.New("uniqueness constraint violated")

	// ErrUnexpectedStatus matches every StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// maxBodyInError bounds how much of a response body ends up in error text.
const maxBodyInError = 300

// TransportError wraps a failure to obtain a response at all
// (DNS, connect, TLS, timeout, cancellation).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports ErrTransport so callers can test the category without
// losing the underlying cause (context.Canceled, *net.OpError, ...).
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// StatusError is returned by Expect when a response carries a status code
// outside the accepted set. The body text is kept for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// Is maps the status code and body text onto the error taxonomy.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnexpectedStatus:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized ||
			e.StatusCode == http.StatusForbidden ||
			IsPermissionDenied(e.Body)
	case ErrUniqueViolation:
		return IsUniqueViolation(e.Body)
	}
	return false
}

// Kind is the coarse category of a failed request.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindNotFound
	KindUniqueViolation
	KindUnauthorized
	KindUnexpected
)

var kindNames = map[Kind]string{
	KindNone:            "none",
	KindTransport:       "transport",
	KindNotFound:        "not_found",
	KindUniqueViolation: "unique_violation",
	KindUnauthorized:    "unauthorized",
	KindUnexpected:      "unexpected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classify returns the most specific category for err.
// A 404 wins over a body that happens to mention permissions.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUniqueViolation):
		return KindUniqueViolation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindUnexpected
	}
}

var uniqueFragments = []string{
	"23505",
	"duplicate key",
	"unique or exclusion constraint",
}

var permissionFragments = []string{
	"row-level security",
	"permission denied",
	"jwt",
}

// IsUniqueViolation reports whether a response body describes a
// uniqueness-constraint failure (PostgreSQL code 23505 and its messages).
func IsUniqueViolation(body string) bool {
	return containsAny(body, uniqueFragments)
}

// IsRLSViolation reports whether a response body describes a row-level
// security policy rejection.
func IsRLSViolation(body string) bool {
	return containsAny(body, permissionFragments[:1])
}

// IsPermissionDenied reports whether a response body describes an
// authorization failure of any kind.
func IsPermissionDenied(body string) bool {
	return containsAny(body, permissionFragments)
}

func containsAny(body string, fragments []string) bool {
	lower := strings.ToLower(body)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
