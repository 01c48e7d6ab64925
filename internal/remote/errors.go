package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below
var (
	ErrNotFound     = errors.New("remote: not found")
	ErrAuthRequired = errors.New("remote: authentication required")
)

// Provider codes shared by the backends. PostgreSQL codes are passed
// through unchanged; SQLite errors are mapped onto the same values.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeNotNullViolation    = "23502"
	CodePermissionDenied    = "PGRST116"
	CodeInsufficientPriv    = "42501"
)

// RemoteError is a rejection reported by the backing store
type RemoteError struct {
	Code    string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "remote: " + e.Message
	}
	return fmt.Sprintf("remote: %s (code %s)", e.Message, e.Code)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFoundError reports a single-row operation that matched no row
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote: %s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AuthRequiredError reports an operation attempted without a signed-in principal
type AuthRequiredError struct {
	Op string
}

func (e *AuthRequiredError) Error() string {
	if e.Op == "" {
		return "remote: not authenticated"
	}
	return "remote: " + e.Op + ": not authenticated"
}

func (e *AuthRequiredError) Is(target error) bool { return target == ErrAuthRequired }

// Describe turns an error from this package into a message fit for an end user
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var authErr *AuthRequiredError
	if errors.As(err, &authErr) {
		return "You are signed out. Please sign in again."
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("That %s no longer exists.", nf.Entity)
	}

	var re *RemoteError
	if !errors.As(err, &re) {
		return err.Error()
	}

	if strings.Contains(re.Message, "row-level security") {
		return "Authentication error. Please sign out and sign in again."
	}
	switch re.Code {
	case CodeUniqueViolation:
		return "An employee with this email already exists."
	case CodePermissionDenied, CodeInsufficientPriv:
		return "Permission denied. Check Row Level Security policies."
	case CodeForeignKeyViolation:
		return "The referenced employee or task does not exist."
	}
	if re.Message != "" {
		return re.Message
	}
	return "Request failed"
}
