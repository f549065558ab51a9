// Package api provides the typed client for the file-manager backend.
package api

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for backend responses the caller is expected to branch on.
var (
	// ErrNotFound indicates the addressed folder or file does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrNameConflict indicates an entry with the same name already exists
	// in the target folder.
	ErrNameConflict = errors.New("name already exists")

	// ErrInvalidID indicates an identifier that is not a 24-character hex
	// string; such entries cannot be addressed by folder-content queries.
	ErrInvalidID = errors.New("invalid entry id")
)

// StatusError carries a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsConflictError checks whether an error indicates a duplicate name,
// either as a wrapped ErrNameConflict, an HTTP 409, or a message match.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNameConflict) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == 409 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"already exists", "duplicate", "conflict"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks whether an error indicates a missing entry.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}

// hexDigits reports whether s consists only of lowercase/uppercase hex.
func hexDigits(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidateEntryID checks the externally assigned identifier format
// (24-character hex string).
func ValidateEntryID(id string) error {
	if len(id) != 24 || !hexDigits(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
