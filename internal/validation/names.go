// Package validation provides input validation for names and uploads.
// Validation failures surface before any network call is dispatched; no
// state mutation occurs for an input that fails here.
package validation

import (
	"fmt"
	"strings"

	"github.com/canopy-fm/canopy/internal/constants"
)

// ValidateEntryName validates a folder or file name received from user
// input before it is sent to the backend.
//
// Returns an error if the name:
//   - Is empty or whitespace-only
//   - Exceeds the backend length cap
//   - Contains path separators (/ or \)
//   - Contains null bytes or other control characters
//   - Is "." or ".."
func ValidateEntryName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > constants.MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", constants.MaxNameLength)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("name cannot contain path separators: %s", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("name contains control characters")
		}
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("name cannot be %q", trimmed)
	}
	return nil
}

// ValidateUploadSize rejects oversized or empty uploads client-side, before
// the init phase of the upload handshake.
func ValidateUploadSize(sizeBytes int64) error {
	if sizeBytes < 0 {
		return fmt.Errorf("invalid upload size: %d", sizeBytes)
	}
	if sizeBytes > constants.MaxUploadSize {
		return fmt.Errorf("upload exceeds the %d byte limit", int64(constants.MaxUploadSize))
	}
	return nil
}
