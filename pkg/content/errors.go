package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// Implementations wrap these with the offending id:
//
//	return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)

var (
	// ErrContentNotFound indicates the requested content does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidContentID indicates an id that cannot be mapped to storage.
	ErrInvalidContentID = errors.New("invalid content id")
)
