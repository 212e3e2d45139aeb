package content

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// ContentID identifies a payload. IDs produced by HashID are the hex BLAKE3
// digest of the payload, so equal payloads share one stored blob.
type ContentID string

// HashID returns the content-addressed id of data.
func HashID(data []byte) ContentID {
	sum := blake3.Sum256(data)
	return ContentID(hex.EncodeToString(sum[:]))
}

// ============================================================================
// Store Interface
// ============================================================================

// Store persists object payloads keyed by ContentID.
//
// The object store writes each version's payload under HashID(payload) and
// keeps the id on the record. The content store knows nothing about objects,
// paths or versions.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// ReadContent returns a reader for the content. The caller closes it.
	//
	// Returns ErrContentNotFound (wrapped) when the id is unknown.
	ReadContent(ctx context.Context, id ContentID) (io.ReadCloser, error)

	// GetContentSize returns the size of the content in bytes.
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether the content is stored. A missing id is
	// (false, nil).
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// WriteContent stores data under id, replacing any previous content.
	WriteContent(ctx context.Context, id ContentID, data []byte) error

	// Delete removes the content. Deleting a missing id succeeds.
	Delete(ctx context.Context, id ContentID) error

	// ListAllContent returns every stored id, for garbage collection.
	ListAllContent(ctx context.Context) ([]ContentID, error)
}

// ReadAll reads the whole content of id.
func ReadAll(ctx context.Context, s Store, id ContentID) ([]byte, error) {
	r, err := s.ReadContent(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Put stores data under its content-addressed id, skipping the write when the
// blob already exists.
func Put(ctx context.Context, s Store, data []byte) (ContentID, error) {
	id := HashID(data)
	exists, err := s.ContentExists(ctx, id)
	if err != nil {
		return "", err
	}
	if exists {
		return id, nil
	}
	if err := s.WriteContent(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}
