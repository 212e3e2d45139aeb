package memory

import (
	"testing"

	"github.com/marmos91/objfs/pkg/content"
	contenttesting "github.com/marmos91/objfs/pkg/content/testing"
)

// TestMemoryContentStore runs the content store suite against the
// MemoryContentStore implementation.
func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.Store {
			return NewMemoryContentStore()
		},
	}

	suite.Run(t)
}
