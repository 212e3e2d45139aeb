package memory

import (
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	storetesting "github.com/marmos91/objfs/pkg/store/testing"
)

func TestMemoryObjectStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func() store.ObjectStore {
			return NewMemoryObjectStore(MemoryObjectStoreConfig{})
		},
	}
	suite.Run(t)
}
