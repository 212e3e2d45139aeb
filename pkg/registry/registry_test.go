package registry

import (
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *vfs.FS {
	t.Helper()
	fs, err := vfs.New(t.Context(), memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{}), vfs.Options{})
	require.NoError(t, err)
	return fs
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	fs := newFS(t)

	require.NoError(t, reg.Register(&Remote{Name: "other-store", FS: fs}))
	assert.Error(t, reg.Register(&Remote{Name: "other-store", FS: fs}), "duplicate name")
	assert.Error(t, reg.Register(&Remote{Name: "bad:name", FS: fs}))
	assert.Error(t, reg.Register(&Remote{Name: "nil"}))
	require.NoError(t, reg.Register(&Remote{Name: "alias", FS: fs}))

	got, err := reg.FS("other-store")
	require.NoError(t, err)
	assert.Same(t, fs, got)
	assert.True(t, reg.Exists("alias"))
	assert.Equal(t, []string{"alias", "other-store"}, reg.List())
	assert.Equal(t, 2, reg.Count())

	_, err = reg.Get("missing")
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	require.NoError(t, reg.Remove("alias"))
	assert.True(t, store.IsCode(reg.Remove("alias"), store.ErrNotFound))

	require.NoError(t, reg.Close())
	assert.Zero(t, reg.Count())
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want Address
		err  bool
	}{
		{"./", Address{Path: "./"}, false},
		{"/home/car", Address{Path: "/home/car"}, false},
		{"other-store:/home/", Address{Remote: "other-store", Path: "/home/"}, false},
		{"other-store:", Address{Remote: "other-store", Path: "/"}, false},
		{"other-store:rel", Address{Remote: "other-store", Path: "rel"}, false},
		{"dir/a:b", Address{Path: "dir/a:b"}, false},
		{":/x", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.err {
				assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.IsLocal(), got.Remote == "")
		})
	}
}
