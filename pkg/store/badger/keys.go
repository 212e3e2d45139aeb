package badger

import (
	"fmt"
	"strings"

	"github.com/marmos91/objfs/pkg/store"
)

// Database Key Namespace Design
// ==============================
//
// Every collection of the object store lives in one BadgerDB keyspace,
// separated by key prefixes:
//
// Data Type         Prefix   Key Format                       Value Type
// ==========================================================================
// Entries           "e:"     e:<id>                           Entry (CBOR)
// Children Index    "c:"     c:<parentID>:<name>              child id (bytes)
// Settings          "cfg:"   cfg:settings                     settingsDoc (CBOR)
// Records           "r:"     r:<id>:<version %010d>           Record (CBOR)
// Metadata          "m:"     m:<id>                           Meta (CBOR)
// Metadata Indexes  "mi:"    mi:<key>                         empty
//
// The children index is the unique (parent, name) index: a key holds exactly
// one child id, and Children is a range scan over "c:<parentID>:". The root
// entry has no parent and is indexed under "c::/".
//
// Record keys zero-pad the version so a prefix scan over "r:<id>:" returns
// the history in version order and the last key is the latest record.

const (
	prefixEntry     = "e:"
	prefixChild     = "c:"
	prefixConfig    = "cfg:"
	prefixRecord    = "r:"
	prefixMeta      = "m:"
	prefixMetaIndex = "mi:"
)

func keyEntry(id store.ObjectID) []byte {
	return []byte(prefixEntry + string(id))
}

func keyChild(parent store.ObjectID, name string) []byte {
	return []byte(prefixChild + string(parent) + ":" + name)
}

// keyChildPrefix is the range scanned to list the children of parent.
func keyChildPrefix(parent store.ObjectID) []byte {
	return []byte(prefixChild + string(parent) + ":")
}

func keySettings() []byte {
	return []byte(prefixConfig + "settings")
}

func keyRecord(id store.ObjectID, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixRecord, id, version))
}

func keyRecordPrefix(id store.ObjectID) []byte {
	return []byte(prefixRecord + string(id) + ":")
}

// recordObjID extracts the object id from a record key.
func recordObjID(key []byte) store.ObjectID {
	rest := strings.TrimPrefix(string(key), prefixRecord)
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	return store.ObjectID(rest)
}

func keyMeta(id store.ObjectID) []byte {
	return []byte(prefixMeta + string(id))
}

func keyMetaIndex(key string) []byte {
	return []byte(prefixMetaIndex + key)
}
