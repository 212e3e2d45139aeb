package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectID identifies an object in the store and, for object entries, the
// filesystem edge that places it. Directory entries get freshly minted ids.
type ObjectID string

// NewObjectID mints a random id.
func NewObjectID() ObjectID {
	return ObjectID(uuid.NewString())
}

// ParseObjectID validates the textual form of an id.
func ParseObjectID(s string) (ObjectID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", NewInvalidArgumentError(s, "not an object id")
	}
	return ObjectID(u.String()), nil
}

func (id ObjectID) String() string {
	return string(id)
}

// IsZero reports whether id is unset.
func (id ObjectID) IsZero() bool {
	return id == ""
}

// EntryType tags an edge as a directory or an object placement.
type EntryType uint8

const (
	// EntryAny matches both kinds in queries. It is never stored.
	EntryAny EntryType = iota
	EntryDir
	EntryObj
)

func (t EntryType) String() string {
	switch t {
	case EntryDir:
		return "dir"
	case EntryObj:
		return "obj"
	default:
		return "any"
	}
}

// ParseEntryType is the inverse of String for stored kinds.
func ParseEntryType(s string) (EntryType, error) {
	switch s {
	case "dir":
		return EntryDir, nil
	case "obj":
		return EntryObj, nil
	default:
		return EntryAny, fmt.Errorf("unknown entry type %q", s)
	}
}

// Entry is one edge of the filesystem tree.
type Entry struct {
	ID     ObjectID  `cbor:"1,keyasint" json:"id"`
	Name   string    `cbor:"2,keyasint" json:"name"`
	Parent ObjectID  `cbor:"3,keyasint,omitempty" json:"parent,omitempty"`
	Type   EntryType `cbor:"4,keyasint" json:"type"`
	Ctime  time.Time `cbor:"5,keyasint" json:"ctime"`
	Utime  time.Time `cbor:"6,keyasint" json:"utime"`
}

func (e Entry) IsDir() bool { return e.Type == EntryDir }
func (e Entry) IsObj() bool { return e.Type == EntryObj }

// IsRoot reports whether e has no parent.
func (e Entry) IsRoot() bool { return e.Parent.IsZero() }

// Record is one version of an object in the record catalog.
type Record struct {
	ObjID        ObjectID  `cbor:"1,keyasint" json:"obj_id"`
	Version      int       `cbor:"2,keyasint" json:"version"`
	TypeID       string    `cbor:"3,keyasint" json:"type_id"`
	CreationTime time.Time `cbor:"4,keyasint" json:"creation_time"`
	SnapshotTime time.Time `cbor:"5,keyasint" json:"snapshot_time"`
	Deleted      bool      `cbor:"6,keyasint,omitempty" json:"deleted,omitempty"`
	ContentID    string    `cbor:"7,keyasint,omitempty" json:"content_id,omitempty"`
}

// Doc renders the record as the document user filters are evaluated against.
func (r *Record) Doc() map[string]any {
	return map[string]any{
		"obj_id":        string(r.ObjID),
		"version":       r.Version,
		"type_id":       r.TypeID,
		"creation_time": r.CreationTime,
		"snapshot_time": r.SnapshotTime,
		"deleted":       r.Deleted,
	}
}

// Snapshot is a record together with its payload, as transferred by rsync.
type Snapshot struct {
	Record
	Payload []byte
}

// Object is a live object: its id, type and payload.
type Object struct {
	ID      ObjectID
	TypeID  string
	Payload []byte
}

// Meta is the free-form metadata document of one object.
type Meta map[string]any

// Clone returns a shallow copy of m.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// State selects records by lifecycle.
type State string

const (
	// StateLive selects objects whose latest record is not a tombstone. It is
	// the default when State is empty.
	StateLive State = "live"

	// StateDeleted selects tombstoned objects.
	StateDeleted State = "deleted"

	// StateAll selects every object regardless of tombstones.
	StateAll State = "all"
)

// ParseState validates a state name. The empty string maps to StateLive.
func ParseState(s string) (State, error) {
	switch State(s) {
	case "", StateLive:
		return StateLive, nil
	case StateDeleted, StateAll:
		return State(s), nil
	default:
		return "", NewInvalidArgumentError(s, "unknown state")
	}
}

// Accepts reports whether a latest record satisfies the state.
func (s State) Accepts(r *Record) bool {
	switch s {
	case StateAll:
		return true
	case StateDeleted:
		return r.Deleted
	default:
		return !r.Deleted
	}
}

// WriteKind classifies one operation of an object bulk write.
type WriteKind uint8

const (
	WriteInsert WriteKind = iota + 1
	WriteUpdate
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WriteInsert:
		return "insert"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// WriteEvent describes one object write, delivered to listeners before the
// batch commits.
type WriteEvent struct {
	Kind       WriteKind
	ObjID      ObjectID
	SnapshotID string
	Version    int
	Deleted    bool
}

// SnapshotID formats the id of one version of an object.
func SnapshotID(id ObjectID, version int) string {
	return fmt.Sprintf("%s#%d", id, version)
}

// EventFor derives the write event of a newly written record.
func EventFor(r *Record) WriteEvent {
	kind := WriteUpdate
	switch {
	case r.Deleted:
		kind = WriteDelete
	case r.Version == 0:
		kind = WriteInsert
	}
	return WriteEvent{
		Kind:       kind,
		ObjID:      r.ObjID,
		SnapshotID: SnapshotID(r.ObjID, r.Version),
		Version:    r.Version,
		Deleted:    r.Deleted,
	}
}

// MergeResult counts the outcome of merging snapshots into a store.
type MergeResult struct {
	Merged  int
	Skipped int
}

// Add accumulates o into r.
func (r *MergeResult) Add(o MergeResult) {
	r.Merged += o.Merged
	r.Skipped += o.Skipped
}
