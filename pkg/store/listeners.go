package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Listeners is a registry of bulk-write listeners for backends to embed.
type Listeners struct {
	next atomic.Uint64
	m    *xsync.Map[uint64, BulkWriteListener]
}

// NewListeners returns an empty registry.
func NewListeners() *Listeners {
	return &Listeners{m: xsync.NewMap[uint64, BulkWriteListener]()}
}

// Subscribe registers l and returns its idempotent cancel function.
func (ls *Listeners) Subscribe(l BulkWriteListener) func() {
	id := ls.next.Add(1)
	ls.m.Store(id, l)
	var once sync.Once
	return func() {
		once.Do(func() { ls.m.Delete(id) })
	}
}

// Notify delivers events to every listener in subscription order.
func (ls *Listeners) Notify(ctx context.Context, events []WriteEvent) {
	if len(events) == 0 || ls.m.Size() == 0 {
		return
	}
	type sub struct {
		id uint64
		l  BulkWriteListener
	}
	var subs []sub
	ls.m.Range(func(id uint64, l BulkWriteListener) bool {
		subs = append(subs, sub{id, l})
		return true
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		s.l(ctx, events)
	}
}

// Len returns the number of subscribed listeners.
func (ls *Listeners) Len() int {
	return ls.m.Size()
}

// LiveCache holds the objects loaded or saved through a store handle.
type LiveCache struct {
	m *xsync.Map[ObjectID, *Object]
}

// NewLiveCache returns an empty cache.
func NewLiveCache() *LiveCache {
	return &LiveCache{m: xsync.NewMap[ObjectID, *Object]()}
}

// Put caches obj.
func (c *LiveCache) Put(obj *Object) {
	c.m.Store(obj.ID, obj)
}

// Get returns the cached object for id.
func (c *LiveCache) Get(id ObjectID) (*Object, bool) {
	return c.m.Load(id)
}

// Evict drops id.
func (c *LiveCache) Evict(id ObjectID) {
	c.m.Delete(id)
}

// Has reports whether id is cached.
func (c *LiveCache) Has(id ObjectID) bool {
	_, ok := c.m.Load(id)
	return ok
}
