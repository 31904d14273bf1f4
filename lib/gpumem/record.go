// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"sync"
	"time"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/gpudriver"
)

// Record is a single named GPU buffer: the unit the Registry indexes
// by path. Its mu guards every field below except Path, which is
// immutable after the record is constructed.
//
// gpuHandle and shareable are valid if and only if size > 0: a record
// is materialized exactly when both handles hold a live allocation.
type Record struct {
	// Path is the record's key in the Registry. Immutable.
	Path string

	mu sync.Mutex

	size      uint64
	gpuHandle gpudriver.Handle
	shareable gpudriver.ShareableHandle
	valid     bool // true iff gpuHandle/shareable hold a live allocation

	createdTime time.Time
	accessTime  time.Time
	modifyTime  time.Time

	// durable and refCounted implement the optional hint-mode
	// durability extension. A record created and sized through the
	// canonical create+truncate path never sets refCounted, so
	// Manager.Open/NoteRelease are no-ops for it.
	durable    bool
	refCounted bool
	refcount   int

	// removed is set once Unlink has taken this record out of the
	// Registry. A concurrent operation that was already holding a
	// pointer to this record (looked up before the Unlink) must check
	// removed after acquiring mu and fail with not_found rather than
	// act on an orphaned record no longer reachable through the
	// Registry.
	removed bool
}

func newRecord(path string, now time.Time) *Record {
	return &Record{
		Path:        path,
		createdTime: now,
		accessTime:  now,
		modifyTime:  now,
	}
}

// snapshot is an immutable copy of a Record's fields, safe to read
// without holding the record's lock. Manager returns this shape from
// attribute- and attr-surface operations.
type snapshot struct {
	size        uint64
	shareable   gpudriver.ShareableHandle
	valid       bool
	createdTime time.Time
	accessTime  time.Time
	modifyTime  time.Time
	durable     bool
}

func (r *Record) snapshot() snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot{
		size:        r.size,
		shareable:   r.shareable,
		valid:       r.valid,
		createdTime: r.createdTime,
		accessTime:  r.accessTime,
		modifyTime:  r.modifyTime,
		durable:     r.durable,
	}
}
