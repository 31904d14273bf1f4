// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"sync"
	"time"
)

// pendingRecord is the hint-mode bookkeeping entry: a size (and
// optional durability) hint recorded via setxattr before the path is
// created.
type pendingRecord struct {
	sizeHint  uint64
	durable   bool
	createdAt time.Time
}

// MaxPathLength bounds the length of a path accepted by the Registry,
// matching the external contract's fixed-size path buffer.
const MaxPathLength = 512

// Registry is the process-wide, path-keyed map of Records. A single
// mutex (mu) guards both maps; it is held only for the duration of
// lookups, insertions, removals, and iteration, and is never held
// across a GPU driver call — callers drop it before touching a
// Record's per-entry lock for anything that calls into a Binding.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*Record
	pending  map[string]*pendingRecord
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		pending: make(map[string]*pendingRecord),
	}
}

// lookup returns the Record for path, or nil if absent. The returned
// pointer remains valid until remove() is called for the same path;
// the Registry never deallocates a Record while a caller might still
// be holding this reference to it (removal and lookup are serialized
// by mu, so no reader can observe a Record mid-removal).
func (reg *Registry) lookup(path string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.records[path]
}

// insert adds record under path. Returns KindAlreadyExists if path is
// already present.
func (reg *Registry) insert(path string, record *Record) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.records[path]; exists {
		return newError(KindAlreadyExists, "insert", path, nil)
	}
	reg.records[path] = record
	return nil
}

// lookupOrInsert returns the existing Record for path if present,
// otherwise inserts and returns newRecordFn()'s result. The second
// return value is true if an existing record was found. This combines
// Registry.lookup and Registry.insert into one critical section so
// that Manager.Create's existence check and insertion are atomic.
func (reg *Registry) lookupOrInsert(path string, newRecordFn func() *Record) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if existing, ok := reg.records[path]; ok {
		return existing, true
	}
	record := newRecordFn()
	reg.records[path] = record
	return record, false
}

// remove deletes and returns the Record for path, or nil if absent.
// The caller is responsible for any subsequent GPU release.
func (reg *Registry) remove(path string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	record, ok := reg.records[path]
	if !ok {
		return nil
	}
	delete(reg.records, path)
	return record
}

// iterate invokes visit on every Record under the global lock. visit
// must not call back into any Registry method (lookup/insert/remove
// would deadlock on mu).
func (reg *Registry) iterate(visit func(*Record)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, record := range reg.records {
		visit(record)
	}
}

// names returns every path currently in the Registry. Order is map
// iteration order; no total ordering is required of callers.
func (reg *Registry) names() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	names := make([]string, 0, len(reg.records))
	for path := range reg.records {
		names = append(names, path)
	}
	return names
}

// takePending removes and returns the pending hint for path, if any.
func (reg *Registry) takePending(path string) (*pendingRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p, ok := reg.pending[path]
	if ok {
		delete(reg.pending, path)
	}
	return p, ok
}

// setPendingSize records (or updates) the size hint for path.
func (reg *Registry) setPendingSize(path string, size uint64, now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p, ok := reg.pending[path]
	if !ok {
		p = &pendingRecord{createdAt: now}
		reg.pending[path] = p
	}
	p.sizeHint = size
}

// setPendingDurable records (or updates) the durability hint for path.
func (reg *Registry) setPendingDurable(path string, durable bool, now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p, ok := reg.pending[path]
	if !ok {
		p = &pendingRecord{createdAt: now}
		reg.pending[path] = p
	}
	p.durable = durable
}

// clearPending drops any pending hint for path without materializing
// it. Used by unlink so a half-configured hint does not resurrect
// itself on a later create of the same path.
func (reg *Registry) clearPending(path string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.pending, path)
}
