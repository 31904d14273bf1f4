// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"context"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/gpudriver"
)

// Create inserts an unmaterialized Record for path if one is not
// already present. Idempotent: if path already exists, Create
// succeeds without side effect beyond what hint-mode materialization
// below performs. Create never touches the GPU directly, but if a
// hint-mode pending size was recorded for path via SetXattr before
// this call, materialization runs immediately using that hint.
func (m *Manager) Create(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	pending, hasPending := m.registry.takePending(path)

	record, existed := m.registry.lookupOrInsert(path, func() *Record {
		return newRecord(path, m.now())
	})
	if existed {
		// Idempotent create: touch nothing. A pending hint recorded
		// after the path already exists is intentionally dropped —
		// hints only apply to materialization at creation time.
		return nil
	}

	if !hasPending || pending.sizeHint == 0 {
		return nil
	}

	// Hint-mode materialization: allocate immediately using the
	// recorded size hint, and carry over the durability hint.
	return m.materialize(ctx, record, pending.sizeHint, pending.durable, true)
}

// Truncate implements the allocation lifecycle's truncate state machine:
// truncating to zero releases GPU memory, truncating up from zero
// allocates it, and resizing an already-materialized record is rejected.
func (m *Manager) Truncate(ctx context.Context, path string, size int64) error {
	if size < 0 {
		return newError(KindInvalidArgument, "truncate", path, nil)
	}

	record := m.registry.lookup(path)
	if record == nil {
		return newError(KindNotFound, "truncate", path, nil)
	}

	if size == 0 {
		return m.truncateToZero(ctx, record)
	}
	return m.materialize(ctx, record, uint64(size), false, false)
}

// truncateToZero releases GPU memory for a materialized record and
// returns it to the unmaterialized state, or no-ops if the record is
// already unmaterialized.
func (m *Manager) truncateToZero(ctx context.Context, record *Record) error {
	record.mu.Lock()
	defer record.mu.Unlock()

	if record.removed {
		return newError(KindNotFound, "truncate", record.Path, nil)
	}

	now := m.now()

	if !record.valid {
		record.modifyTime = now
		return nil
	}

	handle := record.gpuHandle
	if err := m.binding.Release(ctx, handle); err != nil {
		// On driver failure, leave the record untouched.
		return newError(KindIOError, "truncate", record.Path, err)
	}

	record.valid = false
	record.size = 0
	record.gpuHandle = 0
	record.shareable = gpudriver.ShareableHandle{}
	record.modifyTime = now
	return nil
}

// materialize allocates GPU memory for an unmaterialized record, or
// validates that a materialized record's size matches. durable
// carries the hint-mode durability flag through to a freshly
// materialized record; it is ignored (and refCounted is left
// untouched) for already-materialized records, since durability is
// set once at materialization and toggled only via SetXattr
// afterward. A freshly ref-counted record starts at refcount 0:
// materializing is not itself an open reference, so a single
// Open/NoteRelease pair is what brings a non-durable record back down
// to zero and releases it.
func (m *Manager) materialize(ctx context.Context, record *Record, size uint64, durable bool, refCounted bool) error {
	record.mu.Lock()
	defer record.mu.Unlock()

	if record.removed {
		return newError(KindNotFound, "truncate", record.Path, nil)
	}

	now := m.now()

	if record.valid {
		if record.size == size {
			return nil
		}
		return newError(KindNotSupported, "truncate", record.Path, nil)
	}

	handle, shareable, err := m.binding.Allocate(ctx, size)
	if err != nil {
		return newError(KindOutOfMemory, "truncate", record.Path, err)
	}

	record.gpuHandle = handle
	record.shareable = shareable
	record.size = size
	record.valid = true
	record.modifyTime = now
	if refCounted {
		record.durable = durable
		record.refCounted = true
		record.refcount = 0
	}
	return nil
}

// Unlink removes path from the Registry and, outside the global lock,
// releases its GPU memory if materialized.
func (m *Manager) Unlink(ctx context.Context, path string) error {
	m.registry.clearPending(path)

	record := m.registry.remove(path)
	if record == nil {
		return newError(KindNotFound, "unlink", path, nil)
	}

	record.mu.Lock()
	valid := record.valid
	handle := record.gpuHandle
	record.valid = false
	record.removed = true
	record.mu.Unlock()

	if valid {
		if err := m.binding.Release(ctx, handle); err != nil {
			return newError(KindIOError, "unlink", path, err)
		}
	}
	return nil
}

// Open checks that path exists. No per-open state is recorded in the
// core unless the record is ref-counted (hint mode / durability), in
// which case its refcount is incremented.
func (m *Manager) Open(path string) error {
	record := m.registry.lookup(path)
	if record == nil {
		return newError(KindNotFound, "open", path, nil)
	}

	record.mu.Lock()
	if record.refCounted {
		record.refcount++
	}
	record.mu.Unlock()
	return nil
}

// NoteRelease is called when a filesystem handle for path is closed.
// For records never touched by hint mode this carries no per-open
// state and is a no-op. For ref-counted records, the refcount is
// decremented; reaching zero on a non-durable record releases its GPU
// memory automatically.
func (m *Manager) NoteRelease(ctx context.Context, path string) error {
	record := m.registry.lookup(path)
	if record == nil {
		return nil
	}

	record.mu.Lock()
	if !record.refCounted {
		record.mu.Unlock()
		return nil
	}
	record.refcount--
	shouldRelease := record.refcount <= 0 && !record.durable && record.valid
	var handle gpudriver.Handle
	if shouldRelease {
		handle = record.gpuHandle
		record.valid = false
		record.size = 0
		record.gpuHandle = 0
		record.shareable = gpudriver.ShareableHandle{}
	}
	record.mu.Unlock()

	if shouldRelease {
		if err := m.binding.Release(ctx, handle); err != nil {
			return newError(KindIOError, "release", path, err)
		}
	}
	return nil
}

func validatePath(path string) error {
	if len(path) == 0 || path[0] != '/' {
		return newError(KindInvalidArgument, "create", path, nil)
	}
	if len(path) > MaxPathLength {
		return newError(KindInvalidArgument, "create", path, nil)
	}
	return nil
}
