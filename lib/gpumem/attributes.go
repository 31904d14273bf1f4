// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"context"
	"strconv"
)

// AttrFabricHandle and AttrAllocationSize are the two read-only
// extended attributes every materialized record answers. Their names
// are part of the external wire contract and must not change.
const (
	AttrFabricHandle   = "user.fabric_handle"
	AttrAllocationSize = "user.allocation_size"
)

// AttrHintSize and AttrHintDurable are the hint-mode control surface:
// writing AttrHintSize before create records a pending size that
// materializes immediately on create; writing AttrHintDurable toggles
// whether a record's GPU memory survives its creator closing every
// open handle.
const (
	AttrHintSize    = "user.gpu.size"
	AttrHintDurable = "user.gpu.durable"
)

// listedAttrs is the fixed, stable-order set of names ListXattr
// reports for a materialized record: fabric_handle before
// allocation_size.
var listedAttrs = []string{AttrFabricHandle, AttrAllocationSize}

// GetXattr returns the value of the named extended attribute for path.
func (m *Manager) GetXattr(path, name string) ([]byte, error) {
	record := m.registry.lookup(path)
	if record == nil {
		return nil, newError(KindNotFound, "getxattr", path, nil)
	}
	snap := record.snapshot()

	switch name {
	case AttrFabricHandle:
		if !snap.valid {
			return nil, newError(KindNoData, "getxattr", path, nil)
		}
		out := make([]byte, len(snap.shareable))
		copy(out, snap.shareable[:])
		return out, nil
	case AttrAllocationSize:
		if !snap.valid {
			return nil, newError(KindNoData, "getxattr", path, nil)
		}
		return []byte(strconv.FormatUint(snap.size, 10)), nil
	default:
		return nil, newError(KindNoData, "getxattr", path, nil)
	}
}

// ReadFabricHandle is a typed convenience wrapper over
// GetXattr(path, AttrFabricHandle) for the fuse adapter's diagnostic
// read(2) path, which needs the raw handle rather than an attribute
// name lookup.
func (m *Manager) ReadFabricHandle(path string) ([]byte, error) {
	return m.GetXattr(path, AttrFabricHandle)
}

// ListXattr returns the names of extended attributes visible on path.
// An unmaterialized record answers neither attribute with anything
// but no_data, so it lists none.
func (m *Manager) ListXattr(path string) ([]string, error) {
	record := m.registry.lookup(path)
	if record == nil {
		return nil, newError(KindNotFound, "listxattr", path, nil)
	}
	snap := record.snapshot()
	if !snap.valid {
		return nil, nil
	}
	names := make([]string, len(listedAttrs))
	copy(names, listedAttrs)
	return names, nil
}

// SetXattr writes an extended attribute. AttrFabricHandle and
// AttrAllocationSize are read-only and always rejected. AttrHintSize
// and AttrHintDurable are the optional hint-mode surface: called
// either before create (path has no Record yet, so the value is
// stashed as a Pending Record on the Registry) or after create (to
// materialize immediately, or to toggle durability on an existing
// record).
func (m *Manager) SetXattr(ctx context.Context, path, name string, value []byte) error {
	switch name {
	case AttrHintSize:
		size, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			return newError(KindInvalidArgument, "setxattr", path, err)
		}
		if size == 0 {
			return newError(KindInvalidArgument, "setxattr", path, nil)
		}
		return m.setSizeHint(ctx, path, size)
	case AttrHintDurable:
		durable, err := parseBoolHint(value)
		if err != nil {
			return newError(KindInvalidArgument, "setxattr", path, err)
		}
		return m.setDurableHint(path, durable)
	case AttrFabricHandle, AttrAllocationSize:
		return newError(KindNotSupported, "setxattr", path, nil)
	default:
		return newError(KindNotSupported, "setxattr", path, nil)
	}
}

// parseBoolHint accepts exactly the two spellings the durability hint
// names ("true"/"1" vs "false"/"0") rather than the full flexibility
// of strconv.ParseBool.
func parseBoolHint(value []byte) (bool, error) {
	switch string(value) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, newError(KindInvalidArgument, "setxattr", "", nil)
	}
}

func (m *Manager) setSizeHint(ctx context.Context, path string, size uint64) error {
	if record := m.registry.lookup(path); record != nil {
		// Path already exists: a size hint at this point only makes
		// sense as a request to materialize now, mirroring what
		// Create would have done had the hint arrived first.
		record.mu.Lock()
		already := record.valid
		record.mu.Unlock()
		if already {
			return nil
		}
		return m.materialize(ctx, record, size, false, true)
	}

	m.registry.setPendingSize(path, size, m.now())
	return nil
}

func (m *Manager) setDurableHint(path string, durable bool) error {
	if record := m.registry.lookup(path); record != nil {
		record.mu.Lock()
		record.durable = durable
		record.refCounted = true
		record.mu.Unlock()
		return nil
	}

	m.registry.setPendingDurable(path, durable, m.now())
	return nil
}
