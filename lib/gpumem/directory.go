// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import "time"

// Attr is a filesystem-agnostic description of a Record's metadata,
// shaped so the fuse adapter can copy it field-by-field into a
// fuse.Attr without the gpumem package importing go-fuse.
type Attr struct {
	Size       uint64
	Regular    bool // false for the root directory entry
	CreateTime time.Time
	AccessTime time.Time
	ModifyTime time.Time
}

// DirEntry names one allocation visible in a directory listing.
type DirEntry struct {
	Name string
}

// GetAttr returns the current metadata for path.
func (m *Manager) GetAttr(path string) (Attr, error) {
	record := m.registry.lookup(path)
	if record == nil {
		return Attr{}, newError(KindNotFound, "getattr", path, nil)
	}
	snap := record.snapshot()
	return Attr{
		Size:       snap.size,
		Regular:    true,
		CreateTime: snap.createdTime,
		AccessTime: snap.accessTime,
		ModifyTime: snap.modifyTime,
	}, nil
}

// GetRootAttr returns synthetic metadata for the mount's root
// directory, which is not backed by any Record.
func (m *Manager) GetRootAttr() Attr {
	now := m.now()
	return Attr{Regular: false, CreateTime: now, AccessTime: now, ModifyTime: now}
}

// ReadDir lists every allocation currently known to the Registry,
// materialized or not.
func (m *Manager) ReadDir() []DirEntry {
	names := m.registry.names()
	entries := make([]DirEntry, len(names))
	for i, name := range names {
		entries[i] = DirEntry{Name: name}
	}
	return entries
}

// TimeUpdate carries an optional access/modify time change, mirroring
// the "set or leave unchanged" shape of a FUSE setattr request without
// depending on the fuse package's wire types.
type TimeUpdate struct {
	SetAccess bool
	Access    time.Time
	SetModify bool
	Modify    time.Time
}

// Utimens applies a timestamp update to path. The GPU driver is never
// consulted: timestamps are bookkeeping only.
func (m *Manager) Utimens(path string, update TimeUpdate) error {
	record := m.registry.lookup(path)
	if record == nil {
		return newError(KindNotFound, "utimens", path, nil)
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	if update.SetAccess {
		record.accessTime = update.Access
	}
	if update.SetModify {
		record.modifyTime = update.Modify
	}
	return nil
}
