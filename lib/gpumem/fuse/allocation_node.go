// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"log/slog"
	"syscall"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// allocationNode represents a single named GPU buffer as a regular
// file. It holds no allocation state of its own — every call is
// forwarded to the Manager, keyed by path — so the node can be
// recreated freely across Lookup calls without losing anything.
type allocationNode struct {
	gofuse.Inode
	manager *gpumem.Manager
	logger  *slog.Logger
	path    string
}

var _ gofuse.InodeEmbedder = (*allocationNode)(nil)
var _ gofuse.NodeGetattrer = (*allocationNode)(nil)
var _ gofuse.NodeSetattrer = (*allocationNode)(nil)
var _ gofuse.NodeOpener = (*allocationNode)(nil)
var _ gofuse.NodeReader = (*allocationNode)(nil)
var _ gofuse.NodeGetxattrer = (*allocationNode)(nil)
var _ gofuse.NodeSetxattrer = (*allocationNode)(nil)
var _ gofuse.NodeListxattrer = (*allocationNode)(nil)

func (a *allocationNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := a.manager.GetAttr(a.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(attr, out)
	return 0
}

// Setattr handles truncation: `truncate(path, n)` and `open(path,
// O_TRUNC)` both arrive here as a SETATTR with a size field. This is
// the operation that actually allocates or releases GPU memory in the
// canonical (non-hint-mode) lifecycle.
func (a *allocationNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := a.manager.Truncate(ctx, a.path, int64(size)); err != nil {
			return toErrno(err)
		}
	}

	var update gpumem.TimeUpdate
	if mtime, ok := in.GetMTime(); ok {
		update.SetModify = true
		update.Modify = mtime
	}
	if atime, ok := in.GetATime(); ok {
		update.SetAccess = true
		update.Access = atime
	}
	if update.SetModify || update.SetAccess {
		if err := a.manager.Utimens(a.path, update); err != nil {
			return toErrno(err)
		}
	}

	attr, err := a.manager.GetAttr(a.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(attr, out)
	return 0
}

func (a *allocationNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if err := a.manager.Open(a.path); err != nil {
		return nil, 0, toErrno(err)
	}
	return &allocationHandle{manager: a.manager, path: a.path}, 0, 0
}

// Read is a diagnostic convenience: at offset 0, if the record is
// materialized and the caller's buffer is large enough, it returns the
// shareable handle. The canonical retrieval path is getxattr; this
// exists only so a plain `cat`/`read(2)` against the path works.
// Materializing a record is strictly a Truncate-driven action — Read
// never triggers it.
func (a *allocationNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off != 0 {
		return fuse.ReadResultData(nil), 0
	}

	handle, err := a.manager.ReadFabricHandle(a.path)
	if err != nil {
		if gpumem.KindOf(err) == gpumem.KindNoData {
			return fuse.ReadResultData(nil), 0
		}
		return nil, toErrno(err)
	}

	if len(dest) < len(handle) {
		return nil, syscall.EINVAL
	}
	return fuse.ReadResultData(handle), 0
}

func (a *allocationNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, err := a.manager.GetXattr(a.path, attr)
	if err != nil {
		return 0, toErrno(err)
	}
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	copy(dest, value)
	return uint32(len(value)), 0
}

func (a *allocationNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	if err := a.manager.SetXattr(ctx, a.path, attr, data); err != nil {
		return toErrno(err)
	}
	return 0
}

func (a *allocationNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, err := a.manager.ListXattr(a.path)
	if err != nil {
		return 0, toErrno(err)
	}

	var size int
	for _, name := range names {
		size += len(name) + 1
	}
	if len(dest) == 0 {
		return uint32(size), 0
	}
	if len(dest) < size {
		return uint32(size), syscall.ERANGE
	}

	offset := 0
	for _, name := range names {
		copy(dest[offset:], name)
		offset += len(name)
		dest[offset] = 0
		offset++
	}
	return uint32(size), 0
}

func fillAttr(attr gpumem.Attr, out *fuse.AttrOut) {
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = attr.Size
	out.Blocks = (attr.Size + 511) / 512
	out.Blksize = 65536
	out.SetTimes(&attr.AccessTime, &attr.ModifyTime, &attr.CreateTime)
}

// allocationHandle is the FileHandle returned from Open. Its only job
// is to notify the Manager when the kernel closes the last reference,
// which matters for ref-counted (hint-mode/durable) records; for
// canonical records NoteRelease is a no-op.
type allocationHandle struct {
	manager *gpumem.Manager
	path    string
}

var _ gofuse.FileReleaser = (*allocationHandle)(nil)

func (h *allocationHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.manager.NoteRelease(ctx, h.path); err != nil {
		return toErrno(err)
	}
	return 0
}
