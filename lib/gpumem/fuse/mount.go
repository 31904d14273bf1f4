// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// Created if it does not already exist.
	Mountpoint string

	// Manager is the allocation manager backing every operation under
	// the mount. Required.
	Manager *gpumem.Manager

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf. Production
	// daemons shared across UIDs on a host (a training job's many
	// containers) need this set.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a text logger that
	// writes Error-level messages to stderr is used.
	Logger *slog.Logger
}

// Mount mounts the allocation filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{manager: options.Manager, logger: options.Logger}

	// Allocation metadata (size, fabric handle) only ever changes as a
	// result of an explicit operation on the path in question, so the
	// kernel attribute cache can be held for longer than a typical
	// mutable filesystem would allow.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "cudafs",
			Name:       "cudafsd",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("gpu allocation filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// rootNode is the filesystem root. Every allocation is a direct child
// of the root; the namespace has no subdirectories of its own.
type rootNode struct {
	gofuse.Inode
	manager *gpumem.Manager
	logger  *slog.Logger
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeGetattrer = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeCreater = (*rootNode)(nil)
var _ gofuse.NodeUnlinker = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o755
	out.Nlink = 2
	return 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := "/" + name
	attr, err := r.manager.GetAttr(path)
	if err != nil {
		return nil, toErrno(err)
	}

	node := &allocationNode{manager: r.manager, logger: r.logger, path: path}
	child := r.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = attr.Size
	return child, 0
}

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries := r.manager.ReadDir()
	out := make([]fuse.DirEntry, len(entries))
	for i, entry := range entries {
		out[i] = fuse.DirEntry{
			Name: entry.Name[1:], // strip the leading "/"
			Mode: syscall.S_IFREG,
		}
	}
	return &sliceDirStream{entries: out}, 0
}

// Create handles `open(path, O_CREAT, ...)` on a not-yet-existing
// allocation. Per the manager's lifecycle, Create never allocates GPU
// memory by itself unless a size hint was set via setxattr beforehand.
func (r *rootNode) Create(ctx context.Context, name string, _ uint32, _ uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	path := "/" + name

	if err := r.manager.Create(ctx, path); err != nil {
		return nil, nil, 0, toErrno(err)
	}

	node := &allocationNode{manager: r.manager, logger: r.logger, path: path}
	child := r.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o644

	attr, err := r.manager.GetAttr(path)
	if err == nil {
		out.Size = attr.Size
	}

	return child, nil, 0, 0
}

func (r *rootNode) Unlink(ctx context.Context, name string) syscall.Errno {
	path := "/" + name
	if err := r.manager.Unlink(ctx, path); err != nil {
		return toErrno(err)
	}
	return 0
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}

// toErrno maps a gpumem error Kind to the syscall.Errno the kernel
// expects at the FUSE boundary. This is the one place in the module
// that performs this translation.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch gpumem.KindOf(err) {
	case gpumem.KindNotFound:
		return syscall.ENOENT
	case gpumem.KindAlreadyExists:
		return syscall.EEXIST
	case gpumem.KindInvalidArgument:
		return syscall.EINVAL
	case gpumem.KindNoData:
		return syscall.ENODATA
	case gpumem.KindRangeError:
		return syscall.ERANGE
	case gpumem.KindOutOfMemory:
		return syscall.ENOMEM
	case gpumem.KindIOError:
		return syscall.EIO
	case gpumem.KindNotSupported:
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}
