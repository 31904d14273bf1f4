// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpudriver

import (
	"context"
	"errors"
)

// FabricHandleSize is the byte length of a CUDA fabric handle
// (CUmemFabricHandle), the export kind used by CUDABinding. It is part
// of the external wire contract: importers on another process must
// treat the shareable handle as exactly this many opaque bytes.
const FabricHandleSize = 64

// ErrDriverUnavailable is returned by Initialize when the GPU driver
// cannot be brought up (missing driver, no device, permission denied).
var ErrDriverUnavailable = errors.New("gpudriver: driver unavailable")

// ErrOutOfMemory is returned by Allocate when the driver cannot
// satisfy the requested size.
var ErrOutOfMemory = errors.New("gpudriver: out of memory")

// Handle is an opaque, process-local GPU allocation handle. It has no
// meaning outside the Binding that produced it.
type Handle uint64

// ShareableHandle is a fixed-size, byte-copyable export token
// identifying a physical allocation. It can be copied verbatim across
// process boundaries and imported by another process on the same host
// without further coordination. It is not a pointer and carries no
// destructor; copying it does not duplicate or reference-count the
// underlying allocation.
type ShareableHandle [FabricHandleSize]byte

// Binding is the contract the allocation manager requires of a GPU
// driver. Implementations must be safe for concurrent use by multiple
// goroutines: the manager serializes operations on a single path via
// its own per-record lock, but operations on distinct paths may call
// into a Binding concurrently.
type Binding interface {
	// Initialize performs one-time, process-wide setup and selects the
	// target device. Called exactly once before any Allocate or
	// Release call. Returns ErrDriverUnavailable (or a wrapped form of
	// it) if the driver cannot be initialized.
	Initialize(ctx context.Context) error

	// Allocate reserves size bytes of pinned device memory and
	// produces a shareable export token for it. size must be greater
	// than zero. Returns ErrOutOfMemory, or a wrapped driver error, on
	// failure; in either case no allocation is left outstanding.
	Allocate(ctx context.Context, size uint64) (Handle, ShareableHandle, error)

	// Release frees a previously allocated handle. Idempotent: calling
	// Release with a handle that is not currently allocated (including
	// the zero Handle) is a no-op and returns nil. Release does not
	// invalidate ShareableHandle copies already exported to other
	// processes — those processes may still hold live imports and
	// mappings after Release returns.
	Release(ctx context.Context, handle Handle) error

	// ExportKind returns the fixed byte length of ShareableHandle
	// values produced by this Binding.
	ExportKind() int

	// Close releases process-wide driver state acquired by
	// Initialize. Called once at daemon shutdown, after every
	// outstanding Handle has been released.
	Close() error
}
