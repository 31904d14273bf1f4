// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpumem implements the allocation manager at the core of the
// CUDA durable allocator: a concurrent, path-keyed registry of GPU
// buffers whose lifecycle is driven by filesystem-shaped operations
// (create, truncate, unlink, getxattr, ...) and whose contract is that
// a caller who can name a path can reconstruct a usable GPU virtual
// address from a shareable handle.
//
// The package has no dependency on any particular filesystem binding.
// Callers (typically a FUSE adapter) translate VFS operations into
// calls on Manager and translate the Kind of any returned error into
// their own error numbering scheme.
//
// # Locking
//
// Manager holds a single global lock (via Registry) for lookups,
// insertions, and removals, and never holds it across a GPU driver
// call. Each Record has its own lock, held across mutation of that
// record's fields and across the corresponding GPU driver call, so
// that concurrent operations on the same path serialize while
// operations on distinct paths proceed independently.
package gpumem
