// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !cgo

package gpudriver

import "context"

// CUDABinding is a build-time stub used when cgo is disabled. It
// reports the driver as unavailable rather than failing to compile, so
// that a cgo-free build of this module (cross-compiling, linting, CI
// without the CUDA toolkit installed) still produces a usable binary
// whose --mock-gpu path works.
type CUDABinding struct{}

var _ Binding = (*CUDABinding)(nil)

// NewCUDABinding returns a stub binding. Initialize always fails with
// ErrDriverUnavailable.
func NewCUDABinding(ordinal int) *CUDABinding { return &CUDABinding{} }

func (b *CUDABinding) Initialize(ctx context.Context) error { return ErrDriverUnavailable }

func (b *CUDABinding) Allocate(ctx context.Context, size uint64) (Handle, ShareableHandle, error) {
	return 0, ShareableHandle{}, ErrDriverUnavailable
}

func (b *CUDABinding) Release(ctx context.Context, handle Handle) error { return nil }

func (b *CUDABinding) ExportKind() int { return FabricHandleSize }

func (b *CUDABinding) Close() error { return nil }
