// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpudriver is the seam between the allocation manager and the
// GPU driver. Binding exposes the four capabilities the core needs:
// one-time initialization, allocation with export, release, and the
// fixed export kind length, plus Close for process-wide teardown at
// shutdown.
//
// Two implementations are provided: CUDABinding, built with cgo against
// the CUDA driver API (cuMemCreate / cuMemExportToShareableHandle /
// cuMemRelease, mirroring the fabric-handle export used by the original
// daemon this system replaces), and Mock, a deterministic in-memory
// binding used by every test that does not require real hardware.
package gpudriver
