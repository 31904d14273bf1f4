// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build cgo

package gpudriver

/*
#cgo LDFLAGS: -lcuda
#include <cuda.h>
#include <string.h>

static CUresult gpudriver_init(CUdevice *dev, int ordinal) {
	CUresult rc = cuInit(0);
	if (rc != CUDA_SUCCESS) {
		return rc;
	}
	return cuDeviceGet(dev, ordinal);
}

static CUresult gpudriver_alloc(CUdevice dev, size_t size,
                                 CUmemGenericAllocationHandle *handle,
                                 void *fabricHandleOut, size_t fabricHandleSize) {
	CUmemAllocationProp props;
	memset(&props, 0, sizeof(props));
	props.type = CU_MEM_ALLOCATION_TYPE_PINNED;
	props.location.type = CU_MEM_LOCATION_TYPE_DEVICE;
	props.location.id = dev;
	props.requestedHandleTypes = CU_MEM_HANDLE_TYPE_FABRIC;

	CUresult rc = cuMemCreate(handle, size, &props, 0);
	if (rc != CUDA_SUCCESS) {
		return rc;
	}

	rc = cuMemExportToShareableHandle(fabricHandleOut, *handle, CU_MEM_HANDLE_TYPE_FABRIC, 0);
	if (rc != CUDA_SUCCESS) {
		cuMemRelease(*handle);
		return rc;
	}
	return CUDA_SUCCESS;
}

static const char *gpudriver_error_string(CUresult rc) {
	const char *str = NULL;
	cuGetErrorString(rc, &str);
	if (str == NULL) {
		return "unknown CUDA error";
	}
	return str;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// CUDABinding implements Binding against the real CUDA driver API. It
// is the production binding: every allocation it produces corresponds
// to physical device memory exported as a fabric handle, importable by
// another process on the same host via cuMemImportFromShareableHandle.
type CUDABinding struct {
	ordinal int

	mu       sync.Mutex
	device   C.CUdevice
	initDone bool
}

var _ Binding = (*CUDABinding)(nil)

// NewCUDABinding returns a CUDABinding targeting the given zero-based
// device ordinal. Initialize must be called before Allocate or
// Release.
func NewCUDABinding(ordinal int) *CUDABinding {
	return &CUDABinding{ordinal: ordinal}
}

func (b *CUDABinding) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initDone {
		return nil
	}

	var dev C.CUdevice
	rc := C.gpudriver_init(&dev, C.int(b.ordinal))
	if rc != C.CUDA_SUCCESS {
		return fmt.Errorf("%w: cuInit/cuDeviceGet(%d): %s", ErrDriverUnavailable, b.ordinal, C.GoString(C.gpudriver_error_string(rc)))
	}

	b.device = dev
	b.initDone = true
	return nil
}

func (b *CUDABinding) Allocate(ctx context.Context, size uint64) (Handle, ShareableHandle, error) {
	b.mu.Lock()
	device := b.device
	initDone := b.initDone
	b.mu.Unlock()

	if !initDone {
		return 0, ShareableHandle{}, ErrDriverUnavailable
	}

	var cHandle C.CUmemGenericAllocationHandle
	var fabric ShareableHandle

	rc := C.gpudriver_alloc(device, C.size_t(size), &cHandle, unsafe.Pointer(&fabric[0]), C.size_t(len(fabric)))
	if rc != C.CUDA_SUCCESS {
		if rc == C.CUDA_ERROR_OUT_OF_MEMORY {
			return 0, ShareableHandle{}, ErrOutOfMemory
		}
		return 0, ShareableHandle{}, fmt.Errorf("cuMemCreate/cuMemExportToShareableHandle: %s", C.GoString(C.gpudriver_error_string(rc)))
	}

	return Handle(cHandle), fabric, nil
}

func (b *CUDABinding) Release(ctx context.Context, handle Handle) error {
	if handle == 0 {
		return nil
	}
	rc := C.cuMemRelease(C.CUmemGenericAllocationHandle(handle))
	if rc != C.CUDA_SUCCESS {
		return fmt.Errorf("cuMemRelease: %s", C.GoString(C.gpudriver_error_string(rc)))
	}
	return nil
}

func (b *CUDABinding) ExportKind() int { return FabricHandleSize }

func (b *CUDABinding) Close() error {
	// The CUDA driver API has no explicit global teardown analogous to
	// cuInit; the process exiting reclaims the context. Nothing to do.
	return nil
}
