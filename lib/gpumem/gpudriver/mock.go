// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpudriver

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a deterministic, in-process Binding for tests and for
// running the daemon without a GPU (--mock-gpu). Each allocation gets
// a distinct handle and a shareable handle derived from a monotonic
// counter, so tests can assert on distinctness without depending on
// real driver behavior.
type Mock struct {
	// FailAllocate, if non-nil, is returned by every Allocate call
	// instead of performing the allocation. Tests use this to
	// exercise the out_of_memory path.
	FailAllocate error

	mu      sync.Mutex
	next    uint64
	live    map[Handle]uint64 // handle -> size, for bookkeeping/assertions
	initErr error
	closed  bool
}

var _ Binding = (*Mock)(nil)

// NewMock returns a ready-to-use Mock binding. Mock does not check
// that Initialize ran before Allocate/Release; callers that follow
// the Binding contract call it first anyway.
func NewMock() *Mock {
	return &Mock{live: make(map[Handle]uint64)}
}

func (m *Mock) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	return nil
}

func (m *Mock) Allocate(ctx context.Context, size uint64) (Handle, ShareableHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAllocate != nil {
		return 0, ShareableHandle{}, m.FailAllocate
	}

	m.next++
	handle := Handle(m.next)
	m.live[handle] = size

	var shareable ShareableHandle
	// Fill the token with a pattern derived from the counter so
	// distinct allocations are observably distinct, the way two real
	// fabric handles would never collide.
	for i := range shareable {
		shareable[i] = byte(m.next>>(8*(i%8))) ^ byte(i)
	}
	return handle, shareable, nil
}

func (m *Mock) Release(ctx context.Context, handle Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, handle)
	return nil
}

func (m *Mock) ExportKind() int { return FabricHandleSize }

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// LiveCount returns the number of allocations currently outstanding.
// Test-only helper for asserting cleanup behavior.
func (m *Mock) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// SetInitError makes a future Initialize call fail, for exercising
// driver_unavailable handling.
func (m *Mock) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

func (m *Mock) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("gpudriver.Mock{live=%d, closed=%v}", len(m.live), m.closed)
}
