// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"context"
	"time"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/clock"
	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/gpudriver"
)

// Manager is the Lifecycle Engine: it binds a Registry of Records to a
// GPU Binding and drives the allocation state machine in response to
// filesystem-shaped operation calls. Manager has no
// dependency on any particular filesystem library; see the fuse
// subpackage for the adapter that calls it from go-fuse.
type Manager struct {
	registry *Registry
	binding  gpudriver.Binding
	clock    clock.Clock
}

// NewManager returns a Manager backed by binding and clk. Initialize
// must be called once before Create/Truncate are used (Initialize
// brings up the GPU driver; Create and lookup-only operations do not
// require it, but Truncate does whenever it needs to allocate).
func NewManager(binding gpudriver.Binding, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		registry: NewRegistry(),
		binding:  binding,
		clock:    clk,
	}
}

// Initialize performs one-time GPU driver setup. See gpudriver.Binding.Initialize.
func (m *Manager) Initialize(ctx context.Context) error {
	return m.binding.Initialize(ctx)
}

// ExportKind returns the fixed byte length of a materialized record's
// shareable handle.
func (m *Manager) ExportKind() int {
	return m.binding.ExportKind()
}

// Shutdown releases every materialized allocation and tears down the
// GPU driver. Called once, at daemon teardown; Manager is not usable
// afterward.
func (m *Manager) Shutdown(ctx context.Context) error {
	var records []*Record
	m.registry.iterate(func(r *Record) { records = append(records, r) })

	for _, record := range records {
		record.mu.Lock()
		valid := record.valid
		handle := record.gpuHandle
		record.valid = false
		record.size = 0
		record.gpuHandle = 0
		record.mu.Unlock()

		if valid {
			_ = m.binding.Release(ctx, handle)
		}
	}

	return m.binding.Close()
}

// now returns the current time from the injected clock.
func (m *Manager) now() time.Time { return m.clock.Now() }
