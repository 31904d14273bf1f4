// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpudriver

import (
	"context"
	"errors"
	"testing"
)

func TestMockAllocateDistinctHandles(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	h1, s1, err := m.Allocate(ctx, 4096)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	h2, s2, err := m.Allocate(ctx, 4096)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %v twice", h1)
	}
	if s1 == s2 {
		t.Fatalf("expected distinct shareable handles, got identical bytes")
	}
	if got := m.LiveCount(); got != 2 {
		t.Fatalf("LiveCount() = %d, want 2", got)
	}
}

func TestMockReleaseIdempotent(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	_ = m.Initialize(ctx)

	h, _, err := m.Allocate(ctx, 4096)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := m.Release(ctx, h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := m.LiveCount(); got != 0 {
		t.Fatalf("LiveCount() after Release = %d, want 0", got)
	}

	// Releasing an already-released (or never-allocated) handle is a
	// no-op, matching the Binding contract.
	if err := m.Release(ctx, h); err != nil {
		t.Fatalf("Release (idempotent) = %v, want nil", err)
	}
	if err := m.Release(ctx, 0); err != nil {
		t.Fatalf("Release(zero handle) = %v, want nil", err)
	}
}

func TestMockFailAllocate(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	_ = m.Initialize(ctx)

	wantErr := errors.New("synthetic out of memory")
	m.FailAllocate = wantErr

	_, _, err := m.Allocate(ctx, 4096)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Allocate error = %v, want %v", err, wantErr)
	}
	if got := m.LiveCount(); got != 0 {
		t.Fatalf("LiveCount() after failed allocate = %d, want 0", got)
	}
}

func TestMockInitError(t *testing.T) {
	m := NewMock()
	wantErr := ErrDriverUnavailable
	m.SetInitError(wantErr)

	if err := m.Initialize(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Initialize error = %v, want %v", err, wantErr)
	}
}

func TestMockExportKind(t *testing.T) {
	m := NewMock()
	if got := m.ExportKind(); got != FabricHandleSize {
		t.Fatalf("ExportKind() = %d, want %d", got, FabricHandleSize)
	}
}
