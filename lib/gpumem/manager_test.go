// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gpumem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vramesh-nv/cuda-durable-allocator/lib/clock"
	"github.com/vramesh-nv/cuda-durable-allocator/lib/gpumem/gpudriver"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *gpudriver.Mock, *clock.FakeClock) {
	t.Helper()
	mock := gpudriver.NewMock()
	fake := clock.Fake(epoch)
	m := NewManager(mock, fake)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return m, mock, fake
}

func TestCreateThenGetattrUnmaterialized(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	attr, err := m.GetAttr("/buf")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Size != 0 {
		t.Fatalf("Size = %d, want 0", attr.Size)
	}

	if _, err := m.GetXattr("/buf", AttrFabricHandle); KindOf(err) != KindNoData {
		t.Fatalf("GetXattr(fabric_handle) on unmaterialized record = %v, want no_data", err)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := m.Truncate(ctx, "/buf", 4096); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	attr, err := m.GetAttr("/buf")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Size != 4096 {
		t.Fatalf("Size after idempotent Create = %d, want 4096 (materialization must survive)", attr.Size)
	}
}

func TestTruncateMaterializesAndReleases(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Truncate(ctx, "/buf", 8388608); err != nil {
		t.Fatalf("Truncate(n): %v", err)
	}
	if got := mock.LiveCount(); got != 1 {
		t.Fatalf("LiveCount after Truncate(n) = %d, want 1", got)
	}

	size, err := m.GetXattr("/buf", AttrAllocationSize)
	if err != nil {
		t.Fatalf("GetXattr(allocation_size): %v", err)
	}
	if string(size) != "8388608" {
		t.Fatalf("allocation_size = %q, want %q", size, "8388608")
	}

	handle, err := m.GetXattr("/buf", AttrFabricHandle)
	if err != nil {
		t.Fatalf("GetXattr(fabric_handle): %v", err)
	}
	if len(handle) != gpudriver.FabricHandleSize {
		t.Fatalf("fabric_handle length = %d, want %d", len(handle), gpudriver.FabricHandleSize)
	}

	if err := m.Truncate(ctx, "/buf", 0); err != nil {
		t.Fatalf("Truncate(0): %v", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after Truncate(0) = %d, want 0", got)
	}
	if _, err := m.GetXattr("/buf", AttrFabricHandle); KindOf(err) != KindNoData {
		t.Fatalf("GetXattr(fabric_handle) after Truncate(0) = %v, want no_data", err)
	}
}

func TestTruncateResizeRejected(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/buf")
	if err := m.Truncate(ctx, "/buf", 4096); err != nil {
		t.Fatalf("Truncate(4096): %v", err)
	}
	if err := m.Truncate(ctx, "/buf", 8192); KindOf(err) != KindNotSupported {
		t.Fatalf("Truncate(8192) on materialized record = %v, want not_supported", err)
	}
	// Truncating to the same size is a no-op success, not an error.
	if err := m.Truncate(ctx, "/buf", 4096); err != nil {
		t.Fatalf("Truncate to matching size = %v, want nil", err)
	}
}

func TestTruncateNegativeSizeInvalid(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Truncate(context.Background(), "/buf", -1); KindOf(err) != KindInvalidArgument {
		t.Fatalf("Truncate(-1) = %v, want invalid_argument", err)
	}
}

func TestTruncateUnknownPathNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Truncate(context.Background(), "/nope", 4096); KindOf(err) != KindNotFound {
		t.Fatalf("Truncate(unknown) = %v, want not_found", err)
	}
}

func TestUnlinkReleasesAndForgets(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/buf")
	_ = m.Truncate(ctx, "/buf", 4096)

	if err := m.Unlink(ctx, "/buf"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after Unlink = %d, want 0", got)
	}

	if _, err := m.GetAttr("/buf"); KindOf(err) != KindNotFound {
		t.Fatalf("GetAttr after Unlink = %v, want not_found", err)
	}
	if err := m.Truncate(ctx, "/buf", 4096); KindOf(err) != KindNotFound {
		t.Fatalf("Truncate after Unlink = %v, want not_found", err)
	}
}

func TestUnlinkUnknownPath(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Unlink(context.Background(), "/nope"); KindOf(err) != KindNotFound {
		t.Fatalf("Unlink(unknown) = %v, want not_found", err)
	}
}

// TestMaterializeRejectsRemovedRecord exercises the single-path race a
// concurrent Truncate(size>0) and Unlink can hit: Truncate looks up the
// record before Unlink removes it, then reaches materialize with a
// stale pointer. materialize must refuse to attach a fresh GPU
// allocation to a record Unlink has already released and removed,
// since nothing would ever release that allocation again.
func TestMaterializeRejectsRemovedRecord(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	record := m.registry.lookup("/buf")
	if record == nil {
		t.Fatal("lookup after Create returned nil")
	}

	if err := m.Unlink(ctx, "/buf"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	if err := m.materialize(ctx, record, 4096, false, false); KindOf(err) != KindNotFound {
		t.Fatalf("materialize on removed record = %v, want not_found", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after materializing a removed record = %d, want 0 (leaked)", got)
	}
}

// TestTruncateToZeroRejectsRemovedRecord covers the same race for the
// size-0 path: a concurrent Truncate(0) must not resurrect fields on a
// record Unlink already released and removed.
func TestTruncateToZeroRejectsRemovedRecord(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Truncate(ctx, "/buf", 4096); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	record := m.registry.lookup("/buf")
	if record == nil {
		t.Fatal("lookup after Truncate returned nil")
	}

	if err := m.Unlink(ctx, "/buf"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after Unlink = %d, want 0", got)
	}

	if err := m.truncateToZero(ctx, record); KindOf(err) != KindNotFound {
		t.Fatalf("truncateToZero on removed record = %v, want not_found", err)
	}
}

func TestReadDirListsMaterializedAndNot(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/a")
	_ = m.Truncate(ctx, "/a", 4096)
	_ = m.Create(ctx, "/b")

	entries := m.ReadDir()
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["/a"] || !names["/b"] || len(names) != 2 {
		t.Fatalf("ReadDir() = %v, want exactly /a and /b", entries)
	}
}

func TestAllocationsOnDistinctPathsGetDistinctHandles(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := pathFor(i)
			if err := m.Create(ctx, path); err != nil {
				t.Errorf("Create(%s): %v", path, err)
				return
			}
			if err := m.Truncate(ctx, path, 4096); err != nil {
				t.Errorf("Truncate(%s): %v", path, err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		path := pathFor(i)
		handle, err := m.GetXattr(path, AttrFabricHandle)
		if err != nil {
			t.Fatalf("GetXattr(%s): %v", path, err)
		}
		key := string(handle)
		if seen[key] {
			t.Fatalf("duplicate fabric_handle observed across distinct paths")
		}
		seen[key] = true
	}

	entries := m.ReadDir()
	if len(entries) != n {
		t.Fatalf("ReadDir() returned %d entries, want %d", len(entries), n)
	}
}

func pathFor(i int) string {
	return "/p_" + string(rune('a'+i))
}

func TestHintModeMaterializesOnCreate(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.SetXattr(ctx, "/buf", AttrHintSize, []byte("4096")); err != nil {
		t.Fatalf("SetXattr(hint size) before create: %v", err)
	}
	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	attr, err := m.GetAttr("/buf")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Size != 4096 {
		t.Fatalf("Size after hinted Create = %d, want 4096", attr.Size)
	}
	if got := mock.LiveCount(); got != 1 {
		t.Fatalf("LiveCount = %d, want 1", got)
	}
}

func TestDurabilityKeepsAllocationAliveAcrossRelease(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.SetXattr(ctx, "/buf", AttrHintSize, []byte("4096")); err != nil {
		t.Fatalf("SetXattr(hint size): %v", err)
	}
	if err := m.SetXattr(ctx, "/buf", AttrHintDurable, []byte("true")); err != nil {
		t.Fatalf("SetXattr(hint durable): %v", err)
	}
	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Open("/buf"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.NoteRelease(ctx, "/buf"); err != nil {
		t.Fatalf("NoteRelease: %v", err)
	}
	if got := mock.LiveCount(); got != 1 {
		t.Fatalf("LiveCount after releasing a durable record = %d, want 1 (should survive)", got)
	}
}

func TestNonDurableRefCountedReleasesOnLastClose(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.SetXattr(ctx, "/buf", AttrHintSize, []byte("4096")); err != nil {
		t.Fatalf("SetXattr(hint size): %v", err)
	}
	if err := m.Create(ctx, "/buf"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Open("/buf"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.NoteRelease(ctx, "/buf"); err != nil {
		t.Fatalf("NoteRelease: %v", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after last close of non-durable ref-counted record = %d, want 0", got)
	}
}

func TestCanonicalRecordIgnoresOpenCloseRefcounting(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/buf")
	_ = m.Truncate(ctx, "/buf", 4096)

	if err := m.Open("/buf"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.NoteRelease(ctx, "/buf"); err != nil {
		t.Fatalf("NoteRelease: %v", err)
	}
	if got := mock.LiveCount(); got != 1 {
		t.Fatalf("LiveCount after release of a canonical record = %d, want 1 (open/close must not affect it)", got)
	}
}

func TestOutOfMemoryLeavesRecordUnmaterialized(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()
	mock.FailAllocate = errors.New("synthetic failure")

	_ = m.Create(ctx, "/buf")
	if err := m.Truncate(ctx, "/buf", 4096); KindOf(err) != KindOutOfMemory {
		t.Fatalf("Truncate with failing binding = %v, want out_of_memory", err)
	}

	attr, err := m.GetAttr("/buf")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Size != 0 {
		t.Fatalf("Size after failed Truncate = %d, want 0 (record must stay unmaterialized)", attr.Size)
	}
}

func TestUtimensUpdatesTimestamps(t *testing.T) {
	m, _, fake := newTestManager(t)
	ctx := context.Background()
	_ = m.Create(ctx, "/buf")

	fake.Advance(time.Hour)
	newAccess := fake.Now()
	if err := m.Utimens("/buf", TimeUpdate{SetAccess: true, Access: newAccess}); err != nil {
		t.Fatalf("Utimens: %v", err)
	}

	attr, err := m.GetAttr("/buf")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if !attr.AccessTime.Equal(newAccess) {
		t.Fatalf("AccessTime = %v, want %v", attr.AccessTime, newAccess)
	}
	if !attr.ModifyTime.Equal(epoch) {
		t.Fatalf("ModifyTime = %v, want unchanged %v", attr.ModifyTime, epoch)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/a")
	_ = m.Truncate(ctx, "/a", 4096)
	_ = m.Create(ctx, "/b")
	_ = m.Truncate(ctx, "/b", 8192)

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := mock.LiveCount(); got != 0 {
		t.Fatalf("LiveCount after Shutdown = %d, want 0", got)
	}
}

func TestListXattrOrderAndEmptiness(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_ = m.Create(ctx, "/buf")
	names, err := m.ListXattr("/buf")
	if err != nil {
		t.Fatalf("ListXattr: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("ListXattr on unmaterialized record = %v, want empty", names)
	}

	_ = m.Truncate(ctx, "/buf", 4096)
	names, err = m.ListXattr("/buf")
	if err != nil {
		t.Fatalf("ListXattr: %v", err)
	}
	if len(names) != 2 || names[0] != AttrFabricHandle || names[1] != AttrAllocationSize {
		t.Fatalf("ListXattr = %v, want [%s %s]", names, AttrFabricHandle, AttrAllocationSize)
	}
}

func TestSetXattrRejectsReadOnlyAttrs(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	_ = m.Create(ctx, "/buf")

	if err := m.SetXattr(ctx, "/buf", AttrFabricHandle, []byte("x")); KindOf(err) != KindNotSupported {
		t.Fatalf("SetXattr(fabric_handle) = %v, want not_supported", err)
	}
	if err := m.SetXattr(ctx, "/buf", AttrAllocationSize, []byte("4096")); KindOf(err) != KindNotSupported {
		t.Fatalf("SetXattr(allocation_size) = %v, want not_supported", err)
	}
}
