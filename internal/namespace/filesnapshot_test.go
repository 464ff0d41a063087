package namespace

import (
	"testing"
	"time"
)

func TestSaveChild2SnapshotConversion(t *testing.T) {
	d := snapshottableDir(t, 1, "a")
	f := testFile(2, "f1")
	f.SetBlocks([]BlockID{1}, 1024)
	f.SetModificationTime(time.Unix(1111, 0))
	if err := d.AddChild(f, nil); err != nil {
		t.Fatal(err)
	}
	s0 := mustSnapshot(t, d, 0, "s0")

	d.SaveChild2Snapshot(f, d.LastSnapshot())
	f.SetModificationTime(time.Unix(2222, 0))

	if !f.WithSnapshot() {
		t.Fatal("file should carry snapshot state after conversion")
	}
	frozen := d.Child([]byte("f1"), s0)
	if frozen == nil || frozen == INode(f) {
		t.Fatal("s0 must resolve to the frozen copy")
	}
	if got := frozen.ModificationTime(s0); !got.Equal(time.Unix(1111, 0)) {
		t.Errorf("frozen mtime = %v, want 1111", got)
	}
	if got := f.ModificationTime(nil); !got.Equal(time.Unix(2222, 0)) {
		t.Errorf("live mtime = %v, want 2222", got)
	}
	if members := f.chainMembers(); len(members) != 2 {
		t.Errorf("version chain has %d members, want 2", len(members))
	}

	// a second capture under the same snapshot is a no-op
	d.SaveChild2Snapshot(f, d.LastSnapshot())
	if members := f.chainMembers(); len(members) != 2 {
		t.Error("repeated capture must not grow the chain")
	}
}

func TestFileDiffListCaptureAndSize(t *testing.T) {
	f := testFile(1, "f")
	f.SetBlocks([]BlockID{1, 2}, 2048)

	s0 := newSnapshot(0, "s0", nil, time.Unix(2000, 0))
	f.SaveSelf2Snapshot(s0)
	f.TruncateBlocks(1024, &BlocksMapUpdateInfo{})

	if got := f.ComputeFileSize(s0); got != 2048 {
		t.Errorf("size at s0 = %d, want 2048", got)
	}
	if got := f.ComputeFileSize(nil); got != 1024 {
		t.Errorf("live size = %d, want 1024", got)
	}

	s1 := newSnapshot(10, "s1", nil, time.Unix(2000, 0))
	f.SaveSelf2Snapshot(s1)
	f.TruncateBlocks(0, &BlocksMapUpdateInfo{})

	if got := f.ComputeFileSize(s1); got != 1024 {
		t.Errorf("size at s1 = %d, want 1024", got)
	}
	if got := f.ComputeFileSize(nil); got != 0 {
		t.Errorf("live size = %d, want 0", got)
	}
}

func TestTruncateRetainsSnapshotBlocks(t *testing.T) {
	f := testFile(1, "f")
	f.SetBlocks([]BlockID{1, 2}, 2048)

	s0 := newSnapshot(0, "s0", nil, time.Unix(2000, 0))
	f.SaveSelf2Snapshot(s0)

	collected := &BlocksMapUpdateInfo{}
	f.TruncateBlocks(1024, collected)
	if len(collected.Blocks()) != 0 {
		t.Errorf("collected = %v, the frozen copy still holds block 2", collected.Blocks())
	}

	// without any snapshot copy the dropped block is collected right away
	g := testFile(2, "g")
	g.SetBlocks([]BlockID{5, 6}, 2048)
	collected = &BlocksMapUpdateInfo{}
	g.TruncateBlocks(1024, collected)
	if len(collected.Blocks()) != 1 || collected.Blocks()[0] != 6 {
		t.Errorf("collected = %v, want [6]", collected.Blocks())
	}
}

func TestFileDiffDeleteMovesCopyOrCollects(t *testing.T) {
	f := testFile(1, "f")
	f.SetBlocks([]BlockID{1, 2}, 2048)

	s0 := newSnapshot(0, "s0", nil, time.Unix(2000, 0))
	f.SaveSelf2Snapshot(s0)
	f.TruncateBlocks(1024, &BlocksMapUpdateInfo{})

	// deleting the only version for s0 releases the block held exclusively
	// by its frozen copy
	collected := &BlocksMapUpdateInfo{}
	f.Diffs().DeleteSnapshotDiff(s0, f, collected)
	if len(collected.Blocks()) != 1 || collected.Blocks()[0] != 2 {
		t.Errorf("collected = %v, want [2]", collected.Blocks())
	}
	if members := f.chainMembers(); len(members) != 1 {
		t.Errorf("chain members = %d, want 1", len(members))
	}
}

func TestCurrentDeletedFileDies(t *testing.T) {
	f := testFile(1, "f")
	f.SetBlocks([]BlockID{1}, 1024)

	s0 := newSnapshot(0, "s0", nil, time.Unix(2000, 0))
	f.SaveSelf2Snapshot(s0)
	f.MarkCurrentDeleted()

	collected := &BlocksMapUpdateInfo{}
	f.Diffs().DeleteSnapshotDiff(s0, f, collected)

	// the frozen copy shared block 1 with the live file; once the deleted
	// current file loses its last diff everything is collected
	if len(collected.Blocks()) != 1 || collected.Blocks()[0] != 1 {
		t.Errorf("collected = %v, want [1]", collected.Blocks())
	}
}
