package namespace

import (
	"testing"
	"time"
)

func testFile(id int64, name string) *File {
	return NewFile(id, []byte(name), "u", "g", 0644, 1, 1024, time.Unix(1000, 0))
}

func testDir(id int64, name string) *Directory {
	return NewDirectory(id, []byte(name), "u", "g", 0755, time.Unix(1000, 0))
}

func keysOf(list []INode) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = string(n.LocalName())
	}
	return out
}

func sameKeys(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiffCreateDelete(t *testing.T) {
	d := &ChildrenDiff{}

	b := testFile(1, "b")
	d.Create(b)
	a := testFile(2, "a")
	d.Create(a)

	// created list stays sorted by key
	if got := keysOf(d.CreatedList()); !sameKeys(got, "a", "b") {
		t.Fatalf("created = %v, want [a b]", got)
	}

	if _, kind := d.AccessPrevious([]byte("a")); kind != AccessAbsent {
		t.Errorf("created key should be absent in prior state, got %v", kind)
	}
	if _, kind := d.AccessPrevious([]byte("zz")); kind != AccessUnknown {
		t.Errorf("untouched key should be unknown, got %v", kind)
	}

	// deleting a pre-existing element captures it
	c := testFile(3, "c")
	undo := d.Delete(c)
	if undo.Trashed != nil {
		t.Error("deleting a pre-existing element must not trash anything")
	}
	if n, kind := d.AccessPrevious([]byte("c")); kind != AccessExists || n != c {
		t.Errorf("deleted key should exist in prior state with its copy")
	}

	// deleting a same-diff create trashes it and leaves no record
	undo = d.Delete(b)
	if undo.Trashed != b {
		t.Errorf("trashed = %v, want the created element", undo.Trashed)
	}
	if _, kind := d.AccessPrevious([]byte("b")); kind != AccessUnknown {
		t.Error("create+delete inside one diff should cancel out")
	}
}

func TestDiffUndo(t *testing.T) {
	d := &ChildrenDiff{}
	a := testFile(1, "a")

	undo := d.Create(a)
	d.UndoCreate(a, undo)
	if len(d.CreatedList()) != 0 || len(d.DeletedList()) != 0 {
		t.Fatal("undo create should restore an empty diff")
	}

	du := d.Delete(a)
	d.UndoDelete(a, du)
	if len(d.CreatedList()) != 0 || len(d.DeletedList()) != 0 {
		t.Fatal("undo delete should restore an empty diff")
	}

	// undo of a trashing delete puts the created element back
	d.Create(a)
	du = d.Delete(a)
	d.UndoDelete(a, du)
	if got := keysOf(d.CreatedList()); !sameKeys(got, "a") {
		t.Fatalf("created after undo = %v, want [a]", got)
	}
}

func TestDiffRestoration(t *testing.T) {
	d := &ChildrenDiff{}
	a := testFile(1, "a")

	// delete then re-create the same element cancels out
	d.Delete(a)
	d.Create(a)
	if _, kind := d.AccessPrevious([]byte("a")); kind != AccessUnknown {
		t.Error("delete + restore of the same element should leave no record")
	}

	// delete then create a different element under the key is a net modify:
	// the pre-state stays, created is untouched
	d2 := &ChildrenDiff{}
	d2.Delete(a)
	a2 := testFile(2, "a")
	d2.Create(a2)
	if n, kind := d2.AccessPrevious([]byte("a")); kind != AccessExists || n != a {
		t.Error("pre-state must survive a fresh create under a deleted key")
	}
	if len(d2.CreatedList()) != 0 {
		t.Error("net modify must not add a created entry")
	}
}

func TestDiffModify(t *testing.T) {
	d := &ChildrenDiff{}
	old := testFile(1, "a")

	d.Modify(old)
	if n, kind := d.AccessPrevious([]byte("a")); kind != AccessExists || n != old {
		t.Fatal("modify should capture the pre-state")
	}

	// only the first pre-state per diff is kept
	older := testFile(2, "a")
	d.Modify(older)
	if n, _ := d.AccessPrevious([]byte("a")); n != old {
		t.Error("second modify must not overwrite the captured pre-state")
	}
}

func TestCombinePosterior(t *testing.T) {
	// diff1: created x; diff2: deleted x  ->  x existed only in between
	d1 := &ChildrenDiff{}
	x := testFile(1, "x")
	d1.Create(x)

	d2 := &ChildrenDiff{}
	d2.Delete(x)

	var trashed []INode
	d1.CombinePosterior(d2, func(n INode) { trashed = append(trashed, n) })

	if len(trashed) != 1 || trashed[0] != x {
		t.Fatalf("trashed = %v, want [x]", trashed)
	}
	if len(d1.CreatedList()) != 0 || len(d1.DeletedList()) != 0 {
		t.Fatal("create+delete across combined diffs should cancel out")
	}
}

func TestCombinePosteriorCopies(t *testing.T) {
	d1 := &ChildrenDiff{}
	d1.Create(testFile(1, "a"))
	d1.Delete(testFile(2, "q"))

	d2 := &ChildrenDiff{}
	d2.Create(testFile(3, "b"))
	d2.Delete(testFile(4, "r"))

	d1.CombinePosterior(d2, nil)

	if got := keysOf(d1.CreatedList()); !sameKeys(got, "a", "b") {
		t.Errorf("created = %v, want [a b]", got)
	}
	if got := keysOf(d1.DeletedList()); !sameKeys(got, "q", "r") {
		t.Errorf("deleted = %v, want [q r]", got)
	}
}

func TestCombinePosteriorModifyKeepsOlder(t *testing.T) {
	old1 := testFile(1, "a")
	old2 := testFile(2, "a")

	d1 := &ChildrenDiff{}
	d1.Modify(old1)
	d2 := &ChildrenDiff{}
	d2.Modify(old2)

	var trashed []INode
	d1.CombinePosterior(d2, func(n INode) { trashed = append(trashed, n) })

	if n, _ := d1.AccessPrevious([]byte("a")); n != old1 {
		t.Error("combine must keep the older pre-state")
	}
	if len(trashed) != 1 || trashed[0] != old2 {
		t.Errorf("intermediate copy should be processed, got %v", trashed)
	}
}

func TestApply2Current(t *testing.T) {
	// posterior state: [b d], diff: created b, deleted a, modified d
	b := testFile(1, "b")
	dNew := testFile(2, "d")
	a := testFile(3, "a")
	dOld := testFile(4, "d")

	diff := &ChildrenDiff{}
	diff.Create(b)
	diff.Delete(a)
	diff.Modify(dOld)

	prior := diff.Apply2Current([]INode{b, dNew})
	if got := keysOf(prior); !sameKeys(got, "a", "d") {
		t.Fatalf("prior = %v, want [a d]", got)
	}
	if prior[1] != dOld {
		t.Error("modify must resolve to the pre-state copy")
	}
}

func TestApply2CurrentRoundTrip(t *testing.T) {
	// folding the whole chain and applying backwards reproduces the
	// children list at the first snapshot
	initial := []INode{testFile(1, "a"), testFile(2, "m")}

	current := append([]INode(nil), initial...)
	d1 := &ChildrenDiff{}
	x := testFile(3, "x")
	d1.Create(x)
	current = append(current, x)

	d2 := &ChildrenDiff{}
	d2.Delete(initial[0])
	current = current[1:]

	combined := &ChildrenDiff{}
	combined.CombinePosterior(d1, nil)
	combined.CombinePosterior(d2, nil)

	prior := combined.Apply2Current(current)
	if got := keysOf(prior); !sameKeys(got, "a", "m") {
		t.Fatalf("round-trip = %v, want [a m]", got)
	}
}
