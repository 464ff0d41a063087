// Copyright 2026 SnapFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package namespace

import (
	"fmt"
	"time"

	"snapfs/internal/common"
)

// Directory is a directory inode. Children are kept in ascending
// byte-lexicographic order of their name keys. Snapshot diff state and the
// snapshottable state are attached lazily; a plain directory carries
// neither.
type Directory struct {
	inode
	children      []INode
	diffs         *DirectoryDiffList
	snapshottable *SnapshottableState
	quota         *QuotaState
}

// QuotaState caps a directory subtree: namespace counts inodes, diskspace
// counts file bytes times replication. A cap of <= 0 means unlimited.
type QuotaState struct {
	nsQuota int64
	dsQuota int64
	nsCount int64
	dsCount int64
}

// NewDirectory builds a live directory inode.
func NewDirectory(id int64, name []byte, owner, group string, mode uint16, now time.Time) *Directory {
	d := &Directory{}
	d.id = id
	d.name = append([]byte(nil), name...)
	d.owner = owner
	d.group = group
	d.mode = mode
	d.mtime = now
	d.atime = now
	return d
}

// NewQuotaDirectory builds a directory with namespace/diskspace caps.
func NewQuotaDirectory(id int64, name []byte, owner, group string, mode uint16, now time.Time, nsQuota, dsQuota int64) *Directory {
	d := NewDirectory(id, name, owner, group, mode, now)
	d.quota = &QuotaState{nsQuota: nsQuota, dsQuota: dsQuota, nsCount: 1}
	return d
}

func (d *Directory) IsDirectory() bool { return true }
func (d *Directory) AsDirectory() *Directory { return d }

// SetQuota installs or replaces the subtree caps.
func (d *Directory) SetQuota(nsQuota, dsQuota int64) {
	ns, ds := subtreeCounts(d)
	d.quota = &QuotaState{nsQuota: nsQuota, dsQuota: dsQuota, nsCount: ns, dsCount: ds}
}

func (d *Directory) HasQuota() bool { return d.quota != nil }

// Diffs returns the directory's snapshot diff list, nil when the directory
// was never touched under a snapshot.
func (d *Directory) Diffs() *DirectoryDiffList { return d.diffs }

// Children returns the children list seen by snapshot s (nil for live).
func (d *Directory) Children(s *Snapshot) []INode {
	if s != nil && d.diffs != nil {
		if diff := d.diffs.Diff(s); diff != nil {
			return diff.childrenList(d)
		}
	}
	return d.children
}

// Child looks up the child under the given name key as seen by snapshot s.
func (d *Directory) Child(name []byte, s *Snapshot) INode {
	if s != nil && d.diffs != nil {
		if diff := d.diffs.Diff(s); diff != nil {
			return diff.child(name, true, d)
		}
	}
	return d.liveChild(name)
}

func (d *Directory) liveChild(name []byte) INode {
	if i, ok := searchKey(d.children, name); ok {
		return d.children[i]
	}
	return nil
}

// checkAndAddLatestDiff returns the diff accumulating changes since latest,
// appending a fresh one when latest is newer than the last recorded diff.
func (d *Directory) checkAndAddLatestDiff(latest *Snapshot) *DirectoryDiff {
	if d.diffs == nil {
		d.diffs = &DirectoryDiffList{}
	}
	last := d.diffs.Last()
	if last != nil && last.snapshot.id >= latest.id {
		return last
	}
	return d.AddSnapshotDiff(latest, false)
}

// AddSnapshotDiff appends an empty diff for the given snapshot. At snapshot
// creation the frozen directory copy is the snapshot root itself.
func (d *Directory) AddSnapshotDiff(s *Snapshot, isCreation bool) *DirectoryDiff {
	if d.diffs == nil {
		d.diffs = &DirectoryDiffList{}
	}
	last := d.diffs.Last()
	nd := &DirectoryDiff{
		snapshot:     s,
		childrenSize: len(d.children),
		diff:         &ChildrenDiff{},
	}
	if isCreation {
		nd.snapshotINode = s.root
	}
	d.diffs.diffs = append(d.diffs.diffs, nd)
	if last != nil {
		last.posterior = nd
	}
	return nd
}

// AddChild inserts n under its name key. When a latest snapshot covers the
// directory the creation is recorded into its diff first; a failing live
// insert is rolled back through the undo handle.
func (d *Directory) AddChild(n INode, latest *Snapshot) error {
	var diff *ChildrenDiff
	var undo CreateUndo
	if latest != nil {
		diff = d.checkAndAddLatestDiff(latest).diff
		undo = diff.Create(n)
	}
	err := d.addChildLive(n)
	if err != nil && diff != nil {
		diff.UndoCreate(n, undo)
	}
	return err
}

func (d *Directory) addChildLive(n INode) error {
	i, ok := searchKey(d.children, n.LocalName())
	if ok {
		return common.ErrExists
	}
	ns, ds := subtreeCounts(n)
	if err := d.verifyQuota(ns, ds); err != nil {
		return err
	}
	d.children = insertAt(d.children, i, n)
	n.SetParent(d)
	d.addSpaceConsumed(ns, ds)
	return nil
}

// RemoveChild drops n from the live children list, recording the deletion
// into the latest snapshot's diff. A failed live removal undoes the diff
// entry; a successful one cleans up a trashed element that was created
// inside the same diff (a created-then-deleted file leaves its version
// chain).
func (d *Directory) RemoveChild(n INode, latest *Snapshot) bool {
	var diff *ChildrenDiff
	var undo DeleteUndo
	if latest != nil {
		diff = d.checkAndAddLatestDiff(latest).diff
		undo = diff.Delete(n)
	}
	removed := d.removeChildLive(n)
	if diff != nil {
		if !removed {
			diff.UndoDelete(n, undo)
		} else if undo.Trashed != nil && undo.Trashed.IsFile() {
			f := undo.Trashed.AsFile()
			if f.next != nil {
				f.chainRemoveSelf()
			}
		}
	}
	return removed
}

func (d *Directory) removeChildLive(n INode) bool {
	i, ok := searchKey(d.children, n.LocalName())
	if !ok || d.children[i] != n {
		return false
	}
	d.children = removeAt(d.children, i)
	ns, ds := subtreeCounts(n)
	d.addSpaceConsumed(-ns, -ds)
	return true
}

// ReplaceChildForRename removes the live child while recording a reference
// with the frozen source name into the latest diff; the snapshot view of
// the old path keeps resolving through the reference. The undo handle
// reverses the diff entry if the rename fails later.
func (d *Directory) ReplaceChildForRename(child INode, withName *WithName, latest *Snapshot) (bool, DeleteUndo) {
	diff := d.checkAndAddLatestDiff(latest).diff
	undo := diff.Delete(withName)
	removed := d.removeChildLive(child)
	if !removed {
		diff.UndoDelete(withName, undo)
	}
	return removed, undo
}

// UndoRenameReplace rolls back ReplaceChildForRename after a failure on the
// destination side.
func (d *Directory) UndoRenameReplace(child INode, withName *WithName, latest *Snapshot, undo DeleteUndo) {
	diff := d.checkAndAddLatestDiff(latest).diff
	diff.UndoDelete(withName, undo)
	_ = d.addChildLive(child)
}

// SaveSelf2Snapshot freezes the directory's own attributes into the latest
// snapshot, once per diff. A caller-provided copy wins over a fresh one.
func (d *Directory) SaveSelf2Snapshot(latest *Snapshot, snapshotCopy *Directory) {
	if latest == nil {
		return
	}
	nd := d.checkAndAddLatestDiff(latest)
	if nd.snapshotINode == nil {
		if snapshotCopy == nil {
			snapshotCopy = d.snapshotCopy()
		}
		nd.snapshotINode = snapshotCopy
	}
}

// SaveChild2Snapshot captures a file child's pre-modification state. A file
// already carrying snapshot state records into its own diff list; a plain
// file is converted: its frozen copy goes into this directory's latest diff
// and the live file starts a version chain with the copy.
func (d *Directory) SaveChild2Snapshot(child INode, latest *Snapshot) {
	if latest == nil || !child.IsFile() {
		return
	}
	f := child.AsFile()
	nd := d.checkAndAddLatestDiff(latest)
	if _, kind := nd.diff.AccessPrevious(f.LocalName()); kind != AccessUnknown {
		// already recorded in this diff: a frozen copy serves the snapshot
		// view, or the child was created after the snapshot
		return
	}
	if f.snap != nil {
		f.RecordModification(latest)
		return
	}
	old := f.snapshotCopy()
	f.ensureSnapshotState()
	f.chainInsertAfter(old)
	nd.diff.Modify(old)
}

func (d *Directory) RecordModification(latest *Snapshot) {
	d.SaveSelf2Snapshot(latest, nil)
}

// snapshotCopy freezes the directory's attributes; children are not copied.
func (d *Directory) snapshotCopy() *Directory {
	c := &Directory{}
	c.copyAttrsFrom(&d.inode)
	c.parent = d.parent
	return c
}

func (d *Directory) snapshotAttrSource(s *Snapshot) *inode {
	if s != nil && d.diffs != nil {
		if diff := d.diffs.Diff(s); diff != nil {
			return &diff.attrSource(d).inode
		}
	}
	return &d.inode
}

func (d *Directory) Owner(s *Snapshot) string { return d.snapshotAttrSource(s).owner }
func (d *Directory) Group(s *Snapshot) string { return d.snapshotAttrSource(s).group }
func (d *Directory) Mode(s *Snapshot) uint16 { return d.snapshotAttrSource(s).mode }

func (d *Directory) ModificationTime(s *Snapshot) time.Time {
	return d.snapshotAttrSource(s).mtime
}

func (d *Directory) AccessTime(s *Snapshot) time.Time {
	return d.snapshotAttrSource(s).atime
}

// DestroyAndCollectBlocks releases the whole subtree: live children first
// (depth-first, children before parent), then every inode retained only in
// this directory's diffs.
func (d *Directory) DestroyAndCollectBlocks(collected *BlocksMapUpdateInfo) {
	for _, c := range d.children {
		c.DestroyAndCollectBlocks(collected)
	}
	d.children = nil
	if d.diffs != nil {
		for _, nd := range d.diffs.diffs {
			for _, r := range nd.diff.deleted {
				r.DestroyAndCollectBlocks(collected)
			}
		}
		d.diffs = nil
	}
}

// --- quota ---

func (d *Directory) verifyQuota(ns, ds int64) error {
	for p := d; p != nil; p = p.parent {
		if q := p.quota; q != nil {
			if q.nsQuota > 0 && q.nsCount+ns > q.nsQuota {
				return fmt.Errorf("%w: namespace quota %d on %q", common.ErrQuotaExceeded, q.nsQuota, p.LocalName())
			}
			if q.dsQuota > 0 && q.dsCount+ds > q.dsQuota {
				return fmt.Errorf("%w: diskspace quota %d on %q", common.ErrQuotaExceeded, q.dsQuota, p.LocalName())
			}
		}
	}
	return nil
}

func (d *Directory) addSpaceConsumed(ns, ds int64) {
	for p := d; p != nil; p = p.parent {
		if p.quota != nil {
			p.quota.nsCount += ns
			p.quota.dsCount += ds
		}
	}
}

// subtreeCounts computes the live namespace/diskspace usage of n.
func subtreeCounts(n INode) (ns, ds int64) {
	switch {
	case n.IsReference():
		// a reference contributes the referred subtree at its live path
		return subtreeCounts(n.AsReference().Referred())
	case n.IsFile():
		f := n.AsFile()
		return 1, f.size * int64(f.replication)
	default:
		dir := n.AsDirectory()
		ns = 1
		for _, c := range dir.children {
			cns, cds := subtreeCounts(c)
			ns += cns
			ds += cds
		}
		return ns, ds
	}
}
