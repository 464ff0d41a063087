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

import "sort"

// DirectoryDiff is the change between two consecutive states of a
// directory. The diff list forms a chain
//
//	d_1 -> d_2 -> ... -> d_n -> (live)
//
// through posterior; the state at snapshot s_k is recovered by applying the
// diffs backwards from the live state: (live) - d_n - ... - d_k.
type DirectoryDiff struct {
	snapshot *Snapshot
	// childrenSize is the size of the children list when the posterior
	// state of this diff was current.
	childrenSize int
	// snapshotINode freezes the directory's own attributes; nil means no
	// attribute change happened under this diff.
	snapshotINode *Directory
	diff          *ChildrenDiff
	posterior     *DirectoryDiff
}

func (d *DirectoryDiff) Snapshot() *Snapshot { return d.snapshot }
func (d *DirectoryDiff) ChildrenSize() int { return d.childrenSize }
func (d *DirectoryDiff) ChildrenDiff() *ChildrenDiff { return d.diff }

// IsSnapshotRoot reports whether the frozen copy is the snapshot root, i.e.
// the diff was appended at snapshot creation.
func (d *DirectoryDiff) IsSnapshotRoot() bool {
	return d.snapshotINode != nil && d.snapshotINode == d.snapshot.root
}

// childrenList reconstructs the children of dir as seen by this diff's
// snapshot: every diff from here to the end of the chain is folded into one
// and applied backwards onto the live list.
func (d *DirectoryDiff) childrenList(dir *Directory) []INode {
	combined := &ChildrenDiff{}
	for p := d; p != nil; p = p.posterior {
		combined.CombinePosterior(p.diff, nil)
	}
	return combined.Apply2Current(dir.children)
}

// child resolves one name in this diff's snapshot view by walking the
// posterior chain until a diff determines the answer; the live children
// list decides when no diff does and checkPosterior allows it.
func (d *DirectoryDiff) child(name []byte, checkPosterior bool, dir *Directory) INode {
	for p := d; ; p = p.posterior {
		n, kind := p.diff.AccessPrevious(name)
		switch kind {
		case AccessExists:
			return n
		case AccessAbsent:
			return nil
		}
		if !checkPosterior {
			return nil
		}
		if p.posterior == nil {
			return dir.liveChild(name)
		}
	}
}

// attrSource finds the nearest frozen attribute copy at or after this diff,
// falling back to the live directory.
func (d *DirectoryDiff) attrSource(dir *Directory) *Directory {
	for p := d; p != nil; p = p.posterior {
		if p.snapshotINode != nil {
			return p.snapshotINode
		}
	}
	return dir
}

// DirectoryDiffList holds a directory's snapshot diffs in chronological
// order (ascending snapshot id).
type DirectoryDiffList struct {
	diffs []*DirectoryDiff
}

func (l *DirectoryDiffList) Len() int { return len(l.diffs) }

func (l *DirectoryDiffList) Last() *DirectoryDiff {
	if len(l.diffs) == 0 {
		return nil
	}
	return l.diffs[len(l.diffs)-1]
}

func (l *DirectoryDiffList) All() []*DirectoryDiff { return l.diffs }

func (l *DirectoryDiffList) search(id int) (int, bool) {
	i := sort.Search(len(l.diffs), func(i int) bool {
		return l.diffs[i].snapshot.id >= id
	})
	if i < len(l.diffs) && l.diffs[i].snapshot.id == id {
		return i, true
	}
	return i, false
}

// Diff returns the diff describing the directory at snapshot s. An inexact
// match means nothing changed between s and the next recorded state, so the
// next recorded state answers; nil means the live state answers.
func (l *DirectoryDiffList) Diff(s *Snapshot) *DirectoryDiff {
	if s == nil {
		return nil
	}
	i, ok := l.search(s.id)
	if !ok && i >= len(l.diffs) {
		return nil
	}
	return l.diffs[i]
}

// DeleteSnapshotDiff removes the diff recorded for snapshot s. A diff with
// a predecessor is combined into it, handing elements that existed only
// inside the combined span to process; the caller destroys what the oldest
// diff retained when no predecessor exists (wasFirst).
func (l *DirectoryDiffList) DeleteSnapshotDiff(s *Snapshot, process func(INode)) (removed *DirectoryDiff, wasFirst bool) {
	i, ok := l.search(s.id)
	if !ok {
		return nil, false
	}
	removed = l.diffs[i]
	l.diffs = append(l.diffs[:i], l.diffs[i+1:]...)
	if i > 0 {
		prev := l.diffs[i-1]
		prev.diff.CombinePosterior(removed.diff, process)
		prev.posterior = removed.posterior
		if prev.snapshotINode == nil {
			prev.snapshotINode = removed.snapshotINode
		}
		removed.posterior = nil
		return removed, false
	}
	removed.posterior = nil
	return removed, true
}
