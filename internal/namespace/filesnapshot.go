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

// FileDiff captures one file version: the length and a frozen attribute
// copy (with its truncated block list) as they were when the diff's
// snapshot was current.
type FileDiff struct {
	snapshot      *Snapshot
	fileSize      int64
	snapshotINode *File
	posterior     *FileDiff
}

func (d *FileDiff) Snapshot() *Snapshot { return d.snapshot }
func (d *FileDiff) FileSize() int64 { return d.fileSize }

// snapshotAttrs returns the nearest frozen copy at or after this diff, or
// nil when the live state answers.
func (d *FileDiff) snapshotAttrs() *File {
	for p := d; p != nil; p = p.posterior {
		if p.snapshotINode != nil {
			return p.snapshotINode
		}
	}
	return nil
}

// FileDiffList is the chronological list of a file's snapshot diffs.
type FileDiffList struct {
	diffs []*FileDiff
}

func (l *FileDiffList) Len() int { return len(l.diffs) }

func (l *FileDiffList) Last() *FileDiff {
	if len(l.diffs) == 0 {
		return nil
	}
	return l.diffs[len(l.diffs)-1]
}

// search locates the diff for the given snapshot id. Returns the index and
// true on an exact match, or the insertion position and false.
func (l *FileDiffList) search(id int) (int, bool) {
	i := sort.Search(len(l.diffs), func(i int) bool {
		return l.diffs[i].snapshot.id >= id
	})
	if i < len(l.diffs) && l.diffs[i].snapshot.id == id {
		return i, true
	}
	return i, false
}

// Diff returns the diff describing the file at snapshot s. An inexact match
// means the file did not change between s and the next recorded state, so
// that state answers. Nil means the current state answers.
func (l *FileDiffList) Diff(s *Snapshot) *FileDiff {
	if s == nil {
		return nil
	}
	i, ok := l.search(s.id)
	if !ok && i >= len(l.diffs) {
		return nil
	}
	return l.diffs[i]
}

// SaveSelf2Snapshot captures f's pre-modification state into the latest
// snapshot, once per snapshot. The frozen copy joins f's version chain.
func (l *FileDiffList) SaveSelf2Snapshot(latest *Snapshot, f *File) {
	if latest == nil {
		return
	}
	last := l.Last()
	if last != nil && last.snapshot.id >= latest.id {
		return
	}
	c := f.snapshotCopy()
	d := &FileDiff{snapshot: latest, fileSize: f.size, snapshotINode: c}
	l.diffs = append(l.diffs, d)
	if last != nil {
		last.posterior = d
	}
	f.chainInsertAfter(c)
}

// DeleteSnapshotDiff drops the diff recorded for snapshot s, if any.
// The frozen copy either moves to the predecessor (when the predecessor
// carries none, so older reads still resolve) or leaves the version chain
// with its exclusive blocks collected.
func (l *FileDiffList) DeleteSnapshotDiff(s *Snapshot, f *File, collected *BlocksMapUpdateInfo) *FileDiff {
	i, ok := l.search(s.id)
	if !ok {
		return nil
	}
	removed := l.diffs[i]
	l.diffs = append(l.diffs[:i], l.diffs[i+1:]...)
	if i > 0 {
		prev := l.diffs[i-1]
		prev.posterior = removed.posterior
		if prev.snapshotINode == nil {
			prev.snapshotINode = removed.snapshotINode
			removed.snapshotINode = nil
		}
	}
	if removed.snapshotINode != nil {
		removed.snapshotINode.collectExclusiveBlocks(collected)
	}
	removed.posterior = nil
	if len(l.diffs) == 0 && f.IsCurrentDeleted() {
		f.DestroyAndCollectBlocks(collected)
	}
	return removed
}
