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

import "time"

// File is a regular file inode. Snapshot state (the diff list, the
// current-deleted flag) is attached lazily on the first capture; a plain
// file carries none.
//
// Every inode copy representing the same file at a different time is linked
// into a circular version chain through next. The union of the block sets
// over the chain is exactly what the block map must retain for the file.
type File struct {
	inode
	replication uint16
	blockSize   int64
	size        int64
	blocks      []BlockID

	snap *FileSnapshotState
	next *File // version chain; nil when the file has a single version
}

// FileSnapshotState holds the per-file snapshot diffs, attached on first use.
type FileSnapshotState struct {
	diffs          FileDiffList
	currentDeleted bool
}

// NewFile builds a live file inode.
func NewFile(id int64, name []byte, owner, group string, mode uint16, replication uint16, blockSize int64, now time.Time) *File {
	f := &File{replication: replication, blockSize: blockSize}
	f.id = id
	f.name = append([]byte(nil), name...)
	f.owner = owner
	f.group = group
	f.mode = mode
	f.mtime = now
	f.atime = now
	return f
}

func (f *File) IsFile() bool { return true }
func (f *File) AsFile() *File { return f }

func (f *File) Replication() uint16 { return f.replication }
func (f *File) BlockSize() int64 { return f.blockSize }
func (f *File) Blocks() []BlockID { return f.blocks }

// BlocksAt returns the block list as seen by snapshot s.
func (f *File) BlocksAt(s *Snapshot) []BlockID {
	return f.snapshotAttrSource(s).blocks
}

// SetBlocks installs the ordered block list backing size bytes.
func (f *File) SetBlocks(blocks []BlockID, size int64) {
	f.blocks = blocks
	f.size = size
}

// SetReplication changes the replication factor of the live file.
func (f *File) SetReplication(replication uint16) {
	f.replication = replication
}

// TruncateBlocks shortens the live file to newSize. Whole blocks past the
// new end leave the live list; they are collected right away only when no
// other version still holds them.
func (f *File) TruncateBlocks(newSize int64, collected *BlocksMapUpdateInfo) {
	keep := int((newSize + f.blockSize - 1) / f.blockSize)
	if keep >= len(f.blocks) {
		f.size = newSize
		return
	}
	dropped := f.blocks[keep:]
	f.blocks = append([]BlockID(nil), f.blocks[:keep]...)
	f.size = newSize
	held := make(map[BlockID]bool)
	for _, m := range f.chainMembers()[1:] {
		for _, b := range m.blocks {
			held[b] = true
		}
	}
	for _, b := range dropped {
		if !held[b] {
			collected.Add(b)
		}
	}
}

// WithSnapshot reports whether the file has captured snapshot state.
func (f *File) WithSnapshot() bool { return f.snap != nil }

// IsCurrentDeleted reports whether the live file was deleted while still
// visible in some snapshot.
func (f *File) IsCurrentDeleted() bool {
	return f.snap != nil && f.snap.currentDeleted
}

// MarkCurrentDeleted flags the file as deleted in the current state. The
// inode stays linked through its snapshot copies and references.
func (f *File) MarkCurrentDeleted() {
	f.ensureSnapshotState()
	f.snap.currentDeleted = true
}

// Diffs returns the file's snapshot diff list, or nil for a plain file.
func (f *File) Diffs() *FileDiffList {
	if f.snap == nil {
		return nil
	}
	return &f.snap.diffs
}

func (f *File) ensureSnapshotState() *FileSnapshotState {
	if f.snap == nil {
		f.snap = &FileSnapshotState{}
	}
	return f.snap
}

// ComputeFileSize returns the file length as seen by the given snapshot.
func (f *File) ComputeFileSize(s *Snapshot) int64 {
	if f.snap != nil {
		if d := f.snap.diffs.Diff(s); d != nil {
			return d.fileSize
		}
	}
	return f.size
}

func (f *File) snapshotAttrSource(s *Snapshot) *File {
	if f.snap != nil {
		if d := f.snap.diffs.Diff(s); d != nil {
			if ino := d.snapshotAttrs(); ino != nil {
				return ino
			}
		}
	}
	return f
}

func (f *File) Owner(s *Snapshot) string { return f.snapshotAttrSource(s).owner }
func (f *File) Group(s *Snapshot) string { return f.snapshotAttrSource(s).group }
func (f *File) Mode(s *Snapshot) uint16 { return f.snapshotAttrSource(s).mode }

func (f *File) ModificationTime(s *Snapshot) time.Time {
	return f.snapshotAttrSource(s).mtime
}

func (f *File) AccessTime(s *Snapshot) time.Time {
	return f.snapshotAttrSource(s).atime
}

// snapshotCopy freezes the current attribute and block state.
func (f *File) snapshotCopy() *File {
	c := &File{
		replication: f.replication,
		blockSize:   f.blockSize,
		size:        f.size,
		blocks:      append([]BlockID(nil), f.blocks...),
	}
	c.copyAttrsFrom(&f.inode)
	c.parent = f.parent
	return c
}

// RecordModification captures the pre-modification state into the latest
// snapshot. A plain file is converted by its parent directory (see
// Directory.SaveChild2Snapshot); a file that already carries snapshot state
// records into its own diff list.
func (f *File) RecordModification(latest *Snapshot) {
	if latest == nil || f.snap == nil {
		return
	}
	f.snap.diffs.SaveSelf2Snapshot(latest, f)
}

// SaveSelf2Snapshot forces a capture into the file's own diff list,
// attaching snapshot state first if needed. Used for files reachable
// through references, whose snapshot reads bypass the parent diff.
func (f *File) SaveSelf2Snapshot(latest *Snapshot) {
	if latest == nil {
		return
	}
	f.ensureSnapshotState()
	f.snap.diffs.SaveSelf2Snapshot(latest, f)
}

// --- version chain ---

// chainInsertAfter links c into f's circular version chain right after f.
func (f *File) chainInsertAfter(c *File) {
	if f.next == nil {
		f.next = c
		c.next = f
		return
	}
	c.next = f.next
	f.next = c
}

// chainRemoveSelf unlinks f from its version chain. Returns the sole
// surviving member when exactly one remains, else nil.
func (f *File) chainRemoveSelf() *File {
	if f.next == nil {
		return nil
	}
	prev := f.next
	for prev.next != f {
		prev = prev.next
	}
	prev.next = f.next
	f.next = nil
	if prev.next == prev {
		prev.next = nil
		return prev
	}
	return nil
}

// chainMembers lists every version in f's chain, f included.
func (f *File) chainMembers() []*File {
	members := []*File{f}
	for p := f.next; p != nil && p != f; p = p.next {
		members = append(members, p)
	}
	return members
}

// collectExclusiveBlocks appends the blocks held by f and by no other chain
// member, then unlinks f. If the last survivor is a deleted current file
// with no remaining diffs, its blocks are collected as well.
func (f *File) collectExclusiveBlocks(collected *BlocksMapUpdateInfo) {
	others := f.chainMembers()[1:]
	held := make(map[BlockID]bool)
	for _, m := range others {
		for _, b := range m.blocks {
			held[b] = true
		}
	}
	for _, b := range f.blocks {
		if !held[b] {
			collected.Add(b)
		}
	}
	f.blocks = nil
	if survivor := f.chainRemoveSelf(); survivor != nil {
		if survivor.IsCurrentDeleted() && survivor.snap.diffs.Len() == 0 {
			for _, b := range survivor.blocks {
				collected.Add(b)
			}
			survivor.blocks = nil
		}
	}
}

// DestroyAndCollectBlocks releases this file version. Blocks still held by
// other members of the version chain are retained.
func (f *File) DestroyAndCollectBlocks(collected *BlocksMapUpdateInfo) {
	if f.next != nil {
		f.collectExclusiveBlocks(collected)
		return
	}
	for _, b := range f.blocks {
		collected.Add(b)
	}
	f.blocks = nil
}
