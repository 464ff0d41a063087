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
)

// Reference is an anonymous inode forwarding to another, giving a single
// inode multiple access paths after a rename crossed a snapshot boundary.
// WithName and DstReference always point at the same WithCount; a WithCount
// never points at another reference.
type Reference interface {
	INode
	Referred() INode
	SetReferred(n INode)
	DstSnapshotID() int
}

// refBase forwards everything to the referred inode except identity in the
// tree (local parent slot) and what the variants override.
type refBase struct {
	inode
	referred INode
	self     Reference
}

func (r *refBase) Referred() INode { return r.referred }
func (r *refBase) SetReferred(n INode) { r.referred = n }
func (r *refBase) DstSnapshotID() int { return InvalidSnapshotID }

// ID forwards: every access path names the same inode.
func (r *refBase) ID() int64 { return r.referred.ID() }

func (r *refBase) IsReference() bool { return true }
func (r *refBase) AsReference() Reference { return r.self }
func (r *refBase) IsFile() bool { return r.referred.IsFile() }
func (r *refBase) IsDirectory() bool { return r.referred.IsDirectory() }
func (r *refBase) AsFile() *File { return r.referred.AsFile() }
func (r *refBase) AsDirectory() *Directory { return r.referred.AsDirectory() }

func (r *refBase) LocalName() []byte { return r.referred.LocalName() }
func (r *refBase) SetLocalName(name []byte) { r.referred.SetLocalName(name) }

func (r *refBase) Owner(s *Snapshot) string { return r.referred.Owner(s) }
func (r *refBase) Group(s *Snapshot) string { return r.referred.Group(s) }
func (r *refBase) Mode(s *Snapshot) uint16 { return r.referred.Mode(s) }

func (r *refBase) ModificationTime(s *Snapshot) time.Time {
	return r.referred.ModificationTime(s)
}

func (r *refBase) AccessTime(s *Snapshot) time.Time {
	return r.referred.AccessTime(s)
}

func (r *refBase) SetOwner(owner string) { r.referred.SetOwner(owner) }
func (r *refBase) SetGroup(group string) { r.referred.SetGroup(group) }
func (r *refBase) SetMode(mode uint16) { r.referred.SetMode(mode) }
func (r *refBase) SetModificationTime(t time.Time) { r.referred.SetModificationTime(t) }
func (r *refBase) SetAccessTime(t time.Time) { r.referred.SetAccessTime(t) }

func (r *refBase) RecordModification(latest *Snapshot) {
	r.referred.RecordModification(latest)
}

// DestroyAndCollectBlocks detaches this reference; the referred inode is
// released only when the final WithCount reaches zero.
func (r *refBase) DestroyAndCollectBlocks(collected *BlocksMapUpdateInfo) {
	if RemoveReference(r.self) <= 0 {
		r.referred.DestroyAndCollectBlocks(collected)
	}
}

// WithCount is the anonymous owner of the referred inode, holding the
// reference count. It never appears in a children list.
type WithCount struct {
	refBase
	count     int
	withNames []*WithName
	liveRef   Reference // reference placed at the current-state path
}

// NewWithCount wraps a non-reference inode.
func NewWithCount(id int64, referred INode) *WithCount {
	if referred.IsReference() {
		panic(fmt.Sprintf("refcount invariant violated: referred inode %d is a reference", referred.ID()))
	}
	wc := &WithCount{}
	wc.id = id
	wc.referred = referred
	wc.self = wc
	referred.SetParentReference(wc)
	return wc
}

func (wc *WithCount) ReferenceCount() int { return wc.count }

func (wc *WithCount) incrementReferenceCount() int {
	wc.count++
	return wc.count
}

func (wc *WithCount) decrementReferenceCount() int {
	wc.count--
	if wc.count < 0 {
		panic(fmt.Sprintf("refcount invariant violated: count %d on reference %d", wc.count, wc.id))
	}
	return wc.count
}

// Parent of the referred inode is the parent at its current-state path.
func (wc *WithCount) Parent() *Directory {
	if wc.liveRef != nil {
		return wc.liveRef.Parent()
	}
	if len(wc.withNames) > 0 {
		return wc.withNames[len(wc.withNames)-1].Parent()
	}
	return nil
}

// WithNames lists the name-frozen references attached to this WithCount.
func (wc *WithCount) WithNames() []*WithName { return wc.withNames }

// LiveRef returns the reference at the current-state path, if any.
func (wc *WithCount) LiveRef() Reference { return wc.liveRef }

// WithName is a reference whose local name is frozen: the source name at
// the time of the rename, evidence for the snapshot view of the old path.
type WithName struct {
	refBase
	lastSnapshot *Snapshot
}

// NewWithName attaches a name-frozen reference to wc. lastSnapshot is the
// source-side snapshot the name was frozen under.
func NewWithName(id int64, name []byte, wc *WithCount, parent *Directory, lastSnapshot *Snapshot) *WithName {
	wn := &WithName{lastSnapshot: lastSnapshot}
	wn.id = id
	wn.name = append([]byte(nil), name...)
	wn.referred = wc
	wn.self = wn
	wn.parent = parent
	wc.withNames = append(wc.withNames, wn)
	wc.incrementReferenceCount()
	return wn
}

func (wn *WithName) LocalName() []byte { return wn.name }

func (wn *WithName) SetLocalName([]byte) {
	panic("cannot set name: WithName is immutable")
}

// LastSnapshot is the source-side snapshot this reference was frozen under.
func (wn *WithName) LastSnapshot() *Snapshot { return wn.lastSnapshot }

// DstReference is the reference at the destination path of a rename. It
// records the latest snapshot id of the destination subtree at rename time.
type DstReference struct {
	refBase
	dstSnapshotID int
}

// NewDstReference attaches the current-state reference to wc.
func NewDstReference(id int64, wc *WithCount, dstSnapshotID int) *DstReference {
	dr := &DstReference{dstSnapshotID: dstSnapshotID}
	dr.id = id
	dr.referred = wc
	dr.self = dr
	wc.liveRef = dr
	wc.incrementReferenceCount()
	return dr
}

func (dr *DstReference) DstSnapshotID() int { return dr.dstSnapshotID }

// EffectiveLatest picks the snapshot modifications through this reference
// record into: the destination path's latest when it is newer than the
// rename point, else the source-side snapshot reached through a WithName.
func (dr *DstReference) EffectiveLatest(pathLatest *Snapshot) *Snapshot {
	if pathLatest != nil && pathLatest.id > dr.dstSnapshotID {
		return pathLatest
	}
	wc, ok := dr.referred.(*WithCount)
	if !ok {
		return pathLatest
	}
	var latest *Snapshot
	for _, wn := range wc.withNames {
		latest = Later(latest, wn.lastSnapshot)
	}
	return Later(latest, pathLatest)
}

// RemoveReference detaches ref from its WithCount and returns the remaining
// count, or -1 when ref does not point at a WithCount.
func RemoveReference(ref Reference) int {
	wc, ok := ref.Referred().(*WithCount)
	if !ok {
		return -1
	}
	if wc.liveRef == ref {
		wc.liveRef = nil
	}
	if wn, ok := ref.(*WithName); ok {
		for i, w := range wc.withNames {
			if w == wn {
				wc.withNames = append(wc.withNames[:i], wc.withNames[i+1:]...)
				break
			}
		}
	}
	return wc.decrementReferenceCount()
}

// TryRemoveReference detaches n when it is a reference; returns -1 for
// non-reference inodes.
func TryRemoveReference(n INode) int {
	if !n.IsReference() {
		return -1
	}
	return RemoveReference(n.AsReference())
}
