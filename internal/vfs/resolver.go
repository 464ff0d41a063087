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

package vfs

import (
	"snapfs/internal/common"
	"snapfs/internal/namespace"
)

// INodesInPath is the resolver's output: one inode slot per path component
// (slot 0 is the namespace root), null slots for missing trailing
// components, plus the snapshot metadata gathered on the way down. A
// returned record is never mutated by later operations.
type INodesInPath struct {
	components [][]byte
	inodes     []namespace.INode

	// latest snapshot found on the way down; meaningful for live paths
	latest *namespace.Snapshot
	// snapshot named in the path, for ".snapshot/<name>" paths
	pathSnapshot *namespace.Snapshot
	isSnapshot   bool
	// slot index holding the snapshot root, -1 outside snapshot paths
	snapshotRootIndex int
	// the path ends on the raw ".snapshot" component
	dotSnapshotTail bool

}

// LatestSnapshot is the latest snapshot found in the path, live paths only.
func (ip *INodesInPath) LatestSnapshot() *namespace.Snapshot {
	if ip.isSnapshot {
		return nil
	}
	return ip.latest
}

// PathSnapshot is the snapshot named in the path, snapshot paths only.
func (ip *INodesInPath) PathSnapshot() *namespace.Snapshot {
	if !ip.isSnapshot {
		return nil
	}
	return ip.pathSnapshot
}

func (ip *INodesInPath) IsSnapshot() bool { return ip.isSnapshot }
func (ip *INodesInPath) IsDotSnapshotTail() bool { return ip.dotSnapshotTail }
func (ip *INodesInPath) SnapshotRootIndex() int { return ip.snapshotRootIndex }

// NumNonNull counts the resolved (non-null) slots.
func (ip *INodesInPath) NumNonNull() int {
	n := 0
	for _, ino := range ip.inodes {
		if ino != nil {
			n++
		}
	}
	return n
}

// INode returns the inode at slot i (0 is the root).
func (ip *INodesInPath) INode(i int) namespace.INode { return ip.inodes[i] }

func (ip *INodesInPath) Len() int { return len(ip.inodes) }

// LastINode is the inode of the full path, nil when the path is missing.
func (ip *INodesInPath) LastINode() namespace.INode {
	return ip.inodes[len(ip.inodes)-1]
}

// LastExisting is the deepest resolved inode.
func (ip *INodesInPath) LastExisting() namespace.INode {
	for i := len(ip.inodes) - 1; i >= 0; i-- {
		if ip.inodes[i] != nil {
			return ip.inodes[i]
		}
	}
	return nil
}

// ParentDirectory is the directory holding the last component, or nil.
func (ip *INodesInPath) ParentDirectory() *namespace.Directory {
	if len(ip.inodes) < 2 {
		return nil
	}
	p := ip.inodes[len(ip.inodes)-2]
	if p == nil || !p.IsDirectory() {
		return nil
	}
	return p.AsDirectory()
}

// LastComponent is the name key of the final path component.
func (ip *INodesInPath) LastComponent() []byte {
	if len(ip.components) == 0 {
		return nil
	}
	return ip.components[len(ip.components)-1]
}

// FullPath renders the resolved path back into its canonical form.
func (ip *INodesInPath) FullPath() string {
	return common.JoinKeys(ip.components)
}

// EffectiveLatest is the snapshot a mutation of the last inode must record
// into. Crossing a DstReference redirects recording per the rename rules.
func (ip *INodesInPath) EffectiveLatest() *namespace.Snapshot {
	return ip.effectiveLatest(len(ip.inodes))
}

// EffectiveLatestForParent is the snapshot a structural change of the last
// component's parent records into. The last inode itself does not redirect:
// removing a reference from its destination parent is a change of that
// parent, not of the referred subtree.
func (ip *INodesInPath) EffectiveLatestForParent() *namespace.Snapshot {
	return ip.effectiveLatest(len(ip.inodes) - 1)
}

func (ip *INodesInPath) effectiveLatest(end int) *namespace.Snapshot {
	latest := ip.LatestSnapshot()
	for i := 0; i < end; i++ {
		n := ip.inodes[i]
		if n == nil {
			break
		}
		if dr, ok := n.(*namespace.DstReference); ok {
			latest = dr.EffectiveLatest(latest)
		}
	}
	return latest
}

// resolve walks components from root, transparently entering snapshot views
// when it crosses ".snapshot/<name>" under a snapshottable directory.
// Resolution never fails: missing components become null slots.
func resolve(root *namespace.Directory, components [][]byte) *INodesInPath {
	ip := &INodesInPath{
		components:        components,
		inodes:            make([]namespace.INode, len(components)+1),
		snapshotRootIndex: -1,
	}
	ip.inodes[0] = root

	var cur namespace.INode = root
	for i := 0; i < len(components); i++ {
		if cur == nil || !cur.IsDirectory() {
			break
		}
		dir := cur.AsDirectory()
		if !ip.isSnapshot && dir.IsSnapshottable() {
			ip.latest = namespace.Later(ip.latest, dir.LastSnapshot())
		}
		comp := components[i]
		if common.IsDotSnapshot(comp) && dir.IsSnapshottable() && !ip.isSnapshot {
			ip.isSnapshot = true
			if i == len(components)-1 {
				// the ".snapshot" pseudo directory has no inode of its own
				ip.dotSnapshotTail = true
				return ip
			}
			s := dir.Snapshot(string(components[i+1]))
			if s == nil {
				return ip
			}
			ip.pathSnapshot = s
			// the ".snapshot" slot stays null; the name slot holds the
			// snapshottable directory, entered in its frozen view
			ip.snapshotRootIndex = i + 2
			ip.inodes[i+2] = dir
			cur = dir
			i++
			continue
		}
		var child namespace.INode
		if ip.isSnapshot {
			child = dir.Child(comp, ip.pathSnapshot)
		} else {
			child = dir.Child(comp, nil)
		}
		if child == nil {
			break
		}
		ip.inodes[i+1] = child
		cur = child
	}
	// the deepest resolved inode counts toward the latest snapshot too:
	// mutations of its own attributes record against its own snapshots
	if !ip.isSnapshot {
		if last := ip.LastExisting(); last != nil && last.IsDirectory() && !last.IsReference() {
			if d := last.AsDirectory(); d.IsSnapshottable() {
				ip.latest = namespace.Later(ip.latest, d.LastSnapshot())
			}
		}
	}
	return ip
}
