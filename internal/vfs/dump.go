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
	"fmt"
	"io"

	"snapfs/internal/namespace"
)

// DumpTree renders the live tree with reference and snapshot annotations,
// one line per inode.
func (fs *FS) DumpTree(w io.Writer) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	fmt.Fprintf(w, "/ ino=%d\n", fs.root.ID())
	dumpChildren(w, fs.root, "")
}

func dumpChildren(w io.Writer, dir *namespace.Directory, prefix string) {
	children := dir.Children(nil)
	for i, c := range children {
		connector := "+-"
		childPrefix := prefix + "| "
		if i == len(children)-1 {
			childPrefix = prefix + "  "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, describe(c))
		if c.IsDirectory() && !c.IsReference() {
			dumpChildren(w, c.AsDirectory(), childPrefix)
		}
	}
	if dir.IsSnapshottable() {
		for _, s := range dir.Snapshots() {
			fmt.Fprintf(w, "%s+-.snapshot/%s (id=%d)\n", prefix, s.Name(), s.ID())
		}
	}
}

func describe(n namespace.INode) string {
	switch {
	case n.IsReference():
		ref := n.AsReference()
		tag := fmt.Sprintf("ref ino=%d", n.ID())
		if dr, ok := ref.(*namespace.DstReference); ok {
			tag += fmt.Sprintf(" dstSnapshotId=%d", dr.DstSnapshotID())
		}
		if wc, ok := ref.Referred().(*namespace.WithCount); ok {
			tag += fmt.Sprintf(" count=%d", wc.ReferenceCount())
		}
		return fmt.Sprintf("%s [%s -> ino=%d]", n.LocalName(), tag, refTarget(ref).ID())
	case n.IsDirectory():
		d := n.AsDirectory()
		tag := fmt.Sprintf("%s/ ino=%d", n.LocalName(), n.ID())
		if d.IsSnapshottable() {
			tag += fmt.Sprintf(" snapshottable(%d)", d.NumSnapshots())
		}
		if diffs := d.Diffs(); diffs != nil && diffs.Len() > 0 {
			tag += fmt.Sprintf(" diffs=%d", diffs.Len())
		}
		return tag
	default:
		f := n.AsFile()
		tag := fmt.Sprintf("%s ino=%d size=%d blocks=%v", n.LocalName(), n.ID(), f.ComputeFileSize(nil), f.Blocks())
		if f.WithSnapshot() {
			tag += " withSnapshot"
		}
		if f.IsCurrentDeleted() {
			tag += " (DELETED)"
		}
		return tag
	}
}

func refTarget(ref namespace.Reference) namespace.INode {
	cur := ref.Referred()
	for cur.IsReference() {
		cur = cur.AsReference().Referred()
	}
	return cur
}
