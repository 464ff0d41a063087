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

import log "github.com/sirupsen/logrus"

// CleanSnapshot removes snapshot s from the subtree rooted at d: every
// directory's diff for s is combined into its predecessor (or, for the
// oldest diff, its retained inodes are destroyed), every file drops its
// version for s, and blocks that became unreachable are appended to
// collected. Order is depth-first, children before parent.
func CleanSnapshot(d *Directory, s *Snapshot, collected *BlocksMapUpdateInfo) {
	children := d.Children(s)
	for _, c := range children {
		switch {
		case c.IsReference():
			// the referred subtree stays reachable through the reference;
			// its own snapshots are cleaned when the reference dies
		case c.IsDirectory():
			CleanSnapshot(c.AsDirectory(), s, collected)
		case c.IsFile():
			f := c.AsFile()
			if diffs := f.Diffs(); diffs != nil {
				diffs.DeleteSnapshotDiff(s, f, collected)
			}
		}
	}
	if d.diffs == nil {
		return
	}
	removed, wasFirst := d.diffs.DeleteSnapshotDiff(s, func(n INode) {
		n.DestroyAndCollectBlocks(collected)
	})
	if removed == nil {
		return
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("[Snapshot] combined diff of %s on %q (first=%v)", s, d.LocalName(), wasFirst)
	}
	if wasFirst {
		// nothing older retains these; created entries stay live
		for _, r := range removed.diff.DeletedList() {
			r.DestroyAndCollectBlocks(collected)
		}
	}
	if d.diffs.Len() == 0 && !d.IsSnapshottable() {
		d.diffs = nil
	}
}
