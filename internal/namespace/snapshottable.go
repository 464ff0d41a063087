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

// SnapshottableState is attached to a directory allowed to host snapshots:
// the named handles in creation order plus the name index.
type SnapshottableState struct {
	snapshots []*Snapshot
	byName    map[string]*Snapshot
}

// IsSnapshottable reports whether snapshots may be taken on this directory.
func (d *Directory) IsSnapshottable() bool { return d.snapshottable != nil }

// AllowSnapshot converts the directory into a snapshottable one. Identity,
// attributes and children are unchanged.
func (d *Directory) AllowSnapshot() {
	if d.snapshottable == nil {
		d.snapshottable = &SnapshottableState{byName: make(map[string]*Snapshot)}
	}
}

// DisallowSnapshot reverts AllowSnapshot; refused while snapshots exist.
func (d *Directory) DisallowSnapshot() error {
	if d.snapshottable == nil {
		return nil
	}
	if len(d.snapshottable.snapshots) > 0 {
		return fmt.Errorf("%w: %q", common.ErrHasSnapshots, d.LocalName())
	}
	d.snapshottable = nil
	return nil
}

// AddSnapshot takes a snapshot under the given name. The id comes from the
// namespace-wide counter so snapshots across directories stay totally
// ordered. The returned handle's root is a frozen shallow copy of this
// directory named after the snapshot.
func (d *Directory) AddSnapshot(id int, name string, now time.Time) (*Snapshot, error) {
	st := d.snapshottable
	if st == nil {
		return nil, fmt.Errorf("%w: %q", common.ErrNotSnapshottable, d.LocalName())
	}
	if _, ok := st.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", common.ErrSnapshotExists, name)
	}
	root := d.snapshotCopy()
	root.name = []byte(name)
	s := newSnapshot(id, name, root, now)
	st.snapshots = append(st.snapshots, s)
	st.byName[name] = s
	d.AddSnapshotDiff(s, true)
	return s, nil
}

// RenameSnapshot renames a snapshot handle; the id is untouched.
func (d *Directory) RenameSnapshot(oldName, newName string) error {
	st := d.snapshottable
	if st == nil {
		return fmt.Errorf("%w: %q", common.ErrNotSnapshottable, d.LocalName())
	}
	s, ok := st.byName[oldName]
	if !ok {
		return fmt.Errorf("%w: snapshot %q", common.ErrNotFound, oldName)
	}
	if _, ok := st.byName[newName]; ok {
		return fmt.Errorf("%w: %q", common.ErrSnapshotExists, newName)
	}
	delete(st.byName, oldName)
	s.name = newName
	s.root.name = []byte(newName)
	st.byName[newName] = s
	return nil
}

// Snapshot resolves a snapshot handle by name.
func (d *Directory) Snapshot(name string) *Snapshot {
	if d.snapshottable == nil {
		return nil
	}
	return d.snapshottable.byName[name]
}

// Snapshots lists the handles in creation order.
func (d *Directory) Snapshots() []*Snapshot {
	if d.snapshottable == nil {
		return nil
	}
	return d.snapshottable.snapshots
}

// NumSnapshots is the number of retained snapshots.
func (d *Directory) NumSnapshots() int {
	if d.snapshottable == nil {
		return 0
	}
	return len(d.snapshottable.snapshots)
}

// LastSnapshot is the most recently created snapshot on this directory.
func (d *Directory) LastSnapshot() *Snapshot {
	if d.snapshottable == nil || len(d.snapshottable.snapshots) == 0 {
		return nil
	}
	return d.snapshottable.snapshots[len(d.snapshottable.snapshots)-1]
}

// RemoveSnapshotHandle drops the handle after its diff state was cleaned.
func (d *Directory) RemoveSnapshotHandle(s *Snapshot) {
	st := d.snapshottable
	if st == nil {
		return
	}
	delete(st.byName, s.name)
	for i, c := range st.snapshots {
		if c == s {
			st.snapshots = append(st.snapshots[:i], st.snapshots[i+1:]...)
			break
		}
	}
}
