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
	"sort"

	"snapfs/internal/common"
)

// ChildrenDiff is the difference between two consecutive states of a keyed,
// byte-lexicographically sorted children list:
//
//   - created holds entries present in the posterior state only;
//   - deleted holds entries present in the prior state only, or the
//     pre-state copy of an entry that was modified in between (a key in
//     deleted whose posterior list still contains the key reads as modify).
//
// A key appears in at most one of the two lists. Both lists stay sorted.
type ChildrenDiff struct {
	created []INode
	deleted []INode
}

// Access is the tri-valued answer of AccessPrevious.
type Access int

const (
	// AccessUnknown: the key did not change across this diff; the caller
	// must consult the posterior state.
	AccessUnknown Access = iota
	// AccessExists: the prior state held the returned element.
	AccessExists
	// AccessAbsent: the key did not exist in the prior state.
	AccessAbsent
)

// searchKey locates key in a sorted inode list. Returns the index and true
// on a hit, or the insertion position and false.
func searchKey(list []INode, key []byte) (int, bool) {
	i := sort.Search(len(list), func(i int) bool {
		return common.CompareKeys(list[i].LocalName(), key) >= 0
	})
	if i < len(list) && common.CompareKeys(list[i].LocalName(), key) == 0 {
		return i, true
	}
	return i, false
}

func insertAt(list []INode, i int, n INode) []INode {
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}

func removeAt(list []INode, i int) []INode {
	copy(list[i:], list[i+1:])
	return list[:len(list)-1]
}

// CreateUndo reverses a Create when the mutation on the live tree fails.
type CreateUndo struct {
	inserted bool
	restored INode // element removed from deleted (restoration), if any
}

// DeleteUndo reverses a Delete. Trashed is the element that had been created
// inside this same diff and is now unreachable through it; cleanup of the
// trashed element must only run after the live removal succeeded.
type DeleteUndo struct {
	insertedDeleted bool
	Trashed         INode
}

// InsertedDeleted reports whether Delete put the element into the deleted
// list (as opposed to trashing a same-diff create or standing pat on an
// earlier modify).
func (u DeleteUndo) InsertedDeleted() bool { return u.insertedDeleted }

// Create records that n was added in the posterior state.
//
// If the same element was deleted earlier inside this diff, the pair cancels
// out (restoration). A different element under a previously deleted key is a
// net modify: the pre-state stays in deleted and created is left untouched,
// since the new value is observable in the posterior list itself.
func (d *ChildrenDiff) Create(n INode) CreateUndo {
	key := n.LocalName()
	if i, ok := searchKey(d.deleted, key); ok {
		if d.deleted[i] == n {
			restored := d.deleted[i]
			d.deleted = removeAt(d.deleted, i)
			return CreateUndo{restored: restored}
		}
		return CreateUndo{}
	}
	i, ok := searchKey(d.created, key)
	if ok {
		panic(fmt.Sprintf("diff invariant violated: key %q created twice", key))
	}
	d.created = insertAt(d.created, i, n)
	return CreateUndo{inserted: true}
}

// UndoCreate exactly reverses Create.
func (d *ChildrenDiff) UndoCreate(n INode, u CreateUndo) {
	if u.inserted {
		if i, ok := searchKey(d.created, n.LocalName()); ok {
			d.created = removeAt(d.created, i)
		}
	}
	if u.restored != nil {
		i, _ := searchKey(d.deleted, u.restored.LocalName())
		d.deleted = insertAt(d.deleted, i, u.restored)
	}
}

// Delete records that current, the posterior-state element under its key,
// was removed. A key already carried in deleted (a modify recorded earlier
// in this diff) keeps its older pre-state copy.
func (d *ChildrenDiff) Delete(current INode) DeleteUndo {
	key := current.LocalName()
	if i, ok := searchKey(d.created, key); ok {
		trashed := d.created[i]
		d.created = removeAt(d.created, i)
		return DeleteUndo{Trashed: trashed}
	}
	if _, ok := searchKey(d.deleted, key); ok {
		// pre-state already captured; the posterior element just disappears
		return DeleteUndo{}
	}
	i, _ := searchKey(d.deleted, key)
	d.deleted = insertAt(d.deleted, i, current)
	return DeleteUndo{insertedDeleted: true}
}

// UndoDelete exactly reverses Delete.
func (d *ChildrenDiff) UndoDelete(current INode, u DeleteUndo) {
	if u.insertedDeleted {
		if i, ok := searchKey(d.deleted, current.LocalName()); ok {
			d.deleted = removeAt(d.deleted, i)
		}
	}
	if u.Trashed != nil {
		i, _ := searchKey(d.created, u.Trashed.LocalName())
		d.created = insertAt(d.created, i, u.Trashed)
	}
}

// Modify records that the element under old's key was replaced. Only the
// first pre-state per diff is kept; created is never touched.
func (d *ChildrenDiff) Modify(old INode) {
	key := old.LocalName()
	if _, ok := searchKey(d.created, key); ok {
		// the element was created inside this diff; the prior state has no
		// entry for the key
		return
	}
	if _, ok := searchKey(d.deleted, key); ok {
		return
	}
	i, _ := searchKey(d.deleted, key)
	d.deleted = insertAt(d.deleted, i, old)
}

// AccessPrevious answers what the prior state held for key.
func (d *ChildrenDiff) AccessPrevious(key []byte) (INode, Access) {
	if i, ok := searchKey(d.deleted, key); ok {
		return d.deleted[i], AccessExists
	}
	if _, ok := searchKey(d.created, key); ok {
		return nil, AccessAbsent
	}
	return nil, AccessUnknown
}

// CombinePosterior folds next (the later diff) into d so that d afterwards
// represents the change from d's prior state to next's posterior state.
// Elements that existed only inside the combined span are handed to process
// so their resources can be reclaimed.
func (d *ChildrenDiff) CombinePosterior(next *ChildrenDiff, process func(INode)) {
	for _, c := range next.created {
		key := c.LocalName()
		if _, ok := searchKey(d.created, key); ok {
			panic(fmt.Sprintf("diff invariant violated: key %q created in both diffs", key))
		}
		if _, ok := searchKey(d.deleted, key); ok {
			// deleted here, re-created later: net modify; the pre-state in
			// d.deleted stands, the new value lives in the posterior list
			continue
		}
		i, _ := searchKey(d.created, key)
		d.created = insertAt(d.created, i, c)
	}
	for _, r := range next.deleted {
		key := r.LocalName()
		if i, ok := searchKey(d.created, key); ok {
			// created here, gone by the end of next: existed only in between
			trashed := d.created[i]
			d.created = removeAt(d.created, i)
			if process != nil {
				if trashed != r {
					process(r)
				}
				process(trashed)
			}
			continue
		}
		if _, ok := searchKey(d.deleted, key); ok {
			// both diffs captured a pre-state for the key; the older one in
			// d stands, the newer copy existed only inside the span
			if process != nil {
				process(r)
			}
			continue
		}
		i, _ := searchKey(d.deleted, key)
		d.deleted = insertAt(d.deleted, i, r)
	}
}

// Apply2Current derives the prior-state list from a posterior-state list:
// created entries are dropped, deleted entries are merged in, and on a key
// collision the deleted (pre-state) copy wins.
func (d *ChildrenDiff) Apply2Current(current []INode) []INode {
	out := make([]INode, 0, len(current)+len(d.deleted))
	di := 0
	for _, c := range current {
		key := c.LocalName()
		for di < len(d.deleted) && common.CompareKeys(d.deleted[di].LocalName(), key) < 0 {
			out = append(out, d.deleted[di])
			di++
		}
		if di < len(d.deleted) && common.CompareKeys(d.deleted[di].LocalName(), key) == 0 {
			out = append(out, d.deleted[di])
			di++
			continue
		}
		if _, ok := searchKey(d.created, key); ok {
			continue
		}
		out = append(out, c)
	}
	for ; di < len(d.deleted); di++ {
		out = append(out, d.deleted[di])
	}
	return out
}

// CreatedList and DeletedList expose read-only views for tests and dumps.
func (d *ChildrenDiff) CreatedList() []INode { return d.created }
func (d *ChildrenDiff) DeletedList() []INode { return d.deleted }

func (d *ChildrenDiff) isEmpty() bool {
	return len(d.created) == 0 && len(d.deleted) == 0
}
