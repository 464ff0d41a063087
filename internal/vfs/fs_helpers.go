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
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"snapfs/internal/common"
	"snapfs/internal/namespace"
)

// Mkdirs creates the directory at path along with every missing ancestor.
func (fs *FS) Mkdirs(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return err
	}
	latest := ip.EffectiveLatest()
	cur := fs.root
	for i := 0; i < len(ip.components); i++ {
		comp := ip.components[i]
		n := ip.INode(i + 1)
		if n != nil {
			if !n.IsDirectory() {
				return fmt.Errorf("%w: %s", common.ErrNotDir, common.JoinKeys(ip.components[:i+1]))
			}
			cur = n.AsDirectory()
			continue
		}
		if common.IsDotSnapshot(comp) {
			return fmt.Errorf("%w: %q", common.ErrReservedName, common.DotSnapshot)
		}
		child := namespace.NewDirectory(fs.allocInodeID(), comp, fs.opts.Owner, fs.opts.Group, 0755, fs.now())
		if err := fs.addChild(cur, child, latest); err != nil {
			return err
		}
		log.Debugf("[VFS] mkdir %q ino=%d", common.JoinKeys(ip.components[:i+1]), child.ID())
		cur = child
	}
	return nil
}

// Create makes a new file of the given length at path, assigning blocks and
// marking them in the block map.
func (fs *FS) Create(path string, size int64) (*Status, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return nil, err
	}
	if ip.LastINode() != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrExists, path)
	}
	parent, err := parentForCreate(ip, path)
	if err != nil {
		return nil, err
	}
	name := ip.LastComponent()
	if common.IsDotSnapshot(name) {
		return nil, fmt.Errorf("%w: %q", common.ErrReservedName, common.DotSnapshot)
	}
	latest := ip.EffectiveLatest()
	f := namespace.NewFile(fs.allocInodeID(), name, fs.opts.Owner, fs.opts.Group, 0644,
		fs.opts.DefaultReplication, fs.opts.DefaultBlockSize, fs.now())
	blocks := fs.assignBlocks(f, size)
	f.SetBlocks(blocks, size)
	if err := fs.addChild(parent, f, latest); err != nil {
		if fs.blockMap != nil {
			for _, b := range blocks {
				fs.blockMap.AddToDelete(b)
			}
		}
		return nil, err
	}
	log.Debugf("[VFS] create %q ino=%d size=%d blocks=%d", path, f.ID(), size, len(blocks))
	return statusOf(f, nil), nil
}

func (fs *FS) assignBlocks(f *namespace.File, size int64) []namespace.BlockID {
	if size <= 0 {
		return nil
	}
	n := (size + f.BlockSize() - 1) / f.BlockSize()
	blocks := make([]namespace.BlockID, 0, n)
	for i := int64(0); i < n; i++ {
		b := fs.allocBlockID()
		if fs.blockMap != nil {
			fs.blockMap.Mark(b, f)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// addChild records into the latest diff, inserts, and stamps the parent's
// modification time the way every namespace write does.
func (fs *FS) addChild(parent *namespace.Directory, child namespace.INode, latest *namespace.Snapshot) error {
	if err := parent.AddChild(child, latest); err != nil {
		return err
	}
	parent.RecordModification(latest)
	parent.SetModificationTime(fs.now())
	return nil
}

func parentForCreate(ip *INodesInPath, path string) (*namespace.Directory, error) {
	if ip.Len() < 2 {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidPath, path)
	}
	p := ip.INode(ip.Len() - 2)
	if p == nil {
		return nil, fmt.Errorf("%w: parent of %s", common.ErrNotFound, path)
	}
	if !p.IsDirectory() {
		return nil, fmt.Errorf("%w: parent of %s", common.ErrNotDir, path)
	}
	return p.AsDirectory(), nil
}

// Delete removes the inode at path (recursively for directories) and
// returns the blocks that became unreachable. A subtree that is, or
// contains, a snapshottable directory with snapshots cannot be deleted.
func (fs *FS) Delete(path string) (*namespace.BlocksMapUpdateInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return nil, err
	}
	target := ip.LastINode()
	if target == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	parent := ip.ParentDirectory()
	if parent == nil {
		return nil, fmt.Errorf("%w: cannot delete %s", common.ErrInvalidPath, path)
	}
	if err := checkSubtreeForSnapshots(target, common.NormalizePath(path)); err != nil {
		return nil, err
	}
	latest := ip.EffectiveLatestForParent()
	collected := &namespace.BlocksMapUpdateInfo{}
	if !parent.RemoveChild(target, latest) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	key := ip.LastComponent()
	switch {
	case latest == nil:
		target.DestroyAndCollectBlocks(collected)
	case parent.Child(key, latest) == nil:
		// created after the latest snapshot: no view retains it
		target.DestroyAndCollectBlocks(collected)
	case target.IsFile():
		f := target.AsFile()
		if f.WithSnapshot() {
			f.MarkCurrentDeleted()
		}
	}
	parent.RecordModification(latest)
	parent.SetModificationTime(fs.now())
	fs.queueBlockDeletions(collected)
	log.Debugf("[VFS] delete %q, %d blocks unreachable", path, len(collected.Blocks()))
	return collected, nil
}

// checkSubtreeForSnapshots refuses deletion of a subtree retaining
// snapshots; the error names the offending directory.
func checkSubtreeForSnapshots(n namespace.INode, path string) error {
	if !n.IsDirectory() || n.IsReference() {
		return nil
	}
	dir := n.AsDirectory()
	if dir.IsSnapshottable() && dir.NumSnapshots() > 0 {
		return fmt.Errorf("%w: /%s has %d snapshot(s)", common.ErrHasSnapshots, path, dir.NumSnapshots())
	}
	for _, c := range dir.Children(nil) {
		if err := checkSubtreeForSnapshots(c, path+"/"+string(c.LocalName())); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves src to dst. When the source is still visible in a snapshot
// the inode is wrapped in reference nodes so both the frozen source path
// and the live destination path keep resolving to it.
func (fs *FS) Rename(src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	srcIP, err := fs.resolveForWrite(src)
	if err != nil {
		return err
	}
	dstIP, err := fs.resolveForWrite(dst)
	if err != nil {
		return err
	}
	srcNode := srcIP.LastINode()
	if srcNode == nil {
		return fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	srcParent := srcIP.ParentDirectory()
	if srcParent == nil {
		return fmt.Errorf("%w: cannot rename %s", common.ErrInvalidPath, src)
	}
	if dstIP.LastINode() != nil {
		return fmt.Errorf("%w: %s", common.ErrExists, dst)
	}
	dstParent, err := parentForCreate(dstIP, dst)
	if err != nil {
		return err
	}
	srcPath := common.NormalizePath(src)
	dstPath := common.NormalizePath(dst)
	if srcPath == dstPath || strings.HasPrefix(dstPath+"/", srcPath+"/") {
		return fmt.Errorf("%w: rename %s to %s", common.ErrInvalidPath, src, dst)
	}
	dstKey := dstIP.LastComponent()
	if common.IsDotSnapshot(dstKey) {
		return fmt.Errorf("%w: %q", common.ErrReservedName, common.DotSnapshot)
	}
	if srcNode.IsDirectory() && srcNode.AsDirectory().IsSnapshottable() && srcNode.AsDirectory().NumSnapshots() > 0 {
		return fmt.Errorf("%w: %s", common.ErrHasSnapshots, src)
	}

	srcLatest := srcIP.EffectiveLatestForParent()
	dstLatest := dstIP.EffectiveLatestForParent()
	srcKey := srcIP.LastComponent()

	// the source needs reference nodes iff a snapshot still shows it
	inSnapshot := srcLatest != nil && srcParent.Child(srcKey, srcLatest) != nil

	if !inSnapshot {
		if !srcParent.RemoveChild(srcNode, srcLatest) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, src)
		}
		srcNode.SetLocalName(dstKey)
		if err := fs.addChild(dstParent, srcNode, dstLatest); err != nil {
			srcNode.SetLocalName(srcKey)
			_ = srcParent.AddChild(srcNode, srcLatest)
			return err
		}
		srcParent.RecordModification(srcLatest)
		srcParent.SetModificationTime(fs.now())
		log.Debugf("[VFS] rename %q -> %q (plain)", src, dst)
		return nil
	}

	var wc *namespace.WithCount
	var oldRef namespace.Reference
	if srcNode.IsReference() {
		oldRef = srcNode.AsReference()
		var ok bool
		wc, ok = oldRef.Referred().(*namespace.WithCount)
		if !ok {
			panic(fmt.Sprintf("reference invariant violated: inode %d does not point at a WithCount", srcNode.ID()))
		}
	} else {
		wc = namespace.NewWithCount(fs.allocInodeID(), srcNode)
	}
	wn := namespace.NewWithName(fs.allocInodeID(), srcKey, wc, srcParent, srcLatest)
	removed, undo := srcParent.ReplaceChildForRename(srcNode, wn, srcLatest)
	if !removed {
		namespace.RemoveReference(wn)
		return fmt.Errorf("%w: %s", common.ErrNotFound, src)
	}
	if !undo.InsertedDeleted() {
		// the diff already captured a pre-rename copy under this key; the
		// frozen name needs no second anchor
		namespace.RemoveReference(wn)
	}
	wc.SetLocalName(dstKey)
	dr := namespace.NewDstReference(fs.allocInodeID(), wc, namespace.SnapshotID(dstLatest))
	if err := fs.addChild(dstParent, dr, dstLatest); err != nil {
		namespace.RemoveReference(dr)
		wc.SetLocalName(srcKey)
		srcParent.UndoRenameReplace(srcNode, wn, srcLatest, undo)
		if undo.InsertedDeleted() {
			namespace.RemoveReference(wn)
		}
		return err
	}
	if oldRef != nil {
		namespace.RemoveReference(oldRef)
	}
	srcParent.RecordModification(srcLatest)
	srcParent.SetModificationTime(fs.now())
	log.Debugf("[VFS] rename %q -> %q via references (count=%d)", src, dst, wc.ReferenceCount())
	return nil
}

// SetTimes updates modification/access time; nil leaves a field untouched.
func (fs *FS) SetTimes(path string, mtime, atime *time.Time) error {
	return fs.mutateAttrs(path, func(n namespace.INode) {
		if mtime != nil {
			n.SetModificationTime(*mtime)
		}
		if atime != nil {
			n.SetAccessTime(*atime)
		}
	})
}

// SetPermission updates the permission triple; empty/zero fields stand.
func (fs *FS) SetPermission(path, owner, group string, mode *uint16) error {
	return fs.mutateAttrs(path, func(n namespace.INode) {
		if owner != "" {
			n.SetOwner(owner)
		}
		if group != "" {
			n.SetGroup(group)
		}
		if mode != nil {
			n.SetMode(*mode)
		}
	})
}

// SetReplication changes a file's replication factor.
func (fs *FS) SetReplication(path string, replication uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return err
	}
	n := ip.LastINode()
	if n == nil {
		return fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if !n.IsFile() {
		return fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	fs.captureFile(ip, n)
	n.AsFile().SetReplication(replication)
	return nil
}

// mutateAttrs records the pre-state into the effective latest snapshot and
// then applies the mutation.
func (fs *FS) mutateAttrs(path string, mutate func(namespace.INode)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return err
	}
	n := ip.LastINode()
	if n == nil {
		return fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if n.IsFile() {
		fs.captureFile(ip, n)
	} else {
		n.RecordModification(ip.EffectiveLatest())
	}
	mutate(n)
	return nil
}

// captureFile saves a file's pre-modification state. A file reached through
// a reference records into its own diff list (the snapshot view of the old
// path bypasses the destination parent's diff); otherwise the parent
// directory converts or forwards as needed.
func (fs *FS) captureFile(ip *INodesInPath, n namespace.INode) {
	latest := ip.EffectiveLatest()
	if latest == nil {
		return
	}
	f := n.AsFile()
	if n.IsReference() || f.ParentReference() != nil {
		f.SaveSelf2Snapshot(latest)
		return
	}
	if parent := ip.ParentDirectory(); parent != nil {
		parent.SaveChild2Snapshot(n, latest)
		return
	}
	f.SaveSelf2Snapshot(latest)
}

// SetQuota installs namespace/diskspace caps on a directory.
func (fs *FS) SetQuota(path string, nsQuota, dsQuota int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return err
	}
	dir.SetQuota(nsQuota, dsQuota)
	return nil
}

// Truncate shortens a file to newSize, releasing whole blocks past the new
// end unless a snapshot still holds them.
func (fs *FS) Truncate(path string, newSize int64) (*namespace.BlocksMapUpdateInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return nil, err
	}
	n := ip.LastINode()
	if n == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if !n.IsFile() {
		return nil, fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	f := n.AsFile()
	if newSize < 0 || newSize > f.ComputeFileSize(nil) {
		return nil, fmt.Errorf("%w: truncate %s to %d", common.ErrInvalidPath, path, newSize)
	}
	fs.captureFile(ip, n)
	collected := &namespace.BlocksMapUpdateInfo{}
	f.TruncateBlocks(newSize, collected)
	f.SetModificationTime(fs.now())
	fs.queueBlockDeletions(collected)
	return collected, nil
}
