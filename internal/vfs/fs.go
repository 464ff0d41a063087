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
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"snapfs/internal/common"
	"snapfs/internal/namespace"
)

// Options configure a namespace instance.
type Options struct {
	Owner              string
	Group              string
	DefaultReplication uint16
	DefaultBlockSize   int64
}

func (o *Options) applyDefaults() {
	if o.Owner == "" {
		o.Owner = "snapfs"
	}
	if o.Group == "" {
		o.Group = "supergroup"
	}
	if o.DefaultReplication == 0 {
		o.DefaultReplication = 3
	}
	if o.DefaultBlockSize == 0 {
		o.DefaultBlockSize = 64 * 1024 * 1024
	}
}

// FS is the in-memory namespace with snapshot support. One logical writer
// at a time; reads run in parallel with other reads. All operations are
// synchronous and atomic per top-level call.
type FS struct {
	mu   sync.RWMutex
	id   uuid.UUID
	root *namespace.Directory

	blockMap namespace.BlockMap
	opts     Options

	nextInodeID    int64
	nextSnapshotID int
	nextBlockID    int64

	snapshottables []*namespace.Directory

	now func() time.Time
}

// New builds an empty namespace wired to the given block map.
func New(blockMap namespace.BlockMap, opts Options) *FS {
	opts.applyDefaults()
	fs := &FS{
		id:       uuid.New(),
		blockMap: blockMap,
		opts:     opts,
		now:      time.Now,
	}
	fs.root = namespace.NewDirectory(fs.allocInodeID(), nil, opts.Owner, opts.Group, 0755, fs.now())
	log.Debugf("[VFS] new namespace %s", fs.id)
	return fs
}

// ID is the namespace instance identity.
func (fs *FS) ID() uuid.UUID { return fs.id }

// Root exposes the root directory for tests and the tree dump.
func (fs *FS) Root() *namespace.Directory { return fs.root }

// SetClock overrides the time source (tests).
func (fs *FS) SetClock(now func() time.Time) { fs.now = now }

func (fs *FS) allocInodeID() int64 {
	fs.nextInodeID++
	return fs.nextInodeID
}

func (fs *FS) allocBlockID() namespace.BlockID {
	fs.nextBlockID++
	return namespace.BlockID(fs.nextBlockID)
}

// Lookup resolves a path. It never fails: missing components become null
// slots in the returned record.
func (fs *FS) Lookup(path string) *INodesInPath {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return resolve(fs.root, common.PathKeys(path))
}

func (fs *FS) lookupLocked(path string) *INodesInPath {
	return resolve(fs.root, common.PathKeys(path))
}

// resolveForWrite resolves a path for mutation, rejecting snapshot paths.
func (fs *FS) resolveForWrite(path string) (*INodesInPath, error) {
	ip := fs.lookupLocked(path)
	if ip.IsSnapshot() {
		return nil, fmt.Errorf("%w: %s", common.ErrReadOnlySnapshot, path)
	}
	return ip, nil
}

// Stat returns the attributes of the inode at path, through snapshot views
// when the path crosses ".snapshot/<name>".
func (fs *FS) Stat(path string) (*Status, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	ip := fs.lookupLocked(path)
	n := ip.LastINode()
	if n == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	return statusOf(n, ip.PathSnapshot()), nil
}

// List returns the entries under path. Listing a raw ".snapshot" returns
// the snapshot names of the preceding snapshottable directory.
func (fs *FS) List(path string) ([]*Status, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	ip := fs.lookupLocked(path)
	if ip.IsDotSnapshotTail() {
		dir := ip.LastExisting().AsDirectory()
		out := make([]*Status, 0, dir.NumSnapshots())
		for _, s := range dir.Snapshots() {
			out = append(out, &Status{Name: s.Name(), IsDir: true, Mtime: s.CreatedAt()})
		}
		return out, nil
	}
	n := ip.LastINode()
	if n == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if !n.IsDirectory() {
		return []*Status{statusOf(n, ip.PathSnapshot())}, nil
	}
	children := n.AsDirectory().Children(ip.PathSnapshot())
	out := make([]*Status, 0, len(children))
	for _, c := range children {
		out = append(out, statusOf(c, ip.PathSnapshot()))
	}
	return out, nil
}

// FileSize returns the file length as seen through path.
func (fs *FS) FileSize(path string) (int64, error) {
	st, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	if st.IsDir {
		return 0, fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	return st.Size, nil
}

// --- snapshot administration ---

// AllowSnapshot permits snapshots on the directory at path.
func (fs *FS) AllowSnapshot(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return err
	}
	if dir.IsSnapshottable() {
		return nil
	}
	dir.AllowSnapshot()
	fs.snapshottables = append(fs.snapshottables, dir)
	log.Infof("[Snapshot] allowed snapshots on %q", path)
	return nil
}

// DisallowSnapshot reverts AllowSnapshot; fails while snapshots exist.
func (fs *FS) DisallowSnapshot(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return err
	}
	if err := dir.DisallowSnapshot(); err != nil {
		return err
	}
	for i, d := range fs.snapshottables {
		if d == dir {
			fs.snapshottables = append(fs.snapshottables[:i], fs.snapshottables[i+1:]...)
			break
		}
	}
	log.Infof("[Snapshot] disallowed snapshots on %q", path)
	return nil
}

// CreateSnapshot takes a named snapshot of the directory at path.
func (fs *FS) CreateSnapshot(path, name string) (*SnapshotInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return nil, err
	}
	if name == "" || common.IsDotSnapshot([]byte(name)) {
		return nil, fmt.Errorf("%w: %q", common.ErrReservedName, name)
	}
	s, err := dir.AddSnapshot(fs.nextSnapshotID, name, fs.now())
	if err != nil {
		return nil, err
	}
	fs.nextSnapshotID++
	log.Infof("[Snapshot] created %s on %q", s, path)
	return &SnapshotInfo{ID: s.ID(), Name: s.Name(), CreatedAt: s.CreatedAt()}, nil
}

// DeleteSnapshot removes the named snapshot and returns the blocks that
// became unreachable. The victim diff is combined into its predecessor in
// every directory of the subtree.
func (fs *FS) DeleteSnapshot(path, name string) (*namespace.BlocksMapUpdateInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return nil, err
	}
	s := dir.Snapshot(name)
	if s == nil {
		return nil, fmt.Errorf("%w: snapshot %q on %s", common.ErrNotFound, name, path)
	}
	collected := &namespace.BlocksMapUpdateInfo{}
	namespace.CleanSnapshot(dir, s, collected)
	dir.RemoveSnapshotHandle(s)
	fs.queueBlockDeletions(collected)
	log.Infof("[Snapshot] deleted %s on %q, %d blocks unreachable", s, path, len(collected.Blocks()))
	return collected, nil
}

// RenameSnapshot renames a snapshot in place.
func (fs *FS) RenameSnapshot(path, oldName, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, err := fs.writableDirectory(path)
	if err != nil {
		return err
	}
	if newName == "" || common.IsDotSnapshot([]byte(newName)) {
		return fmt.Errorf("%w: %q", common.ErrReservedName, newName)
	}
	return dir.RenameSnapshot(oldName, newName)
}

// ListSnapshots lists the snapshots of the directory at path.
func (fs *FS) ListSnapshots(path string) ([]*SnapshotInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	ip := fs.lookupLocked(path)
	n := ip.LastExisting()
	if ip.LastINode() == nil && !ip.IsDotSnapshotTail() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if n == nil || !n.IsDirectory() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	}
	dir := n.AsDirectory()
	if !dir.IsSnapshottable() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotSnapshottable, path)
	}
	out := make([]*SnapshotInfo, 0, dir.NumSnapshots())
	for _, s := range dir.Snapshots() {
		out = append(out, &SnapshotInfo{ID: s.ID(), Name: s.Name(), CreatedAt: s.CreatedAt()})
	}
	return out, nil
}

// ListSnapshottable returns the paths of every snapshottable directory.
func (fs *FS) ListSnapshottable() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, 0, len(fs.snapshottables))
	for _, d := range fs.snapshottables {
		out = append(out, inodePath(d))
	}
	return out
}

// queueBlockDeletions hands the collected blocks to the external block map.
func (fs *FS) queueBlockDeletions(collected *namespace.BlocksMapUpdateInfo) {
	if fs.blockMap == nil {
		return
	}
	for _, b := range collected.Blocks() {
		fs.blockMap.AddToDelete(b)
	}
}

// writableDirectory resolves path to an existing live directory.
func (fs *FS) writableDirectory(path string) (*namespace.Directory, error) {
	ip, err := fs.resolveForWrite(path)
	if err != nil {
		return nil, err
	}
	n := ip.LastINode()
	if n == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}
	if !n.IsDirectory() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	}
	return n.AsDirectory(), nil
}

// inodePath renders the live path of an inode by walking the parent chain.
func inodePath(n namespace.INode) string {
	var parts []string
	for cur := n; cur != nil; {
		name := cur.LocalName()
		p := cur.Parent()
		if p == nil {
			break
		}
		parts = append([]string{string(name)}, parts...)
		cur = p
	}
	return "/" + strings.Join(parts, "/")
}
