package vfs

import (
	"time"

	"snapfs/internal/namespace"
)

// Status is the read-only attribute view of one resolved inode.
type Status struct {
	Name        string
	ID          int64
	IsDir       bool
	IsReference bool
	Size        int64
	Mode        uint16
	Owner       string
	Group       string
	Mtime       time.Time
	Atime       time.Time
	Replication uint16
	BlockSize   int64
	Blocks      []namespace.BlockID
}

// SnapshotInfo describes one snapshot of a snapshottable directory.
type SnapshotInfo struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// statusOf renders n as seen by snapshot s (nil for the live state).
func statusOf(n namespace.INode, s *namespace.Snapshot) *Status {
	st := &Status{
		Name:        string(n.LocalName()),
		ID:          n.ID(),
		IsDir:       n.IsDirectory(),
		IsReference: n.IsReference(),
		Mode:        n.Mode(s),
		Owner:       n.Owner(s),
		Group:       n.Group(s),
		Mtime:       n.ModificationTime(s),
		Atime:       n.AccessTime(s),
	}
	if n.IsFile() {
		f := n.AsFile()
		st.Size = f.ComputeFileSize(s)
		st.Replication = f.Replication()
		st.BlockSize = f.BlockSize()
		st.Blocks = f.BlocksAt(s)
	}
	return st
}
