package vfs

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"snapfs/internal/blockmap"
	"snapfs/internal/common"
	"snapfs/internal/namespace"
)

// End-to-end scenarios over the public namespace operations, driving the
// whole engine: resolver, diff lists, reference nodes, block collection.

func scenarioFS(g *WithT) (*FS, *blockmap.Map) {
	blocks := blockmap.New()
	fs := New(blocks, Options{DefaultBlockSize: 1024, DefaultReplication: 1})
	g.Expect(fs.Mkdirs("/a")).To(Succeed())
	g.Expect(fs.Mkdirs("/b")).To(Succeed())
	return fs, blocks
}

func TestScenarioSnapshotAfterCreateThenDelete(t *testing.T) {
	g := NewWithT(t)
	fs, blocks := scenarioFS(g)

	_, err := fs.Create("/a/f1", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	heldBefore := blocks.Held()
	g.Expect(heldBefore).To(HaveLen(1))

	collected, err := fs.Delete("/a/f1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(collected.Blocks()).To(BeEmpty())

	// live path is gone, the snapshot still shows the file
	g.Expect(fs.Lookup("/a/f1").LastINode()).To(BeNil())
	st, err := fs.Stat("/a/.snapshot/s0/f1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(st.Size).To(Equal(int64(1024)))

	// the block map still holds f1's blocks
	g.Expect(blocks.Held()).To(Equal(heldBefore))

	// deleting the snapshot finally releases them
	collected, err = fs.DeleteSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(collected.Blocks()).To(HaveLen(1))
	g.Expect(blocks.Held()).To(BeEmpty())
	g.Expect(blocks.Drain()).To(HaveLen(1))
}

func TestScenarioSnapshotThenModify(t *testing.T) {
	g := NewWithT(t)
	fs, _ := scenarioFS(g)

	_, err := fs.Create("/a/f1", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	orig, err := fs.Stat("/a/f1")
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	tNew := time.Unix(9000, 0)
	g.Expect(fs.SetTimes("/a/f1", &tNew, nil)).To(Succeed())

	live, err := fs.Stat("/a/f1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(live.Mtime).To(Equal(tNew))

	snap, err := fs.Stat("/a/.snapshot/s0/f1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(snap.Mtime).To(Equal(orig.Mtime))

	// the live file became a file-with-snapshots node
	f := fs.Lookup("/a/f1").LastINode().AsFile()
	g.Expect(f.WithSnapshot()).To(BeTrue())
}

func TestScenarioRenameIntoSnapshot(t *testing.T) {
	g := NewWithT(t)
	fs, _ := scenarioFS(g)

	_, err := fs.Create("/a/x", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	origID := mustStat(g, fs, "/a/x").ID

	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(fs.Rename("/a/x", "/b/y")).To(Succeed())

	// both access paths resolve to the same inode
	g.Expect(mustStat(g, fs, "/a/.snapshot/s0/x").ID).To(Equal(origID))
	g.Expect(mustStat(g, fs, "/b/y").ID).To(Equal(origID))

	// two references point at one WithCount
	y := fs.Lookup("/b/y").LastINode()
	g.Expect(y.IsReference()).To(BeTrue())
	wc := y.AsReference().Referred().(*namespace.WithCount)
	g.Expect(wc.ReferenceCount()).To(Equal(2))

	// getParent answers from the current state
	underlying := wc.Referred()
	g.Expect(underlying.Parent()).NotTo(BeNil())
	g.Expect(string(underlying.Parent().LocalName())).To(Equal("b"))
}

func TestScenarioDeleteSnapshotAfterRename(t *testing.T) {
	g := NewWithT(t)
	fs, blocks := scenarioFS(g)

	_, err := fs.Create("/a/x", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	origID := mustStat(g, fs, "/a/x").ID
	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fs.Rename("/a/x", "/b/y")).To(Succeed())

	_, err = fs.DeleteSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	// the frozen source path is gone, the live destination survives
	_, err = fs.Stat("/a/.snapshot/s0/x")
	g.Expect(err).To(MatchError(common.ErrNotFound))
	g.Expect(mustStat(g, fs, "/b/y").ID).To(Equal(origID))

	y := fs.Lookup("/b/y").LastINode()
	wc := y.AsReference().Referred().(*namespace.WithCount)
	g.Expect(wc.ReferenceCount()).To(Equal(1))

	// the file is still live: nothing was released
	g.Expect(blocks.Held()).To(HaveLen(1))
}

func TestScenarioSnapshotOfSnapshotsParent(t *testing.T) {
	g := NewWithT(t)
	fs, blocks := scenarioFS(g)

	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err := fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = fs.Create("/a/f1", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = fs.CreateSnapshot("/a", "s1")
	g.Expect(err).NotTo(HaveOccurred())
	_, err = fs.Delete("/a/f1")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = fs.Stat("/a/.snapshot/s0/f1")
	g.Expect(err).To(MatchError(common.ErrNotFound))
	st, err := fs.Stat("/a/.snapshot/s1/f1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(st.Size).To(Equal(int64(1024)))
	g.Expect(fs.Lookup("/a/f1").LastINode()).To(BeNil())

	// blocks retained until s1 is also deleted
	g.Expect(blocks.Held()).To(HaveLen(1))
	_, err = fs.DeleteSnapshot("/a", "s1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(blocks.Held()).To(BeEmpty())
}

func TestScenarioCreateDeleteAcrossCombinedDiff(t *testing.T) {
	g := NewWithT(t)
	fs, blocks := scenarioFS(g)

	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err := fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = fs.Create("/a/tmp", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = fs.CreateSnapshot("/a", "s1")
	g.Expect(err).NotTo(HaveOccurred())
	_, err = fs.Delete("/a/tmp")
	g.Expect(err).NotTo(HaveOccurred())

	// tmp is visible in s1 only
	_, err = fs.Stat("/a/.snapshot/s0/tmp")
	g.Expect(err).To(MatchError(common.ErrNotFound))
	_, err = fs.Stat("/a/.snapshot/s1/tmp")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(blocks.Held()).To(HaveLen(1))

	// combining s1 into s0 reports tmp's blocks as unreachable
	collected, err := fs.DeleteSnapshot("/a", "s1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(collected.Blocks()).To(HaveLen(1))
	g.Expect(blocks.Held()).To(BeEmpty())

	// s0 never saw tmp
	_, err = fs.Stat("/a/.snapshot/s0/tmp")
	g.Expect(err).To(MatchError(common.ErrNotFound))
}

func TestScenarioRenameThenModifyRecordsSourceSide(t *testing.T) {
	g := NewWithT(t)
	fs, _ := scenarioFS(g)

	_, err := fs.Create("/a/x", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	orig := mustStat(g, fs, "/a/x")

	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "s0")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fs.Rename("/a/x", "/b/y")).To(Succeed())

	// a modification through the destination path must not leak into the
	// frozen source view
	tNew := time.Unix(9000, 0)
	g.Expect(fs.SetTimes("/b/y", &tNew, nil)).To(Succeed())

	g.Expect(mustStat(g, fs, "/b/y").Mtime).To(Equal(tNew))
	g.Expect(mustStat(g, fs, "/a/.snapshot/s0/x").Mtime).To(Equal(orig.Mtime))
}

func TestScenarioRenameChain(t *testing.T) {
	g := NewWithT(t)
	fs, _ := scenarioFS(g)

	_, err := fs.Create("/a/x", 1024)
	g.Expect(err).NotTo(HaveOccurred())
	origID := mustStat(g, fs, "/a/x").ID
	g.Expect(fs.AllowSnapshot("/a")).To(Succeed())
	g.Expect(fs.AllowSnapshot("/b")).To(Succeed())
	_, err = fs.CreateSnapshot("/a", "sa")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fs.Rename("/a/x", "/b/y")).To(Succeed())

	_, err = fs.CreateSnapshot("/b", "sb")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fs.Mkdirs("/c")).To(Succeed())
	g.Expect(fs.Rename("/b/y", "/c/z")).To(Succeed())

	// all three paths name the same inode
	g.Expect(mustStat(g, fs, "/a/.snapshot/sa/x").ID).To(Equal(origID))
	g.Expect(mustStat(g, fs, "/b/.snapshot/sb/y").ID).To(Equal(origID))
	g.Expect(mustStat(g, fs, "/c/z").ID).To(Equal(origID))

	z := fs.Lookup("/c/z").LastINode()
	wc := z.AsReference().Referred().(*namespace.WithCount)
	// two frozen names plus the live destination
	g.Expect(wc.ReferenceCount()).To(Equal(3))

	underlying := wc.Referred()
	g.Expect(string(underlying.Parent().LocalName())).To(Equal("c"))
}

func mustStat(g *WithT, fs *FS, path string) *Status {
	st, err := fs.Stat(path)
	g.Expect(err).NotTo(HaveOccurred(), "stat %s", path)
	return st
}
