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

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"snapfs/internal/blockmap"
	"snapfs/internal/vfs"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted snapshot walk-through",
	Long: `Builds a small namespace, takes snapshots, deletes and renames across the
snapshot boundary, and prints how live and snapshot views diverge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(out io.Writer) error {
	blocks := blockmap.New()
	fs := vfs.New(blocks, vfs.Options{DefaultBlockSize: 1024})

	step := func(desc string, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", desc, err)
		}
		fmt.Fprintf(out, "== %s\n", desc)
		return nil
	}

	if err := step("mkdir /a, /b", firstErr(fs.Mkdirs("/a"), fs.Mkdirs("/b"))); err != nil {
		return err
	}
	if _, err := fs.Create("/a/f1", 2048); err != nil {
		return err
	}
	if err := step("create /a/f1 (2048 bytes)", nil); err != nil {
		return err
	}
	if err := step("allow + snapshot s0 on /a", firstErr(fs.AllowSnapshot("/a"), errOf(fs.CreateSnapshot("/a", "s0")))); err != nil {
		return err
	}
	if _, err := fs.Delete("/a/f1"); err != nil {
		return err
	}
	fmt.Fprintln(out, "== delete /a/f1")
	show(out, fs, "/a/f1")
	show(out, fs, "/a/.snapshot/s0/f1")
	fmt.Fprintf(out, "block map still holds: %v\n", blocks.Held())

	if _, err := fs.Create("/a/x", 1024); err != nil {
		return err
	}
	if _, err := fs.CreateSnapshot("/a", "s1"); err != nil {
		return err
	}
	if err := fs.Rename("/a/x", "/b/y"); err != nil {
		return err
	}
	fmt.Fprintln(out, "== create /a/x, snapshot s1, rename /a/x -> /b/y")
	show(out, fs, "/a/x")
	show(out, fs, "/a/.snapshot/s1/x")
	show(out, fs, "/b/y")

	fmt.Fprintln(out, "== final tree")
	fs.DumpTree(out)

	if _, err := fs.DeleteSnapshot("/a", "s0"); err != nil {
		return err
	}
	fmt.Fprintln(out, "== delete snapshot s0")
	fmt.Fprintf(out, "block map holds: %v, pending delete: %v\n", blocks.Held(), blocks.Drain())
	return nil
}

func show(out io.Writer, fs *vfs.FS, path string) {
	st, err := fs.Stat(path)
	if err != nil {
		fmt.Fprintf(out, "  %-24s -> %v\n", path, err)
		return
	}
	fmt.Fprintf(out, "  %-24s -> ino=%d size=%d\n", path, st.ID, st.Size)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func errOf(_ *vfs.SnapshotInfo, err error) error { return err }
