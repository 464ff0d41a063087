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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"snapfs/internal/blockmap"
	"snapfs/internal/config"
	"snapfs/internal/vfs"
)

var (
	dirColor  = color.New(color.FgBlue, color.Bold)
	snapColor = color.New(color.FgCyan)
	refColor  = color.New(color.FgMagenta)
)

type shellSession struct {
	fs     *vfs.FS
	blocks *blockmap.Map
	trace  *os.File
	lock   *flock.Flock
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive namespace shell",
	Long: `Starts an interactive shell over a fresh in-memory namespace. Type "help"
inside the shell for the command list. The namespace lives only for the
session; a command trace is appended under the config directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		s, err := newShellSession(settings)
		if err != nil {
			return err
		}
		defer s.close()
		return s.run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func newShellSession(settings *config.Settings) (*shellSession, error) {
	blocks := blockmap.New()
	fs := vfs.New(blocks, vfs.Options{
		Owner:              settings.Owner,
		Group:              settings.Group,
		DefaultReplication: settings.Replication,
		DefaultBlockSize:   settings.BlockSize,
	})
	s := &shellSession{fs: fs, blocks: blocks}

	// one writer per trace file; another live shell keeps the lock
	s.lock = flock.New(config.TraceLockPath())
	locked, err := s.lock.TryLock()
	if err == nil && locked {
		if f, err := os.OpenFile(config.TracePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600); err == nil {
			s.trace = f
		}
	}
	return s, nil
}

func (s *shellSession) close() {
	if s.trace != nil {
		s.trace.Close()
	}
	if s.lock != nil {
		s.lock.Unlock()
	}
}

func (s *shellSession) traceLine(line string) {
	if s.trace == nil {
		return
	}
	fmt.Fprintf(s.trace, "%s %s %s\n", time.Now().Format(time.RFC3339), s.fs.ID(), line)
}

func (s *shellSession) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapfs shell, namespace %s (type \"help\")\n", s.fs.ID())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "snapfs> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.traceLine(line)
		fields := strings.Fields(line)
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.dispatch(out, fields); err != nil {
			color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
		}
	}
}

func (s *shellSession) dispatch(out io.Writer, fields []string) error {
	cmd, args := fields[0], fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d argument(s)", cmd, n)
		}
		return nil
	}
	switch cmd {
	case "help":
		fmt.Fprint(out, shellHelp)
	case "mkdir":
		if err := need(1); err != nil {
			return err
		}
		return s.fs.Mkdirs(args[0])
	case "touch":
		if err := need(1); err != nil {
			return err
		}
		size := int64(0)
		if len(args) > 1 {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad size %q: %w", args[1], err)
			}
			size = n
		}
		_, err := s.fs.Create(args[0], size)
		return err
	case "ls":
		path := "/"
		if len(args) > 0 {
			path = args[0]
		}
		entries, err := s.fs.List(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			s.printEntry(out, e)
		}
	case "stat":
		if err := need(1); err != nil {
			return err
		}
		st, err := s.fs.Stat(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ino=%d dir=%v size=%d mode=%04o owner=%s:%s mtime=%s blocks=%v\n",
			st.ID, st.IsDir, st.Size, st.Mode, st.Owner, st.Group, st.Mtime.Format(time.RFC3339), st.Blocks)
	case "rm":
		if err := need(1); err != nil {
			return err
		}
		collected, err := s.fs.Delete(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d block(s) unreachable\n", len(collected.Blocks()))
	case "mv":
		if err := need(2); err != nil {
			return err
		}
		return s.fs.Rename(args[0], args[1])
	case "chmod":
		if err := need(2); err != nil {
			return err
		}
		m, err := strconv.ParseUint(args[0], 8, 16)
		if err != nil {
			return fmt.Errorf("bad mode %q: %w", args[0], err)
		}
		mode := uint16(m)
		return s.fs.SetPermission(args[1], "", "", &mode)
	case "allow":
		if err := need(1); err != nil {
			return err
		}
		return s.fs.AllowSnapshot(args[0])
	case "disallow":
		if err := need(1); err != nil {
			return err
		}
		return s.fs.DisallowSnapshot(args[0])
	case "snap":
		if err := need(2); err != nil {
			return err
		}
		info, err := s.fs.CreateSnapshot(args[0], args[1])
		if err != nil {
			return err
		}
		snapColor.Fprintf(out, "created snapshot %s (id=%d)\n", info.Name, info.ID)
	case "unsnap":
		if err := need(2); err != nil {
			return err
		}
		collected, err := s.fs.DeleteSnapshot(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d block(s) unreachable\n", len(collected.Blocks()))
	case "snaprename":
		if err := need(3); err != nil {
			return err
		}
		return s.fs.RenameSnapshot(args[0], args[1], args[2])
	case "snapls":
		if len(args) == 0 {
			names := s.fs.ListSnapshottable()
			for _, n := range names {
				snapColor.Fprintln(out, n)
			}
			return nil
		}
		infos, err := s.fs.ListSnapshots(args[0])
		if err != nil {
			return err
		}
		names := lo.Map(infos, func(i *vfs.SnapshotInfo, _ int) string {
			return fmt.Sprintf("%s (id=%d, %s)", i.Name, i.ID, i.CreatedAt.Format(time.RFC3339))
		})
		for _, n := range names {
			snapColor.Fprintln(out, n)
		}
	case "tree":
		s.fs.DumpTree(out)
	case "blocks":
		fmt.Fprintf(out, "held: %v\n", s.blocks.Held())
		fmt.Fprintf(out, "pending delete: %v\n", s.blocks.Drain())
	default:
		return fmt.Errorf("unknown command %q (try \"help\")", cmd)
	}
	return nil
}

func (s *shellSession) printEntry(out io.Writer, e *vfs.Status) {
	switch {
	case e.IsReference:
		refColor.Fprintf(out, "%s@\n", e.Name)
	case e.IsDir:
		dirColor.Fprintf(out, "%s/\n", e.Name)
	default:
		fmt.Fprintf(out, "%s\t%d\n", e.Name, e.Size)
	}
}

const shellHelp = `commands:
  mkdir <path>                create directories
  touch <path> [size]         create a file of the given length
  ls [path]                   list a directory (or .snapshot)
  stat <path>                 show attributes
  rm <path>                   delete a file or subtree
  mv <src> <dst>              rename
  chmod <octal> <path>        change permissions
  allow <dir> | disallow <dir>
  snap <dir> <name>           create a snapshot
  unsnap <dir> <name>         delete a snapshot
  snaprename <dir> <old> <new>
  snapls [dir]                list snapshots (no dir: snapshottable roots)
  tree                        dump the live tree
  blocks                      show block map state and drain deletions
  quit
`
