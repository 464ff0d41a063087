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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"snapfs/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	logLevelFlag string
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	return fmt.Sprintf("%s (%s, commit: %s)", version, buildDate, commit)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "snapfs",
	Short: "In-memory snapshot engine for a hierarchical namespace",
	Long: `snapfs hosts an in-memory directory tree with user-visible point-in-time
snapshots of arbitrary subtrees. Paths of the form dir/.snapshot/name resolve
to the state of dir when snapshot name was taken.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := config.EnsureConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		settings, err := config.Load()
		if err != nil {
			return err
		}
		level := settings.Logging
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		config.ConfigureLogging(level)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("snapfs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log level (none, error, info, debug, trace)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
