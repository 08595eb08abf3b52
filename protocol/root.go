/*
 * Copyright 2025 Syncplane Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package protocol is the command surface every plugin binary exposes: spec,
// discover, sync and serve over a shared flag set. A plugin's main wires its
// Source through CreateRootCommand and executes the returned command.
package protocol

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/syncplane/syncplane/scheduler"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
)

var (
	stateConfigPath       string
	destinationConfigPath string
	outputPath            string
	sourceAddr            string
	serveAddr             string
	logFolder             string
	tablePatterns         []string
	concurrency           int
	batchSize             int
	keepEmptyCursor       bool
	timeout               int64 // timeout in seconds

	commands = []*cobra.Command{}
	plugin   scheduler.Source
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "syncplane",
	Short: "root command",
	RunE: func(cmd *cobra.Command, args []string) error {
		viper.Set("LOG_FOLDER", utils.Ternary(logFolder != "", logFolder, os.TempDir()))
		logger.Init()

		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'syncplane --help' to display usage guide", args[0])
		}

		return nil
	},
}

// CreateRootCommand binds a plugin source to the shared command tree.
func CreateRootCommand(source scheduler.Source) *cobra.Command {
	plugin = source
	RootCmd.AddCommand(commands...)
	return RootCmd
}

func init() {
	commands = append(commands, specCmd, discoverCmd, syncCmd, serveCmd)

	RootCmd.PersistentFlags().StringVarP(&stateConfigPath, "state", "", "", "(Optional) Cursor state config; in-memory state when omitted")
	RootCmd.PersistentFlags().StringVarP(&destinationConfigPath, "destination", "", "not-set", "(Required for sync) Destination config for the plugin")
	RootCmd.PersistentFlags().StringVarP(&outputPath, "output", "", "", "(Optional) File to write command output JSON into; stdout when omitted")
	RootCmd.PersistentFlags().StringVarP(&sourceAddr, "source-addr", "", "", "(Optional) Remote plugin address; runs the local source when omitted")
	RootCmd.PersistentFlags().StringVarP(&logFolder, "log-folder", "", "", "(Optional) Folder for rotating log files")
	RootCmd.PersistentFlags().StringSliceVarP(&tablePatterns, "tables", "", nil, "(Optional) Glob patterns selecting top-level tables to sync")
	RootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "", scheduler.DefaultConcurrency, "(Optional) Max concurrently running fetch tasks")
	RootCmd.PersistentFlags().IntVarP(&batchSize, "batch-size", "", scheduler.DefaultBatchSize, "(Optional) Rows per encoded batch")
	RootCmd.PersistentFlags().BoolVarP(&keepEmptyCursor, "keep-empty-cursor", "", false, "(Optional) Keep the previous cursor when an incremental fetch returns zero rows")
	RootCmd.PersistentFlags().Int64VarP(&timeout, "timeout", "", -1, "(Optional) Timeout to override default timeouts (in seconds)")

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
