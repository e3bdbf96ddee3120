// Copyright (c) 2016-2019 Uber Technologies, Inc.
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

// Package cmd implements torrentd's cobra CLI: add/resume run a torrent
// in the foreground over the coordinator API surface; list/delete
// operate purely on the session store.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dmoresh/torrentd/utils/configutil"
)

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFile, "config", "c", "", "configuration file path")
	rootCmd.AddCommand(addCmd, resumeCmd, listCmd, deleteCmd)
}

var rootCmd = &cobra.Command{
	Use:   "torrentd",
	Short: "torrentd downloads and seeds a single BitTorrent swarm from the command line.",
}

// Execute runs the CLI, exiting the process on error per cobra's own
// convention.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cobra.CheckErr(err)
	}
}

// loadConfig reads configFile (if set) into cfg, leaving cfg's zero
// value in place when no config file was given.
func loadConfig(cfg *Config) error {
	if configFile == "" {
		return nil
	}
	return configutil.Load(configFile, cfg)
}
