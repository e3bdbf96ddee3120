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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmoresh/torrentd/core"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <info-hash>",
	Short: "Forget a torrent: removes its session-store record. Does not touch downloaded data.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		infoHash, err := core.NewInfoHashFromHex(args[0])
		if err != nil {
			return fmt.Errorf("torrentd: invalid info-hash %q: %w", args[0], err)
		}

		var config Config
		if err := loadConfig(&config); err != nil {
			return err
		}

		store, err := openStore(config.SessionStorePath)
		if err != nil {
			return err
		}
		if err := store.DeleteByInfoHash(infoHash); err != nil {
			return err
		}
		fmt.Printf("removed %s from the session store\n", infoHash.Hex())
		return nil
	},
}
