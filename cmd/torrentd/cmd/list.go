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

	"github.com/dmoresh/torrentd/metainfo"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every torrent known to the session store, with its resume status.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		var config Config
		if err := loadConfig(&config); err != nil {
			return err
		}

		store, err := openStore(config.SessionStorePath)
		if err != nil {
			return err
		}
		records, err := store.Load()
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("no torrents in the session store")
			return nil
		}
		for _, r := range records {
			name := r.InfoHash.Hex()
			size := "unknown size"
			if info, err := metainfo.Parse(r.RawMetainfo); err == nil {
				name = info.Name()
				size = formatSize(info.Length())
			}
			fmt.Printf("%s  %-10s  %-30s  %s  pieces_done=%d  %s\n",
				r.InfoHash.Hex(), r.Status, name, size, r.PiecesDone, r.SavePath)
		}
		return nil
	},
}
