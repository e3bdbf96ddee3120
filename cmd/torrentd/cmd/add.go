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
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/metainfo"
	"github.com/dmoresh/torrentd/metrics"
	"github.com/dmoresh/torrentd/utils/log"
)

var (
	peerIP   string
	peerPort int
)

func init() {
	addCmd.Flags().StringVarP(&peerIP, "peer-ip", "", "127.0.0.1", "ip this client announces itself as")
	addCmd.Flags().IntVarP(&peerPort, "peer-port", "", 6881, "port this client announces itself as")
}

var addCmd = &cobra.Command{
	Use:   "add <torrent-file> <save-dir>",
	Short: "Start downloading a new torrent, blocking until it finishes, pauses, or stops.",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		torrentFile, savePath := args[0], args[1]

		var config Config
		if err := loadConfig(&config); err != nil {
			return err
		}
		if config.PeerIDFactory == "" {
			config.PeerIDFactory = core.RandomPeerIDFactory
		}

		zlog := log.ConfigureLogger(config.ZapLogging)
		defer zlog.Sync()

		stats, closer, err := metrics.New(config.Metrics, "torrentd")
		if err != nil {
			log.Fatalf("torrentd: failed to init metrics: %s", err)
		}
		defer closer.Close()

		raw, err := os.ReadFile(torrentFile)
		if err != nil {
			log.Fatalf("torrentd: read %s: %s", torrentFile, err)
		}
		info, err := metainfo.Parse(raw)
		if err != nil {
			log.Fatalf("torrentd: parse %s: %s", torrentFile, err)
		}

		pctx, err := core.NewPeerContext(config.PeerIDFactory, peerIP, peerPort)
		if err != nil {
			log.Fatalf("torrentd: build peer context: %s", err)
		}

		store, err := openStore(config.SessionStorePath)
		if err != nil {
			log.Fatalf("torrentd: open session store: %s", err)
		}

		return runSession(context.Background(), store, info, raw, savePath,
			pctx, config.Coordinator, stats, nil)
	},
}
