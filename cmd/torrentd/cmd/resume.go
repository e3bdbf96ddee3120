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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/metainfo"
	"github.com/dmoresh/torrentd/metrics"
	"github.com/dmoresh/torrentd/utils/log"
)

func init() {
	resumeCmd.Flags().StringVarP(&peerIP, "peer-ip", "", "127.0.0.1", "ip this client announces itself as")
	resumeCmd.Flags().IntVarP(&peerPort, "peer-port", "", 6881, "port this client announces itself as")
}

var resumeCmd = &cobra.Command{
	Use:   "resume <info-hash>",
	Short: "Resume a paused or stopped torrent from the session store.",
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

		store, err := openStore(config.SessionStorePath)
		if err != nil {
			log.Fatalf("torrentd: open session store: %s", err)
		}

		rec, ok, err := store.GetByInfoHash(infoHash)
		if err != nil {
			log.Fatalf("torrentd: read session store: %s", err)
		}
		if !ok {
			return fmt.Errorf("torrentd: no session-store record for info-hash %s", infoHash.Hex())
		}

		info, err := metainfo.Parse(rec.RawMetainfo)
		if err != nil {
			log.Fatalf("torrentd: parse stored metainfo: %s", err)
		}

		pctx, err := core.NewPeerContext(config.PeerIDFactory, peerIP, peerPort)
		if err != nil {
			log.Fatalf("torrentd: build peer context: %s", err)
		}

		return runSession(context.Background(), store, info, rec.RawMetainfo, rec.SavePath,
			pctx, config.Coordinator, stats, &rec)
	},
}
