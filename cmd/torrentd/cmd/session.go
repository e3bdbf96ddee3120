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
	"os"
	"os/signal"
	"syscall"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"golang.org/x/sync/errgroup"

	"github.com/dmoresh/torrentd/coordinator"
	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/metainfo"
	"github.com/dmoresh/torrentd/sessionstore"
	"github.com/dmoresh/torrentd/tracker"
	"github.com/dmoresh/torrentd/utils/log"
)

// runSession drives one torrent to completion or until a pause/stop
// signal arrives. On a clean Pause/Stop exit (SIGINT/SIGTERM) or
// TorrentFinished it persists (or removes) the session-store record
// before returning.
//
// rawMetainfo is the exact .torrent bytes, kept so the session-store
// record can restore without re-reading the original file from disk.
// resume, if non-nil, is the prior session-store record to restore
// from (chunk bitmaps seeded, not re-verified); if nil, runSession
// performs a from-scratch resume scan via the saver.
func runSession(
	ctx context.Context,
	store *sessionstore.Store,
	info *metainfo.Info,
	rawMetainfo []byte,
	savePath string,
	pctx core.PeerContext,
	coordCfg coordinator.Config,
	stats tally.Scope,
	resume *sessionstore.Record,
) error {
	logger := log.With("info_hash", info.InfoHash().Hex(), "name", info.Name())
	logger.Infof("starting torrent: %s total", formatSize(info.Length()))

	coord, err := coordinator.New(info, savePath, pctx.PeerID, pctx.Port, coordCfg,
		clock.New(), stats, logger)
	if err != nil {
		return fmt.Errorf("torrentd: build coordinator: %w", err)
	}

	if resume != nil {
		coord.RestoreFromRecord(resume.PieceTasks, resume.ChunkTasks)
	} else {
		coord.Seed(coord.ResumeScan())
	}

	urls := append([]string{info.Announce()}, info.AnnounceList()...)
	trackerClient := tracker.New(info.InfoHash(), pctx.PeerID, pctx.Port, coord.Stats(), urls)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGTERM {
				logger.Info("received SIGTERM, stopping")
				coord.Stop()
			} else {
				logger.Info("received interrupt, pausing")
				coord.Pause()
			}
		case <-runCtx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return trackerClient.Run(gctx, coord) })
	g.Go(func() error {
		// The tracker task only returns once gctx is done, so the
		// coordinator's exit (finish, pause, stop) must end it too.
		defer cancel()
		return coord.Run(gctx, newCLIEvents(info.NumPieces()))
	})

	runErr := g.Wait()
	snap := coord.Snapshot()

	if snap.Status == coordinator.StatusFinished {
		if err := store.DeleteByInfoHash(info.InfoHash()); err != nil {
			logger.Errorf("failed to clear finished session-store record: %s", err)
		}
		return runErr
	}

	rec := sessionstore.FromSnapshot(snap, rawMetainfo)
	if err := store.Upsert(rec); err != nil {
		logger.Errorf("failed to persist session-store record: %s", err)
	}
	return runErr
}

// openStore resolves the session-store path (config override or the
// per-user default) and opens it.
func openStore(path string) (*sessionstore.Store, error) {
	if path == "" {
		var err error
		path, err = sessionstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return sessionstore.New(path), nil
}
