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

// Package shutdown provides a single coordination point for graceful
// process shutdown: callers register cleanup callbacks that run once, in
// reverse order of registration, when Shutdown is first called.
package shutdown

import (
	"context"
	"sync"

	"github.com/dmoresh/torrentd/utils/log"
)

// Handler coordinates a single shutdown across the process.
type Handler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	cleanups []func() error
	once     sync.Once
}

// New creates a Handler derived from parent.
func New(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	return &Handler{ctx: ctx, cancel: cancel}
}

// Context returns a context that is cancelled when Shutdown is called.
func (h *Handler) Context() context.Context { return h.ctx }

// AddCleanup registers f to run during Shutdown. Cleanups run in LIFO
// order, mirroring defer semantics, so that the most recently started
// subsystem is the first to be torn down.
func (h *Handler) AddCleanup(f func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, f)
}

// Shutdown cancels the context and runs all registered cleanups in LIFO
// order. Safe to call more than once; only the first call has effect.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.cancel()
		h.mu.Lock()
		cleanups := h.cleanups
		h.mu.Unlock()
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				log.Errorf("Shutdown cleanup error: %s", err)
			}
		}
	})
}
