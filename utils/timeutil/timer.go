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

// Package timeutil provides small time helpers.
package timeutil

import "time"

// Timer wraps time.Timer with idempotent Start/Cancel so callers don't
// need to track whether a timer is already running.
type Timer struct {
	C       <-chan time.Time
	d       time.Duration
	t       *time.Timer
	started bool
}

// NewTimer creates a Timer that, once Start is called, fires after d.
func NewTimer(d time.Duration) *Timer {
	return &Timer{d: d}
}

// Start arms the timer. Returns false if it was already running.
func (t *Timer) Start() bool {
	if t.started {
		return false
	}
	t.t = time.NewTimer(t.d)
	t.C = t.t.C
	t.started = true
	return true
}

// Cancel stops the timer. Returns false if it was not running, or had
// already fired.
func (t *Timer) Cancel() bool {
	if !t.started {
		return false
	}
	ok := t.t.Stop()
	t.started = false
	return ok
}
