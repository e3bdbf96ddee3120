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

// Package backoff provides an exponential-backoff attempt iterator.
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config configures a Backoff. The first attempt always executes
// immediately, regardless of RetryTimeout.
type Config struct {
	Min          time.Duration
	Max          time.Duration
	Factor       float64
	NoJitter     bool
	RetryTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.Max == 0 {
		c.Max = c.Min
	}
}

// Backoff produces Attempts iterators from a fixed config.
type Backoff struct {
	config Config
}

// New creates a Backoff from config, applying defaults to zero fields.
func New(config Config) *Backoff {
	config.applyDefaults()
	return &Backoff{config}
}

// Attempts returns a fresh attempt iterator.
func (b *Backoff) Attempts() *Attempts {
	return &Attempts{
		config:   b.config,
		deadline: time.Now().Add(b.config.RetryTimeout),
	}
}

// ErrTimedOut is returned by Attempts.Err after WaitForNext exhausts the
// configured RetryTimeout.
var ErrTimedOut = errors.New("backoff: retry timeout exceeded")

// Attempts iterates retry attempts, sleeping an exponentially increasing
// interval before each attempt after the first.
type Attempts struct {
	config   Config
	deadline time.Time
	n        int
	err      error
}

// WaitForNext blocks for the next attempt's backoff interval (0 for the
// first attempt) and returns true, unless doing so would exceed the
// configured RetryTimeout, in which case it returns false and records
// ErrTimedOut.
func (a *Attempts) WaitForNext() bool {
	wait := a.nextWait()
	if a.n > 0 && time.Now().Add(wait).After(a.deadline) {
		a.err = ErrTimedOut
		return false
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	a.n++
	return true
}

// Err returns the reason iteration stopped, or nil if WaitForNext has
// not yet returned false.
func (a *Attempts) Err() error { return a.err }

func (a *Attempts) nextWait() time.Duration {
	if a.n == 0 {
		return 0
	}
	interval := float64(a.config.Min) * math.Pow(a.config.Factor, float64(a.n-1))
	if a.config.Max > 0 && interval > float64(a.config.Max) {
		interval = float64(a.config.Max)
	}
	if !a.config.NoJitter {
		interval = interval/2 + rand.Float64()*interval/2
	}
	return time.Duration(interval)
}
