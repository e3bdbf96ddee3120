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

// Package syncutil provides small concurrency-safe counter collections.
package syncutil

import "sync"

// Counters is a fixed-size collection of independently-locked counters.
type Counters struct {
	mu sync.Mutex
	v  []int
}

// NewCounters creates n counters, all initialized to zero.
func NewCounters(n int) *Counters {
	return &Counters{v: make([]int, n)}
}

// Len returns the number of counters.
func (c *Counters) Len() int { return len(c.v) }

// Increment adds 1 to counter i.
func (c *Counters) Increment(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v[i]++
}

// Decrement subtracts 1 from counter i.
func (c *Counters) Decrement(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v[i]--
}

// Set assigns counter i to val.
func (c *Counters) Set(i, val int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v[i] = val
}

// Get returns the current value of counter i.
func (c *Counters) Get(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v[i]
}
