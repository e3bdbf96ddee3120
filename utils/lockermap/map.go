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

// Package lockermap provides a concurrent map from key to sync.Locker
// whose callbacks run with the value's own lock held, so unrelated keys
// are not serialized behind one global mutex.
package lockermap

import "sync"

// Map is a concurrent map of key -> sync.Locker. The zero Map is ready
// to use.
type Map struct {
	mu sync.Mutex
	m  map[interface{}]sync.Locker
}

// TryStore stores v under k if absent, returning true if stored and
// false if k was already present.
func (m *Map) TryStore(k interface{}, v sync.Locker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m == nil {
		m.m = make(map[interface{}]sync.Locker)
	}
	if _, ok := m.m[k]; ok {
		return false
	}
	m.m[k] = v
	return true
}

// Load locks the value stored under k and invokes f with it held, then
// unlocks. Returns false if k is not present, or was deleted between
// being found and locked.
func (m *Map) Load(k interface{}, f func(sync.Locker)) bool {
	m.mu.Lock()
	v, ok := m.m[k]
	m.mu.Unlock()
	if !ok {
		return false
	}
	v.Lock()
	defer v.Unlock()

	m.mu.Lock()
	cur, stillPresent := m.m[k]
	m.mu.Unlock()
	if !stillPresent || cur != v {
		return false
	}
	f(v)
	return true
}

// Delete removes k.
func (m *Map) Delete(k interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, k)
}

// Range calls f for each key/value pair with the value's lock held,
// skipping keys deleted before their value could be locked. Iteration
// stops early if f returns false.
func (m *Map) Range(f func(k interface{}, v sync.Locker) bool) {
	m.mu.Lock()
	snapshot := make(map[interface{}]sync.Locker, len(m.m))
	for k, v := range m.m {
		snapshot[k] = v
	}
	m.mu.Unlock()

	for k, v := range snapshot {
		v.Lock()
		m.mu.Lock()
		cur, stillPresent := m.m[k]
		m.mu.Unlock()
		if !stillPresent || cur != v {
			v.Unlock()
			continue
		}
		cont := f(k, v)
		v.Unlock()
		if !cont {
			return
		}
	}
}
