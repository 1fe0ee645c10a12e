// Copyright 2020-2021 Dolthub, Inc.
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

// Package mutex declares the mutex subsystem contract spec §6 leaves
// to the embedder: the CORE never implements its own locking
// primitive, it only asks for one with this shape. The actual
// primitive (a no-op for single-threaded embedding, or an OS-native
// one) is out of scope (spec §1's Non-goals) and supplied here only
// far enough to exercise the contract.
package mutex

import "sync"

// Mutex is a recursive-safe-by-construction lock: Enter/Leave nest on
// the same goroutine without deadlocking, matching the "fast" and
// "recursive" mutex flavors SQLite-style engines expose to their VM.
type Mutex interface {
	Enter()
	Leave()
	// Held reports whether the calling goroutine currently holds the
	// mutex. Used by assertions (C6's lifecycle checks) rather than by
	// any control-flow decision.
	Held() bool
}

// NoopMutex implements Mutex by doing nothing, for embedders that
// guarantee single-threaded access themselves (spec §6 explicitly
// allows this).
type NoopMutex struct{}

func (NoopMutex) Enter()     {}
func (NoopMutex) Leave()     {}
func (NoopMutex) Held() bool { return true }

// CheckedMutex wraps a sync.Mutex with recursion accounting, so the
// same goroutine may re-enter without blocking on itself. It is not
// the OS-native "fast" mutex spec §6 describes as the concurrent
// embedding option — it is the error-checking variant a single
// process can use to make the VM's locking discipline self-testing.
type CheckedMutex struct {
	mu    sync.Mutex
	owner int64
	depth int
	id    func() int64
}

// NewCheckedMutex builds a CheckedMutex. id reports the calling
// goroutine's identity; callers without a reliable goroutine id can
// pass a function returning a fixed value per logical "connection"
// instead, since the CORE's locking discipline is per-connection, not
// literally per-OS-thread.
func NewCheckedMutex(id func() int64) *CheckedMutex {
	return &CheckedMutex{id: id}
}

func (m *CheckedMutex) Enter() {
	self := m.id()
	if m.depth > 0 && m.owner == self {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner = self
	m.depth = 1
}

func (m *CheckedMutex) Leave() {
	self := m.id()
	if m.depth == 0 || m.owner != self {
		panic("mutex: Leave called without a matching Enter")
	}
	m.depth--
	if m.depth == 0 {
		m.mu.Unlock()
	}
}

func (m *CheckedMutex) Held() bool {
	return m.depth > 0 && m.owner == m.id()
}
