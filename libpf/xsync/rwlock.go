// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "go.opentelemetry.io/propeller/libpf/xsync"

import "sync"

// RWMutex is a thin wrapper around sync.RWMutex that hides the data it
// protects, so the data can only be reached through RLock or WLock:
//
//	type Aggregator struct {
//		counts xsync.RWMutex[map[string]uint64]
//	}
//
//	func (a *Aggregator) Add(name string, n uint64) {
//		counts := a.counts.WLock()
//		defer a.counts.WUnlock(&counts)
//		(*counts)[name] += n
//	}
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex protecting guarded.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{
		guarded: guarded,
	}
}

// RLock locks the mutex for reading, returning a pointer to the protected data.
// The caller must not write through the pointer or let it escape.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock unlocks the mutex after previously being locked by RLock and
// invalidates ref.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks the mutex for writing, returning a pointer to the protected data.
// The caller must not let the pointer escape.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock unlocks the mutex after previously being locked by WLock and
// invalidates ref.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
