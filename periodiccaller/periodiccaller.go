// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller allows periodic calls of functions.
package periodiccaller // import "go.opentelemetry.io/propeller/periodiccaller"

import (
	"context"
	"sync"
	"time"
)

// Start starts a timer that calls <callback> every <interval> until the <ctx> is canceled
// or the returned stop function is called. Stop blocks until a running callback returned
// and calls <callback> one final time, so the last interval is never lost.
func Start(ctx context.Context, interval time.Duration, callback func()) (stop func()) {
	ticker := time.NewTicker(interval)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
			callback()
		})
	}
}
