// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package runmetrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/propeller/metrics"
)

func TestTimeDelta(t *testing.T) {
	tests := map[string]struct {
		now   unix.Timeval
		prev  unix.Timeval
		delta int64
	}{
		"1000ms": {
			now:   unix.Timeval{Sec: 1},
			delta: 1000,
		},
		"1ms": {
			now:   unix.Timeval{Usec: 1000},
			delta: 1,
		},
		"delta too small": {
			now:   unix.Timeval{Usec: 500},
			delta: 0,
		},
		"998 ms": {
			now:   unix.Timeval{Sec: 1, Usec: 1000},
			prev:  unix.Timeval{Usec: 3000},
			delta: 998,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.delta, timeDelta(tc.now, tc.prev))
		})
	}
}

type recorder struct {
	mu  sync.Mutex
	ids map[uint32]int
}

func (r *recorder) ReportMetrics(ids []uint32, _ []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.ids[id]++
	}
}

func TestStart(t *testing.T) {
	r := &recorder{ids: map[uint32]int{}}
	metrics.SetReporter(r)
	t.Cleanup(func() { metrics.SetReporter(nil) })

	stop, err := Start(context.Background(), time.Hour)
	require.NoError(t, err)
	stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range []metrics.MetricID{metrics.IDRunGoRoutines, metrics.IDRunHeapAlloc,
		metrics.IDRunUserTime, metrics.IDRunSystemTime} {
		assert.Equal(t, 1, r.ids[uint32(id)], "metric %d", id)
	}
}
