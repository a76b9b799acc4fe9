// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package runmetrics implements the fetching and reporting of process
// resource metrics while a profile is converted.
package runmetrics // import "go.opentelemetry.io/propeller/metrics/runmetrics"

import (
	"context"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/propeller/metrics"
	"go.opentelemetry.io/propeller/periodiccaller"
)

// rusageTimes holds time values of a rusage call.
type rusageTimes struct {
	utime unix.Timeval
	stime unix.Timeval
}

// timeDelta calculates the difference between two time values
// and returns the difference in milliseconds.
func timeDelta(now, prev unix.Timeval) int64 {
	secDelta := int64(now.Sec-prev.Sec) * 1000
	usecDelta := int64(now.Usec-prev.Usec) / 1000
	return secDelta + usecDelta
}

func getrusage() (rusageTimes, error) {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return rusageTimes{}, err
	}
	return rusageTimes{utime: rusage.Utime, stime: rusage.Stime}, nil
}

// report forwards the current heap size, the goroutine count and the CPU time
// spent since the previous report.
func (r *rusageTimes) report(ctx context.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now, err := getrusage()
	if err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return
	}
	deltaUtime := timeDelta(now.utime, r.utime)
	deltaStime := timeDelta(now.stime, r.stime)
	*r = now

	metrics.AddSlice(ctx, []metrics.Metric{
		{ID: metrics.IDRunGoRoutines, Value: metrics.MetricValue(runtime.NumGoroutine())},
		{ID: metrics.IDRunHeapAlloc, Value: metrics.MetricValue(mem.HeapAlloc)},
		{ID: metrics.IDRunUserTime, Value: metrics.MetricValue(deltaUtime)},
		{ID: metrics.IDRunSystemTime, Value: metrics.MetricValue(deltaStime)},
	})
}

// Start reports process metrics every interval until ctx is canceled. The
// returned function stops reporting after a final report.
func Start(ctx context.Context, interval time.Duration) (func(), error) {
	prev, err := getrusage()
	if err != nil {
		return func() {}, err
	}
	return periodiccaller.Start(ctx, interval, func() {
		prev.report(ctx)
	}), nil
}
