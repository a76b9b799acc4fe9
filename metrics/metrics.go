// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/propeller/metrics"

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"go.opentelemetry.io/propeller/stats"
	"go.opentelemetry.io/propeller/vc"
)

// Reporter receives all metrics that are added, in addition to the OTel
// instruments.
type Reporter interface {
	ReportMetrics(ids []uint32, values []int64)
}

var (
	//go:embed metrics.json
	metricsJSON []byte

	// Used in fallback checks, e.g. to avoid sending "counters" with 0 values
	metricTypes map[MetricID]MetricType

	// idByField maps statistics field names to metric IDs.
	idByField map[string]MetricID

	// OTel metric instrumentation
	meter = otel.Meter("go.opentelemetry.io/propeller",
		metric.WithInstrumentationVersion(vc.Version()))
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}

	// mutex serializes the calls to reporterImpl
	mutex        sync.Mutex
	reporterImpl Reporter
)

func SetReporter(r Reporter) {
	mutex.Lock()
	defer mutex.Unlock()
	reporterImpl = r
}

func init() {
	defs := GetDefinitions()
	metricTypes = make(map[MetricID]MetricType, len(defs))
	idByField = make(map[string]MetricID, len(defs))
	for _, md := range defs {
		if md.Obsolete || md.ID == IDInvalid {
			continue
		}
		metricTypes[md.ID] = md.Type
		if md.Field != "" {
			idByField[md.Field] = md.ID
		}
		name := "propeller." + md.Field
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// AddSlice records a slice of metrics. Invalid IDs and zero valued counters
// are skipped.
func AddSlice(ctx context.Context, newMetrics []Metric) {
	ids := make([]uint32, 0, len(newMetrics))
	values := make([]int64, 0, len(newMetrics))
	for _, m := range newMetrics {
		if m.ID <= IDInvalid || m.ID >= IDMax {
			log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
				m.ID, IDInvalid+1, IDMax-1)
			continue
		}
		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}
		switch typ {
		case MetricTypeCounter:
			if m.Value == 0 {
				continue
			}
			if counter, ok := counters[m.ID]; ok {
				counter.Add(ctx, int64(m.Value))
			}
		case MetricTypeGauge:
			if gauge, ok := gauges[m.ID]; ok {
				gauge.Record(ctx, int64(m.Value))
			}
		}
		ids = append(ids, uint32(m.ID))
		values = append(values, int64(m.Value))
	}

	mutex.Lock()
	defer mutex.Unlock()
	if reporterImpl != nil && len(ids) > 0 {
		reporterImpl.ReportMetrics(ids, values)
	}
}

// Add records a single metric.
func Add(ctx context.Context, id MetricID, value MetricValue) {
	AddSlice(ctx, []Metric{{id, value}})
}

// ReportStats records every counter of st.
func ReportStats(ctx context.Context, st *stats.PropellerStats) {
	fields := st.Fields()
	batch := make([]Metric, 0, len(fields))
	for _, f := range fields {
		id, ok := idByField[f.Name]
		if !ok {
			log.Warnf("No metric defined for statistics field %s", f.Name)
			continue
		}
		batch = append(batch, Metric{ID: id, Value: MetricValue(f.Value)})
	}
	AddSlice(ctx, batch)
}

// GetDefinitions returns the metric definitions from the embedded metrics.json file.
func GetDefinitions() []MetricDefinition {
	var defs []MetricDefinition

	dec := json.NewDecoder(bytes.NewReader(metricsJSON))
	dec.DisallowUnknownFields()

	err := dec.Decode(&defs)
	if err != nil {
		panic(fmt.Sprintf("extracting definitions from metrics.json: %v", err))
	}
	return defs
}
