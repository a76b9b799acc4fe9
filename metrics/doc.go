// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics exports the statistics of a CFG construction run as OTel
metrics.

All metrics are defined in metrics.json and identified by the generated IDs in
ids.go. A metric is exported as the OTel instrument "propeller.<field>", where
field is the name used by stats.PropellerStats.Fields. Counters are only added
if they are nonzero.

Example code to export the statistics of a run:

	metrics.ReportStats(ctx, program.Stats())
*/
package metrics // import "go.opentelemetry.io/propeller/metrics"
