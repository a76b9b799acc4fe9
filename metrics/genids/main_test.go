// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	invalid := metricDef{Name: "Invalid"}
	nodes := metricDef{Name: "NodesCreated", MetricType: "counter", FieldName: "nodes_created",
		ID: 1}

	tests := map[string]struct {
		defs    []metricDef
		wantErr bool
	}{
		"valid": {
			defs: []metricDef{invalid, nodes},
		},
		"gap": {
			defs:    []metricDef{invalid, {Name: "A", MetricType: "counter", FieldName: "a", ID: 2}},
			wantErr: true,
		},
		"duplicate name": {
			defs: []metricDef{invalid, nodes,
				{Name: "NodesCreated", MetricType: "counter", FieldName: "x", ID: 2}},
			wantErr: true,
		},
		"duplicate field": {
			defs: []metricDef{invalid, nodes,
				{Name: "Other", MetricType: "gauge", FieldName: "nodes_created", ID: 2}},
			wantErr: true,
		},
		"missing field": {
			defs:    []metricDef{invalid, {Name: "A", MetricType: "counter", ID: 1}},
			wantErr: true,
		},
		"unknown type": {
			defs:    []metricDef{invalid, {Name: "A", MetricType: "histogram", FieldName: "a", ID: 1}},
			wantErr: true,
		},
		"obsolete without field": {
			defs: []metricDef{invalid, {Name: "A", ID: 1, Obsolete: true}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := check(tc.defs)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestGeneratedIDsUpToDate regenerates ids.go from metrics.json and compares
// the result with the checked in file.
func TestGeneratedIDsUpToDate(t *testing.T) {
	input, err := os.ReadFile("../metrics.json")
	require.NoError(t, err)
	var defs []metricDef
	require.NoError(t, json.Unmarshal(input, &defs))
	require.NoError(t, check(defs))

	var output bytes.Buffer
	require.NoError(t, idsTemplate.Execute(&output, defs))
	expected, err := os.ReadFile("../ids.go")
	require.NoError(t, err)
	assert.Equal(t, string(expected), output.String())
}
