// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// genids generates the metric ID constants from metrics.json. It refuses
// definitions that would renumber or orphan an exported metric.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/template"
)

type metricDef struct {
	Description string `json:"description"`
	MetricType  string `json:"type"`
	Name        string `json:"name"`
	FieldName   string `json:"field"`
	Unit        string `json:"unit"`
	ID          uint32 `json:"id"`
	Obsolete    bool   `json:"obsolete"`
}

var idsTemplate = template.Must(template.New("ids").Parse(
	`// Code generated from metrics.json. DO NOT EDIT.

package metrics

// To add a new metric append an entry to metrics.json. ONLY APPEND !
// Then run 'go generate ./metrics'.

// Below are the different metric IDs that we currently implement.
const (
{{range .}}{{if not .Obsolete}}
	// {{.Description}}
	ID{{.Name}} = {{.ID}}
{{end}}{{end}}
	// max number of ID values, keep this as *last entry*
	IDMax = {{len .}}
)
`))

// check verifies that IDs are dense in file order and that every exported
// metric is fed from a statistics field.
func check(defs []metricDef) error {
	names := make(map[string]struct{}, len(defs))
	fields := make(map[string]string, len(defs))
	for i, m := range defs {
		if m.ID != uint32(i) {
			return fmt.Errorf("%s: id %d at position %d, entries may only be appended",
				m.Name, m.ID, i)
		}
		if _, ok := names[m.Name]; ok {
			return fmt.Errorf("%s: duplicate name", m.Name)
		}
		names[m.Name] = struct{}{}
		if m.ID == 0 || m.Obsolete {
			continue
		}
		switch m.MetricType {
		case "counter", "gauge":
		default:
			return fmt.Errorf("%s: unknown type %q", m.Name, m.MetricType)
		}
		if m.FieldName == "" {
			return fmt.Errorf("%s: no statistics field", m.Name)
		}
		if other, ok := fields[m.FieldName]; ok {
			return fmt.Errorf("%s: field %s already feeds %s", m.Name, m.FieldName, other)
		}
		fields[m.FieldName] = m.Name
	}
	return nil
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <metrics.json> <output.go>\n", os.Args[0])
		os.Exit(1)
	}

	input, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	var defs []metricDef
	if err = json.Unmarshal(input, &defs); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling: %v\n", err)
		os.Exit(1)
	}
	if err = check(defs); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	var output bytes.Buffer
	if err = idsTemplate.Execute(&output, defs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err = os.WriteFile(os.Args[2], output.Bytes(), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
