// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiledata // import "go.opentelemetry.io/propeller/profiledata"

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"

	"go.opentelemetry.io/propeller/libpf"
)

// ReadBranchAggregate reads a text branch aggregate. Every line holds one
// record "B <from> <to> <count>" for a taken branch or "F <from> <to> <count>"
// for a fallthrough range, with hexadecimal addresses and a decimal count.
// Empty lines and lines starting with '#' are ignored.
func ReadBranchAggregate(r io.Reader) (*Aggregation, error) {
	agg := NewAggregation()
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", lineno, len(fields))
		}
		from, err := parseAddress(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		to, err := parseAddress(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		count, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid count: %w", lineno, err)
		}
		switch fields[0] {
		case "B":
			agg.AddBranch(from, to, count)
		case "F":
			agg.AddFallthrough(from, to, count)
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", lineno, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return agg, nil
}

func parseAddress(s string) (libpf.Address, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return libpf.Address(v), nil
}

// ReadPprofAddressCounts sums the values at sampleIndex of all samples of a
// pprof profile by the address of their leaf location. Addresses are taken as
// recorded in the profile.
func ReadPprofAddressCounts(r io.Reader, sampleIndex int) (map[libpf.Address]uint64, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return nil, err
	}
	if sampleIndex < 0 || sampleIndex >= len(p.SampleType) {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", sampleIndex,
			len(p.SampleType))
	}
	counts := make(map[libpf.Address]uint64)
	for _, s := range p.Sample {
		if len(s.Location) == 0 || s.Value[sampleIndex] <= 0 {
			continue
		}
		counts[libpf.Address(s.Location[0].Address)] += uint64(s.Value[sampleIndex])
	}
	return counts, nil
}
