// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"go.opentelemetry.io/propeller/addr2line"
	"go.opentelemetry.io/propeller/bbaddrmap"
	"go.opentelemetry.io/propeller/cfgfixture"
	"go.opentelemetry.io/propeller/instmap"
	"go.opentelemetry.io/propeller/libpf"
	"go.opentelemetry.io/propeller/metrics"
	"go.opentelemetry.io/propeller/metrics/runmetrics"
	"go.opentelemetry.io/propeller/profiledata"
	"go.opentelemetry.io/propeller/programcfg"
	"go.opentelemetry.io/propeller/symbolmap"
)

// Controller runs the conversion of a block map and a profile into CFGs and
// writes the requested outputs.
type Controller struct {
	config    *Config
	reportOut io.Writer
	resolver  instmap.InlineStackResolver

	result  *programcfg.ProgramCFG
	symbols *symbolmap.SymbolMap
}

// New creates a new controller.
func New(cfg *Config, opts ...Option) *Controller {
	c := &Controller{
		config:    cfg,
		reportOut: os.Stdout,
	}
	for _, opt := range opts {
		c = opt.applyOption(c)
	}
	return c
}

// Result returns the graphs built by the last successful Run.
func (c *Controller) Result() *programcfg.ProgramCFG { return c.result }

// Symbols returns the source counts aggregated by the last Run, or nil if no
// resolver was configured.
func (c *Controller) Symbols() *symbolmap.SymbolMap { return c.symbols }

// Run reads the inputs, builds the CFGs of all functions and writes the
// outputs. The controller should only be run once.
func (c *Controller) Run(ctx context.Context) (err error) {
	if c.config == nil {
		return usageError(errors.New("no configuration"))
	}
	if err = c.config.Validate(); err != nil {
		return err
	}

	if c.config.MetricsInterval > 0 {
		stopMetrics, err := runmetrics.Start(ctx, c.config.MetricsInterval)
		if err != nil {
			log.Warnf("Failed to start run metrics: %v", err)
		} else {
			defer stopMetrics()
		}
	}

	program, err := readFile(c.config.BBAddrMapPath, bbaddrmap.Load)
	if err != nil {
		return fmt.Errorf("failed to load basic block address map: %w", err)
	}
	log.Infof("Loaded block map of %d functions", len(program.Functions))

	profilesParsed := int64(0)
	profile, err := readFile(c.config.BranchProfile, profiledata.ReadBranchAggregate)
	if err != nil {
		return fmt.Errorf("failed to read branch profile: %w", err)
	}
	profilesParsed++

	opts := programcfg.Options{Parallelism: c.config.Parallelism}
	if c.config.PprofProfile != "" {
		counts, err := readFile(c.config.PprofProfile,
			func(r io.Reader) (map[libpf.Address]uint64, error) {
				return profiledata.ReadPprofAddressCounts(r, c.config.PprofSampleIndex)
			})
		if err != nil {
			return fmt.Errorf("failed to read pprof profile: %w", err)
		}
		profilesParsed++
		opts.SampledAddresses = make(libpf.Set[libpf.Address], len(counts))
		unknown := 0
		for addr := range counts {
			opts.SampledAddresses.Add(addr)
			if _, _, ok := program.Symbols.LookupByAddress(addr); !ok {
				unknown++
			}
		}
		log.Debugf("Read %d sampled addresses, %d outside known symbols",
			len(counts), unknown)
	}

	if c.resolver == nil && c.config.BinaryPath != "" {
		var d *addr2line.DWARF
		d, err = addr2line.OpenDWARF(c.config.BinaryPath)
		if err != nil {
			return fmt.Errorf("failed to read debug info: %w", err)
		}
		defer multierr.AppendInvoke(&err, multierr.Close(d))
		c.resolver = d
	}
	var cache *addr2line.Cached
	if c.resolver != nil {
		cache, err = addr2line.NewCached(c.resolver,
			ResolverCacheSize(c.config.ResolverCacheSize, program))
		if err != nil {
			return fmt.Errorf("failed to create resolver cache: %w", err)
		}
		c.symbols = symbolmap.New()
		opts.Resolver = cache
		opts.Aggregator = c.symbols
	}

	result, err := programcfg.Build(ctx, program, profile, opts)
	if err != nil {
		return fmt.Errorf("failed to build CFGs: %w", err)
	}
	c.result = result

	st := result.Stats()
	st.PerfFileParsed += profilesParsed
	if cache != nil {
		cs := cache.GetAndResetStatistics()
		log.Debugf("Inline stack cache: %d hits, %d misses, %d entries",
			cs.Hit, cs.Miss, cache.Len())
	}

	if err = c.writeOutputs(); err != nil {
		return err
	}

	st.LogSummary()
	metrics.ReportStats(ctx, st)
	return writeHotReport(c.reportOut, result.HotCFGs(), c.config.HotReportSize)
}

func (c *Controller) writeOutputs() error {
	if c.config.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.config.OutputDir, 0o755); err != nil {
		return err
	}

	if c.config.WriteDot {
		for _, g := range c.result.HotCFGs() {
			path := filepath.Join(c.config.OutputDir, dotFileName(g.PrimaryName()))
			if err := writeFile(path, func(w io.Writer) error {
				return g.WriteDotFormat(w, nil)
			}); err != nil {
				return fmt.Errorf("failed to write dot file: %w", err)
			}
		}
	}

	if c.config.FixtureFormat != FixtureNone {
		snap := cfgfixture.FromProgram(c.result.CFGs())
		path := filepath.Join(c.config.OutputDir, fixtureFileName(c.config.FixtureFormat))
		if err := writeFile(path, func(w io.Writer) error {
			if c.config.FixtureFormat == FixtureYAML {
				return cfgfixture.WriteYAML(w, snap)
			}
			return cfgfixture.WriteMsgpack(w, snap, c.config.FixtureFormat == FixtureMsgpackZstd)
		}); err != nil {
			return fmt.Errorf("failed to write fixture: %w", err)
		}
		log.Infof("Wrote %s", path)
	}

	if c.symbols != nil {
		path := filepath.Join(c.config.OutputDir, "symbols.txt")
		if err := writeFile(path, func(w io.Writer) error {
			return writeSymbols(w, c.symbols)
		}); err != nil {
			return fmt.Errorf("failed to write symbol map: %w", err)
		}
	}
	return nil
}

func dotFileName(function string) string {
	return strings.ReplaceAll(function, string(filepath.Separator), "_") + ".dot"
}

func fixtureFileName(format string) string {
	switch format {
	case FixtureYAML:
		return "cfg.yaml"
	case FixtureMsgpackZstd:
		return "cfg.msgpack.zst"
	default:
		return "cfg.msgpack"
	}
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (v T, err error) {
	f, err := os.Open(path)
	if err != nil {
		return v, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	return read(f)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	return write(f)
}
