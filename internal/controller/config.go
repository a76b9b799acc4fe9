// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

import (
	"errors"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Fixture formats accepted by Config.FixtureFormat.
const (
	FixtureNone        = ""
	FixtureMsgpack     = "msgpack"
	FixtureMsgpackZstd = "msgpack-zstd"
	FixtureYAML        = "yaml"
)

type Config struct {
	BBAddrMapPath string
	BranchProfile string
	PprofProfile  string
	// PprofSampleIndex selects the sample value used as address count.
	PprofSampleIndex int
	BinaryPath       string

	OutputDir     string
	FixtureFormat string
	WriteDot      bool
	HotReportSize int

	Parallelism       int
	ResolverCacheSize uint
	MetricsInterval   time.Duration

	VerboseMode bool
	Version     bool

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	if cfg.Fs == nil {
		return
	}
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.BBAddrMapPath == "" {
		return usageError(errors.New("no basic block address map given"))
	}
	if cfg.BranchProfile == "" {
		return usageError(errors.New("no branch profile given"))
	}
	switch cfg.FixtureFormat {
	case FixtureNone, FixtureMsgpack, FixtureMsgpackZstd, FixtureYAML:
	default:
		return usageError(fmt.Errorf("unknown fixture format %q", cfg.FixtureFormat))
	}
	if (cfg.FixtureFormat != FixtureNone || cfg.WriteDot) && cfg.OutputDir == "" {
		return usageError(errors.New("writing a fixture or dot files requires an output directory"))
	}
	if cfg.PprofSampleIndex < 0 {
		return usageError(fmt.Errorf("invalid pprof sample index %d", cfg.PprofSampleIndex))
	}
	if cfg.HotReportSize < 0 {
		return usageError(fmt.Errorf("invalid hot report size %d", cfg.HotReportSize))
	}
	if cfg.MetricsInterval < 0 {
		return usageError(fmt.Errorf("invalid metrics interval %v", cfg.MetricsInterval))
	}
	return nil
}
