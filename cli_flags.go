// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"

	"go.opentelemetry.io/propeller/internal/controller"
)

const (
	// Default values for CLI flags
	defaultArgHotReportSize   = 20
	defaultArgMetricsInterval = 0 * time.Second
)

// Help strings for command line arguments
var (
	bbAddrMapHelp        = "Path of the basic block address map (YAML)."
	configHelp           = "Path of a config file with one flag per line."
	branchProfileHelp    = "Path of the aggregated branch/fallthrough profile."
	pprofProfileHelp     = "Optional pprof profile selecting the functions attributed to source."
	pprofSampleIndexHelp = "Index of the pprof sample value used as address count."
	binaryHelp           = "Binary with DWARF debug info used to attribute instructions to source lines."
	outputDirHelp        = "Directory for dot files, the CFG fixture and the source profile."
	fixtureFormatHelp    = fmt.Sprintf("Format of the written CFG fixture (%q, %q, %q). Empty disables it.",
		controller.FixtureMsgpack, controller.FixtureMsgpackZstd, controller.FixtureYAML)
	dotHelp               = "Write a dot file for every hot function."
	hotReportSizeHelp     = "Number of hottest functions to report. Zero reports all hot functions."
	parallelismHelp       = "Number of functions processed concurrently. Zero uses the number of CPUs."
	resolverCacheSizeHelp = "Number of inline stacks to cache. Zero derives the size from the program."
	metricsIntervalHelp   = "Interval for reporting process metrics. Zero disables them."
	verboseModeHelp       = "Enable verbose logging and debugging capabilities."
	versionHelp           = "Show version."
)

func parseArgs() (*controller.Config, error) {
	var args controller.Config

	fs := flag.NewFlagSet("propeller", flag.ExitOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.StringVar(&args.BBAddrMapPath, "bb-addr-map", "", bbAddrMapHelp)
	fs.StringVar(&args.BinaryPath, "binary", "", binaryHelp)
	fs.StringVar(&args.BranchProfile, "branch-profile", "", branchProfileHelp)

	fs.String("config", "", configHelp)

	fs.BoolVar(&args.WriteDot, "dot", false, dotHelp)

	fs.StringVar(&args.FixtureFormat, "fixture-format", controller.FixtureNone, fixtureFormatHelp)

	fs.IntVar(&args.HotReportSize, "hot-report-size", defaultArgHotReportSize, hotReportSizeHelp)

	fs.DurationVar(&args.MetricsInterval, "metrics-interval", defaultArgMetricsInterval,
		metricsIntervalHelp)

	fs.StringVar(&args.OutputDir, "out", "", outputDirHelp)

	fs.IntVar(&args.Parallelism, "parallelism", 0, parallelismHelp)
	fs.StringVar(&args.PprofProfile, "pprof-profile", "", pprofProfileHelp)
	fs.IntVar(&args.PprofSampleIndex, "pprof-sample-index", 0, pprofSampleIndexHelp)

	fs.UintVar(&args.ResolverCacheSize, "resolver-cache-size", 0, resolverCacheSizeHelp)

	fs.BoolVar(&args.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.Version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.Fs = fs

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PROPELLER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	)
}
