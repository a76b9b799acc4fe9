// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/propeller/internal/controller"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"propeller"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestParseArgs(t *testing.T) {
	config := filepath.Join(t.TempDir(), "propeller.conf")
	require.NoError(t, os.WriteFile(config, []byte("parallelism 3\nout /tmp/cfg\n"), 0o600))

	withArgs(t, "-bb-addr-map", "map.yaml", "-fixture-format", "yaml", "-v",
		"-config", config)
	t.Setenv("PROPELLER_BRANCH_PROFILE", "branches.txt")
	t.Setenv("PROPELLER_METRICS_INTERVAL", "2s")

	args, err := parseArgs()
	require.NoError(t, err)

	assert.Equal(t, "map.yaml", args.BBAddrMapPath)
	assert.Equal(t, "branches.txt", args.BranchProfile)
	assert.Equal(t, controller.FixtureYAML, args.FixtureFormat)
	assert.Equal(t, "/tmp/cfg", args.OutputDir)
	assert.Equal(t, 3, args.Parallelism)
	assert.Equal(t, 2*time.Second, args.MetricsInterval)
	assert.Equal(t, defaultArgHotReportSize, args.HotReportSize)
	assert.True(t, args.VerboseMode)
	assert.NoError(t, args.Validate())
}
