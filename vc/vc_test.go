// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkTimeValues(t *testing.T) {
	defer func(r, b, v string) {
		revision, buildTimestamp, version = r, b, v
	}(revision, buildTimestamp, version)

	revision, buildTimestamp, version = "abc123", "2024-01-02T03:04:05Z", "v1.2.3"
	assert.Equal(t, "abc123", Revision())
	assert.Equal(t, "2024-01-02T03:04:05Z", BuildTimestamp())
	assert.Equal(t, "v1.2.3", Version())

	version = ""
	assert.NotEmpty(t, Version())
}
