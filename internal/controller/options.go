// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

import (
	"io"

	"go.opentelemetry.io/propeller/instmap"
)

type Option interface {
	applyOption(*Controller) *Controller
}
type controllerOptionFunc func(*Controller) *Controller

func (f controllerOptionFunc) applyOption(c *Controller) *Controller {
	return f(c)
}

// WithReportWriter sets the destination of the hot function report.
// This defaults to os.Stdout.
func WithReportWriter(w io.Writer) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.reportOut = w
		return c
	})
}

// WithResolver sets the inline stack resolver used for instruction maps
// instead of reading DWARF from Config.BinaryPath. The resolver must be safe
// for concurrent use.
func WithResolver(r instmap.InlineStackResolver) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.resolver = r
		return c
	})
}
