// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/propeller/internal/controller"

// ExitParseError is returned for invalid command line usage, matching the
// exit code of the flag package.
const ExitParseError = 2

// ErrorWithExitCode provides an error with an exit code
// Used to be able to return errors with the exit code the CLI is expected to
// return when exiting.
type ErrorWithExitCode struct {
	error
	code int
}

func (e ErrorWithExitCode) Code() int {
	return e.code
}

func (e ErrorWithExitCode) Unwrap() error {
	return e.error
}

func usageError(err error) error {
	return ErrorWithExitCode{error: err, code: ExitParseError}
}
