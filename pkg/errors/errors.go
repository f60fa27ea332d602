// Package errors re-exports github.com/cockroachdb/errors for the report
// pipeline and CLI: stack traces on creation, wrapping, and user-facing
// hints that the CLI prints under the error message.
//
//	if err := load(); err != nil {
//	    return errors.WithHint(errors.Wrap(err, "load sales"), "check the CSV header row")
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New   = crdb.New
	Newf  = crdb.Newf
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
)

var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
)

var (
	Is = crdb.Is
	As = crdb.As
)
