// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlerr defines the closed set of program-visible error kinds
// shared by the compiler, virtual machine, catalog, and storage layer.
//
// Every kind is a *errors.Kind from gopkg.in/src-d/go-errors.v1, the
// same error-kind library used elsewhere in this codebase's lineage
// (see auth.ErrNotAuthorized). Callers construct an error with
// Kind.New(args...) and classify one with Kind.Is(err).
package sqlerr

import errors "gopkg.in/src-d/go-errors.v1"

// Kinds, in the order spec §7 lists them. "Ok", "Row", and "Done" are
// not constructed as errors (they are success/continuation signals
// threaded through Result, not *errors.Kind values) but are named here
// for completeness against the enumeration.
var (
	ErrGeneric    = errors.NewKind("%s")
	ErrInternal   = errors.NewKind("internal error: %s")
	ErrPermission = errors.NewKind("access permission denied")
	ErrAbort      = errors.NewKind("callback requested query abort")
	ErrBusy       = errors.NewKind("database is locked")
	ErrLocked     = errors.NewKind("database table is locked")
	ErrNoMem      = errors.NewKind("out of memory")
	ErrReadOnly   = errors.NewKind("attempt to write a readonly database")
	ErrInterrupt  = errors.NewKind("interrupted")
	ErrIOErr      = errors.NewKind("disk I/O error: %s")
	ErrCorrupt    = errors.NewKind("database disk image is malformed")
	ErrNotFound   = errors.NewKind("%s not found")
	ErrFull       = errors.NewKind("database or disk is full")
	ErrCannotOpen = errors.NewKind("unable to open database file: %s")
	ErrProtocol   = errors.NewKind("locking protocol error")
	ErrEmpty      = errors.NewKind("table contains no data")
	ErrSchema     = errors.NewKind("database schema has changed")
	ErrTooBig     = errors.NewKind("string or blob too big")
	ErrConstraint = errors.NewKind("constraint failed: %s")
	ErrMismatch   = errors.NewKind("datatype mismatch")
	ErrMisuse     = errors.NewKind("bad parameter or other API misuse: %s")
	ErrRange      = errors.NewKind("bind or column index out of range")
)

// Result is the program-visible result code returned by Step, Reset,
// and Finalize. Unlike the error Kinds above, Ok/Row/Done are not
// errors: a caller checks Result before consulting an accompanying
// error value.
type Result int

const (
	ResultOK Result = iota
	ResultRow
	ResultDone
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultRow:
		return "row"
	case ResultDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsBusy reports whether err was produced by ErrBusy or ErrLocked —
// the two kinds a caller's busy-handler callback is expected to retry.
func IsBusy(err error) bool {
	return ErrBusy.Is(err) || ErrLocked.Is(err)
}

// IsConstraint reports whether err is a constraint-violation error.
func IsConstraint(err error) bool {
	return ErrConstraint.Is(err)
}

// IsSchemaChanged reports whether err indicates the in-memory catalog
// is stale and a re-prepare is required.
func IsSchemaChanged(err error) bool {
	return ErrSchema.Is(err)
}

// IsMisuse reports whether err indicates a lifecycle-contract
// violation (e.g. binding outside RUN, stepping a finalized program).
func IsMisuse(err error) bool {
	return ErrMisuse.Is(err)
}
