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

// Package record implements the typed record codec (C3): per-column
// serial-type encoding, comparison honoring collation and sort order,
// and index-key/rowid decomposition. The VM's MakeRecord opcode uses
// it to build both table rows and index keys; storage cursors order
// keys bytewise and do not call into this package.
package record

import "github.com/spf13/cast"

// Kind is a value's storage class, independent of its column's
// declared type.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is a single column's runtime value, tagged by Kind. Exactly
// one of {Int, Real, Str, Bytes} is meaningful for a given Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Real  float64
	Str   string
	Bytes []byte
}

// Null is the shared NULL value.
var Null = Value{Kind: KindNull}

func NewInt(v int64) Value   { return Value{Kind: KindInt, Int: v} }
func NewReal(v float64) Value { return Value{Kind: KindReal, Real: v} }
func NewText(v string) Value  { return Value{Kind: KindText, Str: v} }
func NewBlob(v []byte) Value  { return Value{Kind: KindBlob, Bytes: v} }

func (v Value) IsNull() bool     { return v.Kind == KindNull }
func (v Value) IsNumeric() bool  { return v.Kind == KindInt || v.Kind == KindReal }

// AsFloat64 coerces a numeric value to float64. Non-numeric callers
// must not invoke this; it is a coercion helper for comparison only.
func (v Value) AsFloat64() float64 {
	if v.Kind == KindReal {
		return v.Real
	}
	return float64(v.Int)
}

// CoerceToInt best-effort converts an arbitrary bound/literal value to
// an int64, as needed when a host parameter or literal of one storage
// class is consumed where an INTEGER is expected (e.g. a text literal
// bound against an INTEGER PRIMARY KEY column's default). It never
// fails the statement outright: an unconvertible value yields 0, the
// same permissive behavior the column-affinity rules of the spec's
// record codec assume of the caller.
func CoerceToInt(v Value) int64 {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindReal:
		return int64(v.Real)
	case KindText:
		i, err := cast.ToInt64E(v.Str)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// CoerceToFloat64 is CoerceToInt's real-valued counterpart.
func CoerceToFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindReal:
		return v.Real
	case KindText:
		f, err := cast.ToFloat64E(v.Str)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
