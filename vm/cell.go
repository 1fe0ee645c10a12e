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

// Package vm implements the virtual machine (C6): a register-based
// bytecode interpreter that runs a compiled Program against cursors
// opened over a storage.Backend (spec §4.6).
package vm

// CellFlag is one bit of a memory cell's type/ownership tag (spec §3
// "Memory cell"). Flags combine: a cell holding a string is always
// exactly one of {Null, Int, Real, Str, Blob} plus exactly one of
// {Static, Dyn, Short} when it is Str or Blob, except a zero-blob
// (FlagZeroBlob), which carries none of them.
type CellFlag uint16

const (
	FlagNull CellFlag = 1 << iota
	FlagInt
	FlagReal
	FlagStr
	FlagBlob
	FlagTerm // nul-terminated string payload
	FlagUtf8
	FlagUtf16LE
	FlagUtf16BE
	FlagStatic   // caller-owned, never freed by the cell
	FlagDyn      // heap-owned, this cell's responsibility to release
	FlagShort    // payload small enough to live inline
	FlagAggCtx   // cell holds an *aggState rather than a scalar
	FlagZeroBlob // Blob cell whose payload is Int zero bytes, materialized lazily
)

// nbfs is the inline short-string/blob threshold (spec §3's NBFS).
const nbfs = 24

// Cell is one memory-cell slot: the VM's register, operand-stack
// entry, and host-parameter storage are all Cell arrays.
type Cell struct {
	Flags CellFlag
	Int   int64
	Real  float64
	Bytes []byte // Str or Blob payload; Short copies stay here too
	Agg   *aggState
}

// Release drops a cell back to Null, discarding any Dyn-owned
// payload first. Go's GC reclaims the backing array regardless, but
// Release still matters for the invariant that at most one of
// {Static, Dyn, Short} is set afterward: a fresh cell carries none.
func (c *Cell) Release() {
	if c.Flags&FlagAggCtx != 0 && c.Agg != nil {
		c.Agg = nil
	}
	*c = Cell{}
}

func (c *Cell) SetNull() {
	c.Release()
	c.Flags = FlagNull
}

func (c *Cell) SetInt(v int64) {
	c.Release()
	c.Flags = FlagInt
	c.Int = v
}

func (c *Cell) SetReal(v float64) {
	c.Release()
	c.Flags = FlagReal
	c.Real = v
}

// SetText stores a string payload. copy=false marks the bytes Static
// (caller guarantees they outlive the cell, e.g. source-text
// pointers); copy=true classifies by length into Short (inline) or
// Dyn (heap), per spec §3's memory-cell discipline.
func (c *Cell) SetText(s string, copy bool) {
	c.Release()
	c.Flags = FlagStr | FlagUtf8 | FlagTerm
	if !copy {
		c.Flags |= FlagStatic
		c.Bytes = []byte(s)
		return
	}
	b := []byte(s)
	if len(b) <= nbfs {
		c.Flags |= FlagShort
	} else {
		c.Flags |= FlagDyn
	}
	c.Bytes = b
}

func (c *Cell) SetBlob(b []byte, copy bool) {
	c.Release()
	c.Flags = FlagBlob
	if !copy {
		c.Flags |= FlagStatic
		c.Bytes = b
		return
	}
	cp := append([]byte(nil), b...)
	if len(cp) <= nbfs {
		c.Flags |= FlagShort
	} else {
		c.Flags |= FlagDyn
	}
	c.Bytes = cp
}

// SetZeroBlob binds a host parameter to a zero-filled blob of n bytes
// without materializing it, matching sqlite3_bind_zeroblob's use for
// incremental BLOB I/O (spec §4.7's "zeroblob(n)" literal form). The
// length is carried in Int; Bytes stays nil until something needs the
// real payload (cellToValue materializes it on read).
func (c *Cell) SetZeroBlob(n int64) {
	c.Release()
	c.Flags = FlagBlob | FlagZeroBlob
	c.Int = n
}

func (c *Cell) IsNull() bool { return c.Flags&FlagNull != 0 }

// Truthy implements the condition tests OpIf/OpIfNot consult: NULL
// and numeric zero are false, anything else is true.
func (c *Cell) Truthy() bool {
	switch {
	case c.Flags&FlagNull != 0:
		return false
	case c.Flags&FlagInt != 0:
		return c.Int != 0
	case c.Flags&FlagReal != 0:
		return c.Real != 0
	case c.Flags&FlagZeroBlob != 0:
		return c.Int != 0
	default:
		return len(c.Bytes) > 0
	}
}

// String renders a cell for EXPLAIN's p3-text column.
func (c *Cell) String() string {
	switch {
	case c.Flags&FlagNull != 0:
		return "NULL"
	case c.Flags&FlagInt != 0:
		return itoa(c.Int)
	case c.Flags&FlagReal != 0:
		return ftoa(c.Real)
	case c.Flags&FlagZeroBlob != 0:
		return "zeroblob(" + itoa(c.Int) + ")"
	default:
		return string(c.Bytes)
	}
}
