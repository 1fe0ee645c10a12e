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

package vm

import (
	"encoding/binary"

	"github.com/tursodatabase/libsql-sub000/record"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/storage"
)

// vmCursor wraps a storage.Cursor with the extra state spec §3's
// "Cursor" entity names: deferred-move target, rowid-valid flag,
// key-info for non-integer (index) keys, and a per-row decode cache.
type vmCursor struct {
	raw      storage.Cursor
	root     int64
	intKey   bool // true for a table (rowid) cursor, false for an index cursor
	keyInfo  *record.KeyInfo
	writable bool

	deferredRowid int64
	deferred      bool

	lastRowid  int64
	rowidValid bool

	rowCache    []record.Value
	rowCacheOK  bool
}

func openCursor(backend storage.Backend, root int64, writable, intKey bool, ki *record.KeyInfo) (*vmCursor, error) {
	raw, err := backend.OpenCursor(root, writable)
	if err != nil {
		return nil, err
	}
	return &vmCursor{raw: raw, root: root, intKey: intKey, keyInfo: ki, writable: writable}, nil
}

func (c *vmCursor) close() error {
	return c.raw.Close()
}

func rowidKey(rowid int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rowid))
	return buf
}

// deferMoveToRowid records the target without touching storage yet
// (spec §4.6 "Cursor-move deferral"): the seek happens lazily, at the
// next read, so two seeks issued back-to-back without an intervening
// read never cost more than one underlying B-tree operation.
func (c *vmCursor) deferMoveToRowid(rowid int64) {
	c.deferredRowid = rowid
	c.deferred = true
	c.rowidValid = false
	c.rowCacheOK = false
}

// resolveDeferred performs the actual seek if one is pending. After
// the seek, if the target rowid was not present the cursor advances
// to the next greater row and rowidValid is left false, matching
// spec §4.6 exactly.
func (c *vmCursor) resolveDeferred() (found bool, err error) {
	if !c.deferred {
		return c.rowidValid, nil
	}
	c.deferred = false
	res, err := c.raw.Moveto(rowidKey(c.deferredRowid), false)
	if err != nil {
		return false, err
	}
	if res == storage.MoveExact {
		c.lastRowid = c.deferredRowid
		c.rowidValid = true
		c.rowCacheOK = false
		return true, nil
	}
	// Not present: the cursor rests on the next greater row, rowid
	// considered invalid for the purpose of NotExists branching. A
	// MoveGreater result already sits there; only MoveLess needs a step.
	if res == storage.MoveNotFound {
		c.rowidValid = false
		return false, nil
	}
	if res == storage.MoveLess {
		if _, err := c.raw.Next(); err != nil {
			return false, err
		}
	}
	c.rowidValid = false
	c.rowCacheOK = false
	return false, nil
}

func (c *vmCursor) first() (bool, error) {
	c.deferred = false
	c.rowCacheOK = false
	ok, err := c.raw.First()
	c.rowidValid = ok
	return ok, err
}

func (c *vmCursor) next() (bool, error) {
	c.deferred = false
	c.rowCacheOK = false
	ok, err := c.raw.Next()
	c.rowidValid = ok
	return ok, err
}

func (c *vmCursor) prev() (bool, error) {
	c.deferred = false
	c.rowCacheOK = false
	ok, err := c.raw.Prev()
	c.rowidValid = ok
	return ok, err
}

// row decodes (and caches) the current position's record row: the
// data payload for a table cursor, or the key itself for an index
// cursor (an index entry's "row" is its encoded key, stored with a
// nil data payload by insertIndexEntry). The cache is invalidated by
// any cursor movement.
func (c *vmCursor) row() ([]record.Value, error) {
	if _, err := c.resolveDeferred(); err != nil {
		return nil, err
	}
	if c.rowCacheOK {
		return c.rowCache, nil
	}
	var data []byte
	var err error
	if c.intKey {
		data, err = c.raw.Data()
	} else {
		data, err = c.raw.Key()
	}
	if err != nil {
		return nil, err
	}
	row, err := record.Decode(data)
	if err != nil {
		return nil, err
	}
	c.rowCache, c.rowCacheOK = row, true
	return row, nil
}

func (c *vmCursor) column(i int) (record.Value, error) {
	row, err := c.row()
	if err != nil {
		return record.Value{}, err
	}
	if i < 0 || i >= len(row) {
		return record.Null, nil
	}
	return row[i], nil
}

func (c *vmCursor) rowid() (int64, error) {
	if _, err := c.resolveDeferred(); err != nil {
		return 0, err
	}
	if !c.rowidValid {
		key, err := c.raw.Key()
		if err != nil {
			return 0, err
		}
		if len(key) != 8 {
			return 0, sqlerr.ErrCorrupt.New()
		}
		c.lastRowid = int64(binary.BigEndian.Uint64(key))
		c.rowidValid = true
	}
	return c.lastRowid, nil
}

func (c *vmCursor) insertRow(rowid int64, row []record.Value) error {
	c.rowCacheOK = false
	return c.raw.Insert(rowidKey(rowid), record.Encode(row))
}

func (c *vmCursor) deleteCurrent() error {
	c.rowCacheOK = false
	return c.raw.Delete()
}

func (c *vmCursor) insertIndexEntry(key []byte) error {
	c.rowCacheOK = false
	return c.raw.Insert(key, nil)
}

// deleteIndexEntry removes the index entry with the given encoded key
// (built the same way insertIndexEntry built it: declared columns
// plus the trailing rowid field, one record.Encode call). key columns
// plus rowid together are always unique per row, so an exact bytewise
// seek either lands on this row's own entry or finds nothing.
func (c *vmCursor) deleteIndexEntry(key []byte) error {
	res, err := c.raw.Moveto(key, false)
	if err != nil {
		return err
	}
	if res != storage.MoveExact {
		return nil
	}
	c.rowCacheOK = false
	return c.raw.Delete()
}

// seekGE seeks an index cursor to the first key >= probe (OpIdxGE).
// storage.Cursor.Moveto is a plain bytewise comparison (see
// boltCursor.Moveto) that does not consult keyInfo, so the landing
// position is only a hint for callers comparing multi-column or
// variable-width keys; an exact-length bytewise probe (as used here
// and by deleteIndexEntry) is unaffected by that limitation since it
// either matches byte-for-byte or it doesn't.
func (c *vmCursor) seekGE(probe []byte) (bool, error) {
	c.deferred = false
	c.rowCacheOK = false
	c.rowidValid = false
	res, err := c.raw.Moveto(probe, false)
	if err != nil {
		return false, err
	}
	return res != storage.MoveNotFound, nil
}

// idxRowid extracts the rowid field trailing an index cursor's
// current key (OpIdxRowid), using the cursor's own keyInfo for the
// declared-column count RowidFromIndexKey needs.
func (c *vmCursor) idxRowid() (int64, error) {
	key, err := c.raw.Key()
	if err != nil {
		return 0, err
	}
	n := 0
	if c.keyInfo != nil {
		n = c.keyInfo.NFields
	}
	return record.RowidFromIndexKey(key, n)
}
