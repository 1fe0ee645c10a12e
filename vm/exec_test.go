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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/record"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// seedTable opens a fresh root and inserts rows (10, "ten") and
// (5, "five") via the raw backend, outside any Program, to set up
// fixtures for the cursor-deferral test.
func seedTable(t *testing.T, conn *Conn) int64 {
	t.Helper()
	require.NoError(t, conn.Backend.Begin())
	root, err := conn.Backend.CreateRoot()
	require.NoError(t, err)
	cur, err := conn.Backend.OpenCursor(root, true)
	require.NoError(t, err)
	require.NoError(t, cur.Insert(rowidKey(10), record.Encode([]record.Value{record.NewText("ten")})))
	require.NoError(t, cur.Insert(rowidKey(5), record.Encode([]record.Value{record.NewText("five")})))
	require.NoError(t, cur.Close())
	require.NoError(t, conn.Backend.Commit())
	return root
}

// TestMoveToDeferralIssuesExactlyTwoSeeks matches spec §8 scenario 4:
// seek 10, read, seek 5, read must each resolve to the correct row
// via the deferred-move mechanism (the seek itself is only performed
// when a read actually needs it).
func TestMoveToDeferralIssuesExactlyTwoSeeks(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	root := seedTable(t, conn)

	require.NoError(conn.Backend.Begin())
	c, err := openCursor(conn.Backend, root, false, true, nil)
	require.NoError(err)

	c.deferMoveToRowid(10)
	v, err := c.column(0)
	require.NoError(err)
	require.Equal("ten", v.Str)

	c.deferMoveToRowid(5)
	v, err = c.column(0)
	require.NoError(err)
	require.Equal("five", v.Str)

	require.NoError(c.close())
	require.NoError(conn.Backend.Rollback())
}

func TestDeferredSeekOfMissingRowidAdvancesAndInvalidates(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	root := seedTable(t, conn)

	require.NoError(conn.Backend.Begin())
	c, err := openCursor(conn.Backend, root, false, true, nil)
	require.NoError(err)

	c.deferMoveToRowid(7) // between 5 and 10, not present
	found, err := c.resolveDeferred()
	require.NoError(err)
	require.False(found)
	require.False(c.rowidValid)

	require.NoError(c.close())
	require.NoError(conn.Backend.Rollback())
}

func TestInsertAndScanProgram(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)

	require.NoError(conn.Backend.Begin())
	root, err := conn.Backend.CreateRoot()
	require.NoError(err)
	require.NoError(conn.Backend.Commit())

	// Program 1: insert a single row (1, "hello").
	ins := Create(conn)
	_, err = ins.AddOp(OpTransaction, 0, 1)
	require.NoError(err)
	_, err = ins.AddOp(OpOpenWrite, 0, int(root))
	require.NoError(err)
	_, err = ins.AddOp(OpInteger, 1, 1) // r1 = 1 (rowid)
	require.NoError(err)
	_, err = ins.AddOp(OpString, 0, 2) // r2 will be overwritten below with P3
	require.NoError(err)
	ins.ChangeP3(len(ins.ops)-1, "hello", P3Dynamic)
	_, err = ins.AddOp(OpMakeRecord, 2, 1)
	require.NoError(err)
	ins.ChangeP3(len(ins.ops)-1, 3, P3NotUsed) // args: start=2, count=1, dest=reg3
	_, err = ins.Op3(OpInsert, 0, 1, 3, P3NotUsed)
	require.NoError(err)
	_, err = ins.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(ins.MakeReady(0, false))

	res, err := ins.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultDone, res)
	_, err = ins.Finalize(nil)
	require.NoError(err)

	// Program 2: scan and fetch the one row back out.
	scan := Create(conn)
	_, err = scan.AddOp(OpOpenRead, 0, int(root))
	require.NoError(err)
	rewindLbl := scan.MakeLabel()
	_, err = scan.AddOp(OpRewind, 0, rewindLbl)
	require.NoError(err)
	_, err = scan.Op3(OpColumn, 0, 0, 1, P3NotUsed)
	require.NoError(err)
	_, err = scan.AddOp(OpResultRow, 1, 1)
	require.NoError(err)
	_, err = scan.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(scan.ResolveLabel(rewindLbl))
	_, err = scan.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(scan.MakeReady(0, false))

	res, err = scan.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultRow, res)
	row := scan.ResultRow()
	require.Equal("hello", row[0].String())
}

// TestIdxOpcodesInsertSeekDelete exercises OpIdxInsert/OpIdxGE/
// OpIdxRowid/OpIdxDelete directly against a hand-built index cursor, in
// the single-combined-record key shape compiler/index.go's codegen
// produces: record.Encode([declared columns..., rowid]) stored with a
// nil payload. No compiler path emits OpIdxGE itself (CompileSelect has
// no index-accelerated lookup), so this is the opcode's only exercise.
func TestIdxOpcodesInsertSeekDelete(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)

	require.NoError(conn.Backend.Begin())
	root, err := conn.Backend.CreateRoot()
	require.NoError(err)
	require.NoError(conn.Backend.Commit())

	ki := &record.KeyInfo{NFields: 1}

	ins := Create(conn)
	_, err = ins.AddOp(OpTransaction, 0, 1)
	require.NoError(err)
	_, err = ins.Op3(OpOpenWrite, 0, int(root), ki, P3KeyInfo)
	require.NoError(err)
	_, err = ins.Op3(OpString, 0, 1, "bob", P3Static) // r1 = indexed column value
	require.NoError(err)
	_, err = ins.AddOp(OpInteger, 42, 2) // r2 = rowid
	require.NoError(err)
	_, err = ins.Op3(OpMakeRecord, 1, 2, 3, P3NotUsed) // r3 = key(r1, r2)
	require.NoError(err)
	_, err = ins.Op3(OpIdxInsert, 0, 0, 3, P3NotUsed)
	require.NoError(err)
	_, err = ins.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(ins.MakeReady(0, false))
	res, err := ins.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultDone, res)
	_, err = ins.Finalize(nil)
	require.NoError(err)

	// Re-derive the same key (same column value, same rowid — the
	// candidate, not the stored entry) and seek/read/delete through it.
	probe := Create(conn)
	_, err = probe.Op3(OpOpenWrite, 0, int(root), ki, P3KeyInfo)
	require.NoError(err)
	_, err = probe.Op3(OpString, 0, 1, "bob", P3Static)
	require.NoError(err)
	_, err = probe.AddOp(OpInteger, 42, 2)
	require.NoError(err)
	_, err = probe.Op3(OpMakeRecord, 1, 2, 3, P3NotUsed)
	require.NoError(err)
	notFound := probe.MakeLabel()
	_, err = probe.Op3(OpIdxGE, 0, notFound, 3, P3NotUsed)
	require.NoError(err)
	_, err = probe.AddOp(OpIdxRowid, 0, 4)
	require.NoError(err)
	_, err = probe.AddOp(OpResultRow, 4, 1)
	require.NoError(err)
	_, err = probe.Op3(OpIdxDelete, 0, 0, 3, P3NotUsed)
	require.NoError(err)
	_, err = probe.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(probe.ResolveLabel(notFound))
	_, err = probe.AddOp(OpHalt, 1, 0)
	require.NoError(err)
	require.NoError(probe.MakeReady(0, false))

	res, err = probe.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultRow, res)
	row := probe.ResultRow()
	require.Equal(int64(42), row[0].Int)
	res, err = probe.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultDone, res)
	_, err = probe.Finalize(nil)
	require.NoError(err)

	// The entry is gone: a rescan from the top finds nothing.
	rescan := Create(conn)
	_, err = rescan.Op3(OpOpenRead, 0, int(root), ki, P3KeyInfo)
	require.NoError(err)
	empty := rescan.MakeLabel()
	_, err = rescan.AddOp(OpRewind, 0, empty)
	require.NoError(err)
	_, err = rescan.AddOp(OpHalt, 1, 0)
	require.NoError(err)
	require.NoError(rescan.ResolveLabel(empty))
	_, err = rescan.AddOp(OpHalt, 0, 0)
	require.NoError(err)
	require.NoError(rescan.MakeReady(0, false))
	res, err = rescan.Step()
	require.NoError(err)
	require.Equal(sqlerr.ResultDone, res)
}
