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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

func newTestTable(name string) *Table {
	t := NewTable(name)
	t.Columns = []Column{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "val", Type: "TEXT"}}
	t.PKColumn = 0
	return t
}

func TestInsertAndFindTableCaseInsensitive(t *testing.T) {
	require := require.New(t)
	c := New()
	require.NoError(c.InsertTable(newTestTable("Users")))

	got, ok := c.FindTable("users")
	require.True(ok)
	require.Equal("Users", got.Name)

	_, ok = c.FindTable("nope")
	require.False(ok)
}

func TestInsertTableDuplicateIsConstraintError(t *testing.T) {
	require := require.New(t)
	c := New()
	require.NoError(c.InsertTable(newTestTable("t")))
	err := c.InsertTable(newTestTable("T"))
	require.Error(err)
	require.True(sqlerr.IsConstraint(err))
}

func TestIndexAndTableNamesShareNamespace(t *testing.T) {
	require := require.New(t)
	c := New()
	require.NoError(c.InsertTable(newTestTable("dup")))
	idx := NewIndex("dup", newTestTable("other"), []int{0})
	err := c.InsertIndex(idx)
	require.Error(err)
	require.True(sqlerr.IsConstraint(err))
}

func TestRemoveTableDropsOwnedIndexes(t *testing.T) {
	require := require.New(t)
	c := New()
	tbl := newTestTable("t")
	require.NoError(c.InsertTable(tbl))
	require.NoError(c.InsertIndex(NewIndex("idx_val", tbl, []int{1})))

	_, err := c.RemoveTable("t")
	require.NoError(err)
	_, ok := c.FindTable("t")
	require.False(ok)
	_, ok = c.FindIndex("idx_val")
	require.False(ok)
}

// TestRollbackRestoresDroppedEntries matches spec §8 scenario 5: a
// rollback must leave the schema unchanged.
func TestRollbackRestoresDroppedEntries(t *testing.T) {
	require := require.New(t)
	c := New()
	tbl := newTestTable("t")
	require.NoError(c.InsertTable(tbl))
	require.NoError(c.InsertIndex(NewIndex("idx_val", tbl, []int{1})))

	before, err := c.SchemaCookie()
	require.NoError(err)

	_, err = c.RemoveTable("t")
	require.NoError(err)
	c.RollbackDrops()

	_, ok := c.FindTable("t")
	require.True(ok)
	_, ok = c.FindIndex("idx_val")
	require.True(ok)

	after, err := c.SchemaCookie()
	require.NoError(err)
	require.Equal(before, after)
}

func TestCommitDropsDiscardsRestoreOption(t *testing.T) {
	require := require.New(t)
	c := New()
	require.NoError(c.InsertTable(newTestTable("t")))
	_, err := c.RemoveTable("t")
	require.NoError(err)
	c.CommitDrops()
	c.RollbackDrops() // no-op: nothing left to restore
	_, ok := c.FindTable("t")
	require.False(ok)
}

func TestSchemaCookieChangesOnMutation(t *testing.T) {
	require := require.New(t)
	c := New()
	before, err := c.SchemaCookie()
	require.NoError(err)
	require.NoError(c.InsertTable(newTestTable("t")))
	after, err := c.SchemaCookie()
	require.NoError(err)
	require.NotEqual(before, after)
}
