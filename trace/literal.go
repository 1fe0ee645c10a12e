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

package trace

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/tursodatabase/libsql-sub000/vm"
)

// renderLiteral is spec §4.7's six literal forms: NULL, a plain
// integer, a full-precision float, a single-quote-escaped string, an
// x'hex' blob, or zeroblob(n) for a bound zero-blob that was never
// materialized.
func renderLiteral(c vm.Cell) string {
	switch {
	case c.Flags&vm.FlagNull != 0:
		return "NULL"
	case c.Flags&vm.FlagInt != 0:
		return strconv.FormatInt(c.Int, 10)
	case c.Flags&vm.FlagReal != 0:
		return strconv.FormatFloat(c.Real, 'g', -1, 64)
	case c.Flags&vm.FlagZeroBlob != 0:
		return "zeroblob(" + strconv.FormatInt(c.Int, 10) + ")"
	case c.Flags&vm.FlagBlob != 0:
		return "x'" + hex.EncodeToString(c.Bytes) + "'"
	default:
		return quoteString(string(c.Bytes))
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(s, "'", "''"))
	b.WriteByte('\'')
	return b.String()
}
