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
	"strconv"
	"strings"

	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// BoundValues is the minimal view Expand needs of a prepared program's
// host parameters — satisfied directly by *vm.Program, kept as an
// interface so a caller can expand against a hand-built parameter set
// in tests without a live program.
type BoundValues interface {
	NumVars() int
	BoundVar(i int) vm.Cell
}

// Expand substitutes every `?`/`?N` host-parameter marker in sql with
// a literal form of its value from params (spec §4.7). Unnumbered `?`
// tokens auto-increment from the last seen index, matching sqlite's
// own numbering rule; occurrences inside string/identifier literals
// and comments (per classifier) are left untouched. classifier may be
// nil, in which case DefaultClassifier is used.
func Expand(sql string, params BoundValues, classifier Classifier) (string, error) {
	if classifier == nil {
		classifier = DefaultClassifier{}
	}
	var out strings.Builder
	nextAuto := 1
	i := 0
	for i < len(sql) {
		if sql[i] != '?' {
			class, n := classifier.Classify(sql, i)
			if class != TokenOther {
				out.WriteString(sql[i : i+n])
				i += n
				continue
			}
			out.WriteByte(sql[i])
			i++
			continue
		}

		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		idx := nextAuto
		if j > i+1 {
			n, err := strconv.Atoi(sql[i+1 : j])
			if err != nil {
				return "", sqlerr.ErrMisuse.New("malformed host parameter marker")
			}
			idx = n
		}
		if idx < 1 || idx > params.NumVars() {
			return "", sqlerr.ErrRange.New()
		}
		out.WriteString(renderLiteral(params.BoundVar(idx)))
		nextAuto = idx + 1
		i = j
	}
	return out.String(), nil
}
