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

// Opcode names one instruction of the abstract machine (spec §4.6).
// The compiler (C5) emits these; the set here is the subset the
// execution loop in exec.go actually dispatches — enough to run
// CREATE/DROP, DML, and non-correlated SELECT programs including
// IN-set membership via the row-hash engine.
type Opcode int

const (
	OpNoop Opcode = iota
	OpInit
	OpGoto
	OpHalt

	OpTransaction
	OpOpenRead
	OpOpenWrite
	OpOpenEphemeral
	OpClose

	OpRewind
	OpNext
	OpPrev
	OpSeekRowid // deferred move-to-rowid (spec §4.6 "Cursor-move deferral")
	OpNotExists // jump p2 if the deferred/seeked rowid was not found

	OpColumn
	OpRowid
	OpResultRow

	OpNull
	OpInteger
	OpReal
	OpString
	OpBlob
	OpVariable // read bound host parameter p1 into register p2
	OpMove     // copy register p1 into p2
	OpSCopy    // shallow copy, no ownership transfer

	OpMakeRecord
	OpNewRowid
	OpInsert
	OpDeleteRow

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	OpIf
	OpIfNot
	OpIfZero

	OpAdd
	OpSubtract
	OpMultiply

	OpAggStep
	OpAggFinal
	OpAggReset

	OpIdxInsert
	OpIdxDelete
	OpIdxGE // seek an index cursor to the first key >= p3, jump p2 if none
	OpIdxRowid

	OpFunction // call a registered scalar function

	OpInSet // row-hash-backed IN-list membership test (spec §4.4, §8 scenario 2)

	// DDL opcodes: the catalog mutation and the storage-root allocation
	// happen together, inside the same statement-level transaction the
	// rest of the program runs under, so a rollback undoes both.
	OpCreateTable // P3 = *catalog.Table (RootPage unset); allocates a root and registers it
	OpCreateIndex // P3 = *catalog.Index (RootPage unset); allocates a root and registers it
	OpDropTable   // P3 = table name (string); destroys its root and every owned index's root
	OpDropIndex   // P3 = index name (string); destroys its root
	OpCreateTrigger // P3 = *ast.Trigger; registers it on its owning table, no storage root involved
	OpDropTrigger   // P3 = trigger name (string)
	OpParseSchema // no-op when executed; reloading the catalog after a schema-changed error is left to the caller

	OpAnalyze // P3 = table name (string), "" means every table (SPEC_FULL.md §C)

	opcodeCount
)

var mnemonics = [opcodeCount]string{
	OpNoop:          "Noop",
	OpInit:          "Init",
	OpGoto:          "Goto",
	OpHalt:          "Halt",
	OpTransaction:   "Transaction",
	OpOpenRead:      "OpenRead",
	OpOpenWrite:     "OpenWrite",
	OpOpenEphemeral: "OpenEphemeral",
	OpClose:         "Close",
	OpRewind:        "Rewind",
	OpNext:          "Next",
	OpPrev:          "Prev",
	OpSeekRowid:     "SeekRowid",
	OpNotExists:     "NotExists",
	OpColumn:        "Column",
	OpRowid:         "Rowid",
	OpResultRow:     "ResultRow",
	OpNull:          "Null",
	OpInteger:       "Integer",
	OpReal:          "Real",
	OpString:        "String",
	OpBlob:          "Blob",
	OpVariable:      "Variable",
	OpMove:          "Move",
	OpSCopy:         "SCopy",
	OpMakeRecord:    "MakeRecord",
	OpNewRowid:      "NewRowid",
	OpInsert:        "Insert",
	OpDeleteRow:     "Delete",
	OpEq:            "Eq",
	OpNe:            "Ne",
	OpLt:            "Lt",
	OpLe:            "Le",
	OpGt:            "Gt",
	OpGe:            "Ge",
	OpIf:            "If",
	OpIfNot:         "IfNot",
	OpIfZero:        "IfZero",
	OpAdd:           "Add",
	OpSubtract:      "Subtract",
	OpMultiply:      "Multiply",
	OpAggStep:       "AggStep",
	OpAggFinal:      "AggFinal",
	OpAggReset:      "AggReset",
	OpIdxInsert:     "IdxInsert",
	OpIdxDelete:     "IdxDelete",
	OpIdxGE:         "IdxGE",
	OpIdxRowid:      "IdxRowid",
	OpFunction:      "Function",
	OpInSet:         "InSet",
	OpCreateTable:   "CreateTable",
	OpCreateIndex:   "CreateIndex",
	OpDropTable:     "DropTable",
	OpDropIndex:     "DropIndex",
	OpCreateTrigger: "CreateTrigger",
	OpDropTrigger:   "DropTrigger",
	OpParseSchema:   "ParseSchema",
	OpAnalyze:       "Analyze",
}

func (op Opcode) String() string {
	if op < 0 || int(op) >= len(mnemonics) || mnemonics[op] == "" {
		return "Unknown"
	}
	return mnemonics[op]
}

// P3Type tags the dynamic ownership of an opcode's P3 operand (spec
// §4.6 / §9 "Opcode P3 with multi-kind ownership tag").
type P3Type int

const (
	P3NotUsed P3Type = iota
	P3Static
	P3Dynamic
	P3Pointer
	P3Collation
	P3KeyInfo
)

// Op is one compiled instruction.
type Op struct {
	Opcode Opcode
	P1     int
	P2     int
	P3     interface{}
	P3Type P3Type
}
