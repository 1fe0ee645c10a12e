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

package record

import (
	"encoding/binary"
	"math"

	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// Serial-type codes, per spec §4.3.
const (
	SerialNull   uint64 = 6
	serialFirstN uint64 = 12 // first BLOB/TEXT serial type
)

// SerialType computes the serial-type tag and payload length for v,
// choosing the narrowest fixed-width integer encoding that represents
// it exactly.
func SerialType(v Value) (serialType uint64, payloadLen int) {
	switch v.Kind {
	case KindNull:
		return SerialNull, 0
	case KindInt:
		switch {
		case v.Int >= -(1<<7) && v.Int < (1<<7):
			return 1, 1
		case v.Int >= -(1<<15) && v.Int < (1<<15):
			return 2, 2
		case v.Int >= -(1<<31) && v.Int < (1<<31):
			return 3, 4
		default:
			return 4, 8
		}
	case KindReal:
		return 5, 8
	case KindBlob:
		return serialFirstN + 2*uint64(len(v.Bytes)), len(v.Bytes)
	case KindText:
		return serialFirstN + 1 + 2*uint64(len(v.Str)), len(v.Str)
	default:
		return 0, 0
	}
}

// putPayload appends v's payload bytes (big-endian for fixed-width
// numerics, the order decodeField reads them back in) to buf.
func putPayload(buf []byte, v Value, serialType uint64) []byte {
	switch v.Kind {
	case KindNull:
		return buf
	case KindInt:
		n := payloadSizeForIntSerial(serialType)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.Int))
		return append(buf, tmp[8-n:]...)
	case KindReal:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Real))
		return append(buf, tmp[:]...)
	case KindBlob:
		return append(buf, v.Bytes...)
	case KindText:
		return append(buf, []byte(v.Str)...)
	default:
		return buf
	}
}

func payloadSizeForIntSerial(serialType uint64) int {
	switch serialType {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 4
	default:
		return 8
	}
}

// decodeField decodes the payload bytes for a single serial type.
func decodeField(serialType uint64, payload []byte) (Value, error) {
	switch {
	case serialType == SerialNull:
		return Null, nil
	case serialType >= 1 && serialType <= 4:
		n := payloadSizeForIntSerial(serialType)
		if len(payload) < n {
			return Value{}, sqlerr.ErrCorrupt.New()
		}
		var tmp [8]byte
		copy(tmp[8-n:], payload[:n])
		u := binary.BigEndian.Uint64(tmp[:])
		// sign-extend from n bytes
		shift := uint(64 - 8*n)
		return NewInt(int64(u<<shift) >> shift), nil
	case serialType == 5:
		if len(payload) < 8 {
			return Value{}, sqlerr.ErrCorrupt.New()
		}
		bits := binary.BigEndian.Uint64(payload[:8])
		return NewReal(math.Float64frombits(bits)), nil
	case serialType >= serialFirstN && serialType%2 == 0:
		n := int((serialType - serialFirstN) / 2)
		if len(payload) < n {
			return Value{}, sqlerr.ErrCorrupt.New()
		}
		b := make([]byte, n)
		copy(b, payload[:n])
		return NewBlob(b), nil
	case serialType >= serialFirstN+1 && serialType%2 == 1:
		n := int((serialType - serialFirstN - 1) / 2)
		if len(payload) < n {
			return Value{}, sqlerr.ErrCorrupt.New()
		}
		return NewText(string(payload[:n])), nil
	default:
		return Value{}, sqlerr.ErrCorrupt.New()
	}
}

func fieldPayloadLen(serialType uint64) int {
	switch {
	case serialType == SerialNull:
		return 0
	case serialType >= 1 && serialType <= 4:
		return payloadSizeForIntSerial(serialType)
	case serialType == 5:
		return 8
	case serialType >= serialFirstN && serialType%2 == 0:
		return int((serialType - serialFirstN) / 2)
	case serialType >= serialFirstN+1:
		return int((serialType - serialFirstN - 1) / 2)
	default:
		return 0
	}
}

// Encode serializes row as: varint(header size, including itself) ++
// varint(serial type) per column ++ payload bytes per column, in
// column order. This is the format the VM's MakeRecord opcode
// produces for both table rows and index keys.
func Encode(row []Value) []byte {
	serials := make([]uint64, len(row))
	headerBody := 0
	for i, v := range row {
		st, _ := SerialType(v)
		serials[i] = st
		headerBody += varintLen(st)
	}
	// headerSize includes its own varint encoding; fixpoint-iterate
	// since the varint encoding of headerSize can itself grow the
	// header (rare, but possible near a varint length boundary).
	headerSize := headerBody + 1
	for {
		n := varintLen(uint64(headerSize))
		if n+headerBody == headerSize {
			break
		}
		headerSize = n + headerBody
	}

	out := make([]byte, headerSize)
	n := putVarint(out, uint64(headerSize))
	for _, st := range serials {
		n += putVarint(out[n:], st)
	}
	for i, v := range row {
		out = putPayload(out, v, serials[i])
	}
	return out
}

// Decode is Encode's inverse.
func Decode(data []byte) ([]Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	headerSize, n := getVarint(data)
	if n == 0 || uint64(len(data)) < headerSize {
		return nil, sqlerr.ErrCorrupt.New()
	}
	var serials []uint64
	for pos := n; uint64(pos) < headerSize; {
		st, m := getVarint(data[pos:])
		if m == 0 {
			return nil, sqlerr.ErrCorrupt.New()
		}
		serials = append(serials, st)
		pos += m
	}
	out := make([]Value, len(serials))
	offset := int(headerSize)
	for i, st := range serials {
		pl := fieldPayloadLen(st)
		if offset+pl > len(data) {
			return nil, sqlerr.ErrCorrupt.New()
		}
		v, err := decodeField(st, data[offset:offset+pl])
		if err != nil {
			return nil, err
		}
		out[i] = v
		offset += pl
	}
	return out, nil
}

// RowidFromIndexKey extracts the trailing rowid field (a serial-typed
// value, like every other column) appended after an index key's
// declared columns (used when an index cursor must
// recover the owning table row). keyColumns is the number of leading
// declared index columns, i.e. len(serials)-1.
func RowidFromIndexKey(data []byte, keyColumns int) (int64, error) {
	headerSize, n := getVarint(data)
	if n == 0 {
		return 0, sqlerr.ErrCorrupt.New()
	}
	offset := int(headerSize)
	pos := n
	for i := 0; i < keyColumns; i++ {
		st, m := getVarint(data[pos:])
		if m == 0 {
			return 0, sqlerr.ErrCorrupt.New()
		}
		pos += m
		offset += fieldPayloadLen(st)
	}
	// the trailing field is the rowid, itself serialized as a value
	st, m := getVarint(data[pos:])
	if m == 0 {
		return 0, sqlerr.ErrCorrupt.New()
	}
	v, err := decodeField(st, data[offset:offset+fieldPayloadLen(st)])
	if err != nil {
		return 0, err
	}
	return v.Int, nil
}
