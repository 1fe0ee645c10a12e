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

import "encoding/binary"

// putVarint/getVarint wrap the standard library's LEB128 varint codec.
// No pack dependency offers a varint primitive more suited to this use
// than encoding/binary's (it is the idiomatic Go choice for this exact
// primitive, and the record format's on-disk shape is internal to this
// codec rather than a wire format shared with another system), so this
// one piece of the codec is stdlib rather than third-party — see
// DESIGN.md's C3 entry.
func putVarint(buf []byte, v uint64) int {
	return binary.PutUvarint(buf, v)
}

func getVarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}

func varintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}
