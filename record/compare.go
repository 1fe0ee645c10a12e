package record

import (
	"bytes"

	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// Collator orders two byte strings under a named collating sequence.
// A nil Collator means "byte-compare" (the default BINARY collation).
type Collator interface {
	Name() string
	Compare(a, b []byte) int
}

// binaryCollator is the default collating sequence: plain byte
// comparison, tie-broken by length (bytes.Compare already does both).
type binaryCollator struct{}

func (binaryCollator) Name() string          { return "BINARY" }
func (binaryCollator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// Binary is the shared default collator.
var Binary Collator = binaryCollator{}

// Compare orders two values per spec §4.3:
//  1. NULL < any non-NULL; two NULLs are equal.
//  2. numeric vs non-numeric: numeric is less.
//  3. two numerics: real comparison if either is REAL, else signed
//     64-bit integer comparison.
//  4. text vs blob: text is less.
//  5. two texts: collator if present, else byte-compare; two blobs:
//     byte-compare. Ties broken by length (shorter is less).
//
// The caller negates the result for descending sort order.
func Compare(a, b Value, coll Collator) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	aNum, bNum := a.IsNumeric(), b.IsNumeric()
	switch {
	case aNum && bNum:
		if a.Kind == KindReal || b.Kind == KindReal {
			return cmpFloat(a.AsFloat64(), b.AsFloat64())
		}
		return cmpInt(a.Int, b.Int)
	case aNum && !bNum:
		return -1
	case !aNum && bNum:
		return 1
	}
	// both text-or-blob
	if a.Kind == KindText && b.Kind == KindBlob {
		return -1
	}
	if a.Kind == KindBlob && b.Kind == KindText {
		return 1
	}
	if a.Kind == KindText {
		ab, bb := []byte(a.Str), []byte(b.Str)
		if coll != nil {
			return coll.Compare(ab, bb)
		}
		return bytes.Compare(ab, bb)
	}
	return bytes.Compare(a.Bytes, b.Bytes)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// KeyInfo is the per-index metadata required to compare two index
// keys: column count, per-column collator, per-column descending flag.
type KeyInfo struct {
	NFields    int
	Collations []Collator // len == NFields; nil entry means BINARY
	Desc       []bool     // len == NFields
}

func (ki *KeyInfo) collatorFor(i int) Collator {
	if ki == nil || i >= len(ki.Collations) {
		return nil
	}
	return ki.Collations[i]
}

func (ki *KeyInfo) descFor(i int) bool {
	if ki == nil || i >= len(ki.Desc) {
		return false
	}
	return ki.Desc[i]
}

// header is a parsed record header: serial types plus each field's
// offset into the original byte slice's payload region.
type header struct {
	serials []uint64
	offsets []int
}

func parseHeader(data []byte) (header, error) {
	if len(data) == 0 {
		return header{}, nil
	}
	headerSize, n := getVarint(data)
	if n == 0 {
		return header{}, sqlerr.ErrCorrupt.New()
	}
	var h header
	offset := int(headerSize)
	for pos := n; uint64(pos) < headerSize; {
		st, m := getVarint(data[pos:])
		if m == 0 {
			return header{}, sqlerr.ErrCorrupt.New()
		}
		h.serials = append(h.serials, st)
		h.offsets = append(h.offsets, offset)
		offset += fieldPayloadLen(st)
		pos += m
	}
	return h, nil
}

// CompareIndexKey compares two encoded index-key records in lockstep,
// column by column, per spec §4.3's index-key algorithm: the first
// non-zero per-column comparison decides the result; once both sides
// are past ki.NFields declared columns, the next field is the trailing
// rowid, compared as a signed integer; if one side runs out of fields
// first, the shorter key is less unless incrKey is set, in which case
// the caller is searching for "first greater than" and the result is
// -1 (a is less, b is treated as larger) whichever side ran out.
func CompareIndexKey(a, b []byte, ki *KeyInfo, incrKey bool) (int, error) {
	ha, err := parseHeader(a)
	if err != nil {
		return 0, err
	}
	hb, err := parseHeader(b)
	if err != nil {
		return 0, err
	}
	nFields := ki.safeNFields()
	for i := 0; ; i++ {
		aHas := i < len(ha.serials)
		bHas := i < len(hb.serials)
		if !aHas || !bHas {
			if !aHas && !bHas {
				return 0, nil
			}
			if incrKey {
				return -1, nil
			}
			if !aHas {
				return -1, nil
			}
			return 1, nil
		}
		sa, sb := ha.serials[i], hb.serials[i]
		va, err := decodeField(sa, a[ha.offsets[i]:])
		if err != nil {
			return 0, err
		}
		vb, err := decodeField(sb, b[hb.offsets[i]:])
		if err != nil {
			return 0, err
		}
		if i >= nFields {
			// both sides have exhausted their declared key columns
			// simultaneously: what follows is the trailing rowid,
			// compared as a signed integer regardless of collation.
			return cmpInt(va.Int, vb.Int), nil
		}
		c := Compare(va, vb, ki.collatorFor(i))
		if ki.descFor(i) {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
}

func (ki *KeyInfo) safeNFields() int {
	if ki == nil {
		return 0
	}
	return ki.NFields
}
