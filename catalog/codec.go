package catalog

import (
	"encoding/binary"
	"math"

	"github.com/untoldecay/cokedb/errs"
)

// Row/Value/Table serialization: self-describing enough to round-trip
// every Value variant and preserve column order. No bit-exact
// compatibility is required, so a simple length-prefixed binary scheme is
// sufficient; this one tags each Value with its kind byte.

func encodeValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInteger:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int))
		buf = append(buf, b[:]...)
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Flt))
		buf = append(buf, b[:]...)
	case KindString:
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(v.Str)))
		buf = append(buf, lb[:]...)
		buf = append(buf, v.Str...)
	}
	return buf
}

func decodeValue(b []byte) (Value, []byte, error) {
	if len(b) < 1 {
		return Value{}, nil, errs.Internalf("codec: truncated value")
	}
	kind := ValueKind(b[0])
	b = b[1:]
	switch kind {
	case KindNull:
		return Null(), b, nil
	case KindBool:
		if len(b) < 1 {
			return Value{}, nil, errs.Internalf("codec: truncated bool")
		}
		return Bool(b[0] != 0), b[1:], nil
	case KindInteger:
		if len(b) < 8 {
			return Value{}, nil, errs.Internalf("codec: truncated integer")
		}
		return Int(int64(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case KindFloat:
		if len(b) < 8 {
			return Value{}, nil, errs.Internalf("codec: truncated float")
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case KindString:
		if len(b) < 4 {
			return Value{}, nil, errs.Internalf("codec: truncated string length")
		}
		n := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < n {
			return Value{}, nil, errs.Internalf("codec: truncated string")
		}
		return String(string(b[:n])), b[n:], nil
	default:
		return Value{}, nil, errs.Internalf("codec: unknown value kind %d", kind)
	}
}

// EncodeRow serializes a Row preserving column order.
func EncodeRow(row Row) []byte {
	var buf []byte
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(row)))
	buf = append(buf, lb[:]...)
	for _, v := range row {
		buf = encodeValue(buf, v)
	}
	return buf
}

// DecodeRow parses bytes written by EncodeRow.
func DecodeRow(b []byte) (Row, error) {
	if len(b) < 4 {
		return nil, errs.Internalf("codec: truncated row header")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	row := make(Row, 0, n)
	for i := uint32(0); i < n; i++ {
		v, rest, err := decodeValue(b)
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		b = rest
	}
	return row, nil
}

// EncodeKeyValue encodes a single Value for use as a key fragment
// (primary-key or index-value component). Equality of the encoded bytes
// matches equality of the Value, which is all key lookups need.
func EncodeKeyValue(v Value) []byte {
	return encodeValue(nil, v)
}

// EncodeColumnDef/DecodeColumnDef and EncodeSchema/DecodeSchema serialize a
// Table's schema (name, columns, flags, encoded default) for storage under
// the Table(name) key.

func EncodeSchema(t *Table) []byte {
	var buf []byte
	buf = appendString(buf, t.Name)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(t.Columns)))
	buf = append(buf, lb[:]...)
	for _, c := range t.Columns {
		buf = appendString(buf, c.Name)
		buf = append(buf, byte(c.Type))
		buf = append(buf, encodeFlags(c))
		if c.Default != nil {
			v, err := c.Default.EvalConst()
			if err != nil {
				// Schema construction already validated this; should be unreachable.
				v = Null()
			}
			buf = append(buf, 1)
			buf = encodeValue(buf, v)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func encodeFlags(c Column) byte {
	var f byte
	if c.PrimaryKey {
		f |= 1
	}
	if c.Unique {
		f |= 2
	}
	if c.Indexed {
		f |= 4
	}
	if c.Nullable {
		f |= 8
	}
	return f
}

func appendString(buf []byte, s string) []byte {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
	buf = append(buf, lb[:]...)
	return append(buf, s...)
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errs.Internalf("codec: truncated string length")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return "", nil, errs.Internalf("codec: truncated string")
	}
	return string(b[:n]), b[n:], nil
}

// constValue is the trivial Expr implementation codec needs to round-trip
// a decoded default literal back into the Column.Default slot.
type constValue Value

func (c constValue) EvalConst() (Value, error) { return Value(c), nil }

// ConstExpr wraps a already-computed Value as an Expr, for callers (such
// as catalog.LoadSchemaFile) that construct a Column.Default outside the
// SQL parser, which otherwise restricts DEFAULT to a grammatically
// constant-foldable expression.
func ConstExpr(v Value) Expr { return constValue(v) }

// DecodeSchema parses bytes written by EncodeSchema. It does not re-run
// NewTable's invariant checks (the schema was already validated when
// created); callers that need freshly-validated Tables should call
// NewTable explicitly instead.
func DecodeSchema(b []byte) (*Table, error) {
	name, b, err := readString(b)
	if err != nil {
		return nil, err
	}
	if len(b) < 4 {
		return nil, errs.Internalf("codec: truncated schema column count")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	t := &Table{Name: name, pkIndex: -1}
	for i := uint32(0); i < n; i++ {
		var cname string
		cname, b, err = readString(b)
		if err != nil {
			return nil, err
		}
		if len(b) < 2 {
			return nil, errs.Internalf("codec: truncated schema column flags")
		}
		typ := Type(b[0])
		flags := b[1]
		b = b[2:]

		c := Column{
			Name:       cname,
			Type:       typ,
			PrimaryKey: flags&1 != 0,
			Unique:     flags&2 != 0,
			Indexed:    flags&4 != 0,
			Nullable:   flags&8 != 0,
		}
		if len(b) < 1 {
			return nil, errs.Internalf("codec: truncated schema default marker")
		}
		hasDefault := b[0]
		b = b[1:]
		if hasDefault == 1 {
			var v Value
			v, b, err = decodeValue(b)
			if err != nil {
				return nil, err
			}
			c.Default = constValue(v)
		}
		if c.PrimaryKey {
			t.pkIndex = int(i)
		} else if c.Indexed {
			t.indexedCols = append(t.indexedCols, int(i))
		}
		t.Columns = append(t.Columns, c)
	}
	return t, nil
}
