// Package structure implements decoding of fixed-layout little-endian records
// into named, ordered field sets with per-field offset bookkeeping.
package structure

import (
	"github.com/pkg/errors"
)

// ErrShortData is returned when fewer bytes are supplied than a format needs.
var ErrShortData = errors.New("not enough data to unpack structure")

// Type identifies the primitive type of a field.
type Type int

// Primitive field types.
const (
	Uint8 Type = iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Bytes
)

// width returns the byte width of a primitive integer type.
func (t Type) width() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32:
		return 4
	case Uint64, Int64:
		return 8
	}
	return 0
}

func (t Type) signed() bool {
	return t == Int8 || t == Int16 || t == Int32 || t == Int64
}

// Field is one physical slot of a format. Every entry of Names refers to the
// same slot, which is how unions are expressed.
type Field struct {
	Type  Type
	Len   int // byte length, only used for Bytes
	Names []string
}

// Size returns the number of bytes the field occupies.
func (f Field) Size() int {
	if f.Type == Bytes {
		return f.Len
	}
	return f.Type.width()
}

// U8 declares an unsigned byte field.
func U8(names ...string) Field { return Field{Type: Uint8, Names: names} }

// U16 declares an unsigned 16-bit field.
func U16(names ...string) Field { return Field{Type: Uint16, Names: names} }

// U32 declares an unsigned 32-bit field.
func U32(names ...string) Field { return Field{Type: Uint32, Names: names} }

// U64 declares an unsigned 64-bit field.
func U64(names ...string) Field { return Field{Type: Uint64, Names: names} }

// I16 declares a signed 16-bit field.
func I16(names ...string) Field { return Field{Type: Int16, Names: names} }

// I32 declares a signed 32-bit field.
func I32(names ...string) Field { return Field{Type: Int32, Names: names} }

// Arr declares a fixed-length byte array field.
func Arr(n int, names ...string) Field { return Field{Type: Bytes, Len: n, Names: names} }

// Format is a named, ordered list of fields.
type Format struct {
	name    string
	fields  []Field
	offsets []int
	size    int
	index   map[string]int // any name -> slot
}

// NewFormat builds a format from its fields in declaration order.
func NewFormat(name string, fields ...Field) *Format {
	f := &Format{
		name:    name,
		fields:  fields,
		offsets: make([]int, len(fields)),
		index:   make(map[string]int),
	}
	off := 0
	for i, fld := range fields {
		f.offsets[i] = off
		off += fld.Size()
		for _, n := range fld.Names {
			f.index[n] = i
		}
	}
	f.size = off
	return f
}

// Name returns the format name.
func (f *Format) Name() string {
	return f.name
}

// Size returns the declared byte size of the format.
func (f *Format) Size() int {
	return f.size
}

// Fields returns the field list.
func (f *Format) Fields() []Field {
	return f.fields
}

// With returns a copy of the format with extra trailing fields, used for
// records that end in a variable-length tail.
func (f *Format) With(fields ...Field) *Format {
	all := make([]Field, 0, len(f.fields)+len(fields))
	all = append(all, f.fields...)
	all = append(all, fields...)
	return NewFormat(f.name, all...)
}

// Unpack decodes data into a Structure. Extra bytes are ignored; too few
// bytes yield ErrShortData.
func (f *Format) Unpack(data []byte, fileOffset int) (*Structure, error) {
	if len(data) < f.size {
		return nil, errors.Wrapf(ErrShortData, "%s needs %d bytes, got %d", f.name, f.size, len(data))
	}
	data = data[:f.size]

	s := &Structure{
		format:     f,
		name:       f.name,
		fileOffset: fileOffset,
		values:     make([]uint64, len(f.fields)),
		raw:        make([][]byte, len(f.fields)),
		allZero:    true,
	}
	for _, b := range data {
		if b != 0 {
			s.allZero = false
			break
		}
	}
	for i, fld := range f.fields {
		chunk := data[f.offsets[i] : f.offsets[i]+fld.Size()]
		if fld.Type == Bytes {
			s.raw[i] = append([]byte(nil), chunk...)
			continue
		}
		s.values[i] = readUint(chunk)
	}
	return s, nil
}

func readUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
