package structure

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Structure is a decoded instance of a Format.
type Structure struct {
	format     *Format
	name       string
	fileOffset int
	values     []uint64
	raw        [][]byte
	allZero    bool
}

// Name returns the structure name, which defaults to the format name.
func (s *Structure) Name() string {
	return s.name
}

// SetName renames the structure, e.g. to tag a data directory entry.
func (s *Structure) SetName(name string) {
	s.name = name
}

// Format returns the format the structure was decoded with.
func (s *Structure) Format() *Format {
	return s.format
}

// FileOffset returns the absolute file offset the structure was read from.
func (s *Structure) FileOffset() int {
	return s.fileOffset
}

// Size returns the byte size of the structure.
func (s *Structure) Size() int {
	return s.format.size
}

// AllZero reports whether every decoded byte was zero.
func (s *Structure) AllZero() bool {
	return s.allZero
}

// Has reports whether name is a field (or alias) of the structure.
func (s *Structure) Has(name string) bool {
	_, ok := s.format.index[name]
	return ok
}

// Uint returns the raw unsigned value of an integer field. Unknown and byte
// array fields read as zero.
func (s *Structure) Uint(name string) uint64 {
	i, ok := s.format.index[name]
	if !ok {
		return 0
	}
	return s.values[i]
}

// Uint32 returns an integer field truncated to 32 bits.
func (s *Structure) Uint32(name string) uint32 {
	return uint32(s.Uint(name))
}

// Uint16 returns an integer field truncated to 16 bits.
func (s *Structure) Uint16(name string) uint16 {
	return uint16(s.Uint(name))
}

// Int returns a field sign-extended according to its declared type.
func (s *Structure) Int(name string) int64 {
	i, ok := s.format.index[name]
	if !ok {
		return 0
	}
	v := s.values[i]
	switch s.format.fields[i].Type {
	case Int8:
		return int64(int8(v))
	case Int16:
		return int64(int16(v))
	case Int32:
		return int64(int32(v))
	}
	return int64(v)
}

// Bytes returns a byte array field.
func (s *Structure) Bytes(name string) []byte {
	i, ok := s.format.index[name]
	if !ok {
		return nil
	}
	return s.raw[i]
}

// Set stores an integer value through any name of its slot.
func (s *Structure) Set(name string, v uint64) error {
	i, ok := s.format.index[name]
	if !ok {
		return errors.Errorf("%s has no field %q", s.name, name)
	}
	fld := s.format.fields[i]
	if fld.Type == Bytes {
		return errors.Errorf("%s.%s is a byte array", s.name, name)
	}
	if w := fld.Type.width(); w < 8 {
		v &= 1<<(8*uint(w)) - 1
	}
	s.values[i] = v
	return nil
}

// SetBytes stores a byte array value, zero-padding or truncating it to the
// declared length.
func (s *Structure) SetBytes(name string, b []byte) error {
	i, ok := s.format.index[name]
	if !ok {
		return errors.Errorf("%s has no field %q", s.name, name)
	}
	fld := s.format.fields[i]
	if fld.Type != Bytes {
		return errors.Errorf("%s.%s is not a byte array", s.name, name)
	}
	v := make([]byte, fld.Len)
	copy(v, b)
	s.raw[i] = v
	return nil
}

// FieldOffset returns the byte offset of a field within the structure, or -1.
func (s *Structure) FieldOffset(name string) int {
	i, ok := s.format.index[name]
	if !ok {
		return -1
	}
	return s.format.offsets[i]
}

// FieldFileOffset returns the absolute file offset of a field, or -1.
func (s *Structure) FieldFileOffset(name string) int {
	off := s.FieldOffset(name)
	if off < 0 {
		return -1
	}
	return s.fileOffset + off
}

// Keys returns every field name, aliases included, in declaration order.
func (s *Structure) Keys() []string {
	var keys []string
	for _, fld := range s.format.fields {
		keys = append(keys, fld.Names...)
	}
	return keys
}

// Pack encodes the current field values back into bytes.
func (s *Structure) Pack() []byte {
	out := make([]byte, s.format.size)
	for i, fld := range s.format.fields {
		off := s.format.offsets[i]
		if fld.Type == Bytes {
			copy(out[off:off+fld.Len], s.raw[i])
			continue
		}
		putUint(out[off:off+fld.Type.width()], s.values[i])
	}
	return out
}

// Dump renders the structure in the fixed-width text layout used by the
// image dump.
func (s *Structure) Dump(indent int) []string {
	pad := strings.Repeat(" ", indent)
	lines := []string{fmt.Sprintf("%s[%s]", pad, s.name)}
	for i, fld := range s.format.fields {
		off := s.format.offsets[i]
		for _, key := range fld.Names {
			var val string
			if fld.Type == Bytes {
				val = escapeBytes(bytes.TrimRight(s.raw[i], "\x00"), false)
			} else {
				val = fmt.Sprintf("0x%-8X", s.values[i])
				if isTimestamp(key) {
					val += " [" + asctime(s.values[i]) + " UTC]"
				}
			}
			lines = append(lines, fmt.Sprintf("%s0x%-8X 0x%-3X %-30s %s", pad, s.fileOffset+off, off, key+":", val))
		}
	}
	return lines
}

// DumpDict returns the structure as an ordered mapping of field name to
// {FileOffset, Offset, Value}.
func (s *Structure) DumpDict() yaml.MapSlice {
	d := yaml.MapSlice{{Key: "Structure", Value: s.name}}
	for i, fld := range s.format.fields {
		off := s.format.offsets[i]
		for _, key := range fld.Names {
			var val interface{}
			switch {
			case fld.Type == Bytes:
				val = escapeBytes(s.raw[i], true)
			case isTimestamp(key):
				val = fmt.Sprintf("0x%-8X [%s UTC]", s.values[i], asctime(s.values[i]))
			case fld.Type.signed():
				val = s.Int(key)
			default:
				val = s.values[i]
			}
			d = append(d, yaml.MapItem{Key: key, Value: yaml.MapSlice{
				{Key: "FileOffset", Value: s.fileOffset + off},
				{Key: "Offset", Value: off},
				{Key: "Value", Value: val},
			}})
		}
	}
	return d
}

func isTimestamp(key string) bool {
	return key == "TimeDateStamp" || key == "dwTimeStamp"
}

func asctime(v uint64) string {
	return time.Unix(int64(v), 0).UTC().Format(time.ANSIC)
}

// escapeBytes renders printable ASCII as-is and everything else as \xNN.
// Whitespace counts as printable only when keepSpace is set.
func escapeBytes(b []byte, keepSpace bool) string {
	var sb strings.Builder
	for _, c := range b {
		printable := c > 0x20 && c < 0x7f
		if keepSpace && (c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f') {
			printable = true
		}
		if printable {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	return sb.String()
}
