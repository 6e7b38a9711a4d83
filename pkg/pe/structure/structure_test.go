package structure

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

var testFormat = NewFormat("TEST_HEADER",
	U16("Magic"),
	U8("Flag"),
	U8("Pad"),
	U32("Misc", "Misc_PhysicalAddress", "Misc_VirtualSize"),
	Arr(4, "Name"),
	I16("Delta"),
	U64("Big"),
)

func testBytes() []byte {
	return []byte{
		0x4d, 0x5a, // Magic
		0x01,                   // Flag
		0x00,                   // Pad
		0x78, 0x56, 0x34, 0x12, // Misc
		'a', 'b', 0, 0, // Name
		0xfe, 0xff, // Delta = -2
		1, 0, 0, 0, 0, 0, 0, 0x80, // Big
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, 22, testFormat.Size())
	assert.Equal(t, "TEST_HEADER", testFormat.Name())

	ext := testFormat.With(Arr(3, "Tail"))
	assert.Equal(t, 25, ext.Size())
	assert.Equal(t, 22, testFormat.Size(), "With must not modify the receiver")
}

func TestUnpack(t *testing.T) {
	data := append(testBytes(), 0xAA, 0xBB)
	s, err := testFormat.Unpack(data, 0x100)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x5a4d), s.Uint16("Magic"))
	assert.Equal(t, uint64(1), s.Uint("Flag"))
	assert.Equal(t, uint32(0x12345678), s.Uint32("Misc_VirtualSize"))
	assert.Equal(t, uint32(0x12345678), s.Uint32("Misc_PhysicalAddress"))
	assert.Equal(t, []byte{'a', 'b', 0, 0}, s.Bytes("Name"))
	assert.Equal(t, int64(-2), s.Int("Delta"))
	assert.Equal(t, uint64(0x8000000000000001), s.Uint("Big"))
	assert.False(t, s.AllZero())
	assert.Equal(t, 0x100, s.FileOffset())
	assert.Equal(t, 4, s.FieldOffset("Misc_VirtualSize"))
	assert.Equal(t, 0x104, s.FieldFileOffset("Misc"))
	assert.Equal(t, -1, s.FieldOffset("Nope"))
	assert.False(t, s.Has("Nope"))
}

func TestUnpackShort(t *testing.T) {
	_, err := testFormat.Unpack(testBytes()[:10], 0)
	require.Error(t, err)
	assert.Equal(t, ErrShortData, errors.Cause(err))
}

func TestAllZero(t *testing.T) {
	s, err := testFormat.Unpack(make([]byte, 30), 0)
	require.NoError(t, err)
	assert.True(t, s.AllZero())
}

func TestAliasWrite(t *testing.T) {
	s, err := testFormat.Unpack(testBytes(), 0)
	require.NoError(t, err)

	require.NoError(t, s.Set("Misc_VirtualSize", 0x1000))
	assert.Equal(t, uint32(0x1000), s.Uint32("Misc"))
	assert.Equal(t, uint32(0x1000), s.Uint32("Misc_PhysicalAddress"))

	require.NoError(t, s.Set("Flag", 0x1ff))
	assert.Equal(t, uint64(0xff), s.Uint("Flag"), "values are truncated to the field width")

	assert.Error(t, s.Set("Name", 1))
	assert.Error(t, s.SetBytes("Flag", []byte{1}))
	assert.Error(t, s.Set("Unknown", 1))
}

func TestPackRoundTrip(t *testing.T) {
	data := testBytes()
	s, err := testFormat.Unpack(data, 0)
	require.NoError(t, err)
	assert.Equal(t, data, s.Pack())

	require.NoError(t, s.SetBytes("Name", []byte("xyz12345")))
	packed := s.Pack()
	assert.Equal(t, []byte("xyz1"), packed[8:12])
}

func TestDump(t *testing.T) {
	s, err := testFormat.Unpack(testBytes(), 0x40)
	require.NoError(t, err)

	lines := s.Dump(0)
	require.Len(t, lines, 10)
	assert.Equal(t, "[TEST_HEADER]", lines[0])
	assert.Equal(t, "0x40       0x0   Magic:                         0x5A4D    ", lines[1])
	assert.Equal(t, "0x44       0x4   Misc_VirtualSize:              0x12345678", lines[6])
	assert.Equal(t, "0x48       0x8   Name:                          ab", lines[7])
}

func TestDumpTimestamp(t *testing.T) {
	f := NewFormat("STAMP", U32("TimeDateStamp"))
	s, err := f.Unpack([]byte{0, 0, 0, 0}, 0)
	require.NoError(t, err)

	lines := s.Dump(2)
	assert.Equal(t, "  0x0        0x0   TimeDateStamp:                 0x0        [Thu Jan  1 00:00:00 1970 UTC]", lines[1])
}

func TestDumpDict(t *testing.T) {
	s, err := testFormat.Unpack(testBytes(), 0x10)
	require.NoError(t, err)

	d := s.DumpDict()
	assert.Equal(t, yaml.MapItem{Key: "Structure", Value: "TEST_HEADER"}, d[0])

	magic := d[1]
	assert.Equal(t, "Magic", magic.Key)
	assert.Equal(t, yaml.MapSlice{
		{Key: "FileOffset", Value: 0x10},
		{Key: "Offset", Value: 0},
		{Key: "Value", Value: uint64(0x5a4d)},
	}, magic.Value)

	keys := s.Keys()
	assert.Len(t, d, len(keys)+1)
	assert.Equal(t, `ab\x00\x00`, d[7].Value.(yaml.MapSlice)[2].Value)
	assert.Equal(t, int64(-2), d[8].Value.(yaml.MapSlice)[2].Value)
}
