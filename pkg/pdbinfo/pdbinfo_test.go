package pdbinfo

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/gope/pkg/pe/codeview"
)

const testBlockSize = 512

var testGUID = [16]byte{
	0x78, 0x56, 0x34, 0x12, 0xbc, 0x9a, 0xf0, 0xde,
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
}

// infoStream builds a PDB info stream naming a single "/names" stream.
func infoStream(age uint32) []byte {
	le := binary.LittleEndian
	b := make([]byte, 28)
	le.PutUint32(b[0:], VersionVC70)
	le.PutUint32(b[4:], 0x5f000000)
	le.PutUint32(b[8:], age)
	copy(b[12:], testGUID[:])

	names := []byte("/names\x00")
	b = le.AppendUint32(b, uint32(len(names)))
	b = append(b, names...)
	b = le.AppendUint32(b, 1) // entries
	b = le.AppendUint32(b, 1) // capacity
	b = le.AppendUint32(b, 1) // present words
	b = le.AppendUint32(b, 1)
	b = le.AppendUint32(b, 0) // deleted words
	b = le.AppendUint32(b, 0) // key offset
	b = le.AppendUint32(b, 5) // stream index
	return b
}

// msfImage lays out a six block MSF: superblock, two free block maps, the
// block map, the stream directory and the info stream.
func msfImage(info []byte) []byte {
	le := binary.LittleEndian
	b := make([]byte, 6*testBlockSize)
	copy(b, Magic)
	le.PutUint32(b[32:], testBlockSize)
	le.PutUint32(b[36:], 1)
	le.PutUint32(b[40:], 6)
	le.PutUint32(b[44:], 20)
	le.PutUint32(b[52:], 3)

	le.PutUint32(b[3*testBlockSize:], 4)

	dir := b[4*testBlockSize:]
	le.PutUint32(dir[0:], 3)
	le.PutUint32(dir[4:], 0)
	le.PutUint32(dir[8:], uint32(len(info)))
	le.PutUint32(dir[12:], unusedStream)
	le.PutUint32(dir[16:], 5)

	copy(b[5*testBlockSize:], info)
	return b
}

func rsds(t *testing.T, guid [16]byte, age uint32) []byte {
	t.Helper()
	le := binary.LittleEndian
	b := []byte(codeview.SignatureRSDS)
	b = append(b, guid[:]...)
	b = le.AppendUint32(b, age)
	return append(b, "app.pdb\x00"...)
}

func TestParse(t *testing.T) {
	p, err := Parse(msfImage(infoStream(3)))
	require.NoError(t, err)

	assert.Equal(t, 3, p.NumStreams())
	assert.Equal(t, uint32(0), p.StreamSize(0))
	assert.Equal(t, uint32(0), p.StreamSize(2))
	assert.Equal(t, uint32(VersionVC70), p.Info.Version)
	assert.Equal(t, uint32(0x5f000000), p.Info.Signature)
	assert.Equal(t, uint32(3), p.Info.Age)
	assert.Equal(t, testGUID, p.Info.GUID)
	assert.Equal(t, "123456789ABCDEF00102030405060708", p.Info.GUIDString())
	assert.Equal(t, "123456789ABCDEF001020304050607083", p.Info.SymbolKey())
	assert.Equal(t, map[string]uint32{"/names": 5}, p.Info.NamedStreams)

	data, err := p.Stream(InfoStream)
	require.NoError(t, err)
	assert.Equal(t, infoStream(3), data)

	_, err = p.Stream(7)
	assert.True(t, errors.Is(err, ErrBadStream))
}

func TestMatchesCodeView(t *testing.T) {
	p, err := Parse(msfImage(infoStream(3)))
	require.NoError(t, err)

	cv, err := codeview.DecodeCodeView(rsds(t, testGUID, 3), 0)
	require.NoError(t, err)
	assert.True(t, p.MatchesCodeView(cv))
	assert.Equal(t, codeview.SymbolKey(cv), p.Info.SymbolKey())

	cv, err = codeview.DecodeCodeView(rsds(t, testGUID, 4), 0)
	require.NoError(t, err)
	assert.False(t, p.MatchesCodeView(cv))

	other := testGUID
	other[15] ^= 0xff
	cv, err = codeview.DecodeCodeView(rsds(t, other, 3), 0)
	require.NoError(t, err)
	assert.False(t, p.MatchesCodeView(cv))

	le := binary.LittleEndian
	nb10 := []byte(codeview.SignatureNB10)
	nb10 = le.AppendUint32(nb10, 0)
	nb10 = le.AppendUint32(nb10, 0x5f000000)
	nb10 = le.AppendUint32(nb10, 3)
	cv, err = codeview.DecodeCodeView(nb10, 0)
	require.NoError(t, err)
	assert.True(t, p.MatchesCodeView(cv))

	assert.False(t, p.MatchesCodeView(nil))
}

func TestTruncatedNameMap(t *testing.T) {
	p, err := Parse(msfImage(infoStream(1)[:32]))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.Info.Age)
	assert.Empty(t, p.Info.NamedStreams)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)

	img := msfImage(infoStream(1))
	img[0] = 'm'
	_, err = Parse(img)
	assert.True(t, errors.Is(err, ErrBadMagic))

	img = msfImage(infoStream(1))
	binary.LittleEndian.PutUint32(img[32:], 1000)
	_, err = Parse(img)
	assert.True(t, errors.Is(err, ErrBadBlockSize))

	img = msfImage(infoStream(1))
	binary.LittleEndian.PutUint32(img[4*testBlockSize+16:], 9)
	_, err = Parse(img)
	assert.True(t, errors.Is(err, ErrBlockOutOfFile))

	img = msfImage(infoStream(1))
	binary.LittleEndian.PutUint32(img[4*testBlockSize+8:], 8)
	_, err = Parse(img)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pdb")
	require.NoError(t, os.WriteFile(path, msfImage(infoStream(2)), 0o644))

	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, uint32(2), p.Info.Age)

	_, err = Open(filepath.Join(t.TempDir(), "missing.pdb"))
	assert.Error(t, err)
}
