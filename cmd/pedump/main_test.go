package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/gope/pkg/pe"
)

// minimalImage returns a PE32 executable with no sections or directories.
func minimalImage() []byte {
	b := make([]byte, 0x400)
	le := binary.LittleEndian
	copy(b, "MZ")
	le.PutUint32(b[0x3c:], 0x80)
	copy(b[0x80:], "PE\x00\x00")

	fh := 0x84
	le.PutUint16(b[fh:], 0x14c)
	le.PutUint16(b[fh+16:], 0xe0)
	le.PutUint16(b[fh+18:], 0x0102)

	opt := fh + 20
	le.PutUint16(b[opt:], 0x10b)
	le.PutUint32(b[opt+28:], 0x400000)
	le.PutUint32(b[opt+32:], 0x1000)
	le.PutUint32(b[opt+36:], 0x200)
	le.PutUint32(b[opt+56:], 0x1000)
	le.PutUint32(b[opt+60:], 0x400)
	le.PutUint16(b[opt+68:], 3)
	le.PutUint32(b[opt+92:], 16)
	return b
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runCmd(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestPGOWithoutEntry(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, out, _ := runCmd("pgo", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, "no POGO entry\n", out)
}

func TestParseFailureExitsNonZero(t *testing.T) {
	path := writeFile(t, "bad.exe", []byte("this is not a PE image at all, just text"))
	code, out, errOut := runCmd("pgo", path)
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, path)
}

func TestErrorsAreCollectedAcrossFiles(t *testing.T) {
	good := writeFile(t, "good.exe", minimalImage())
	bad := writeFile(t, "bad.exe", []byte("MZ"))
	missing := filepath.Join(t.TempDir(), "missing.exe")

	code, out, errOut := runCmd("imphash", bad, good, missing)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "==> "+good+" <==")
	assert.Contains(t, errOut, bad)
	assert.Contains(t, errOut, missing)
	assert.Contains(t, errOut, "2 errors occurred")
}

func TestInfoJSON(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, out, _ := runCmd("--format", "json", "info", path)
	require.Equal(t, 0, code)

	var s pe.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "PE32", s.Type)
	assert.Equal(t, "IMAGE_FILE_MACHINE_I386", s.Machine)
	assert.Equal(t, uint64(0x400000), s.ImageBase)
	assert.True(t, s.Checksum.Computed != 0)
}

func TestInfoText(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, out, _ := runCmd("info", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Type:            PE32 EXE")
	assert.Contains(t, out, "Size of image:   4.0 KiB")
}

func TestDumpFormats(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())

	code, out, _ := runCmd("dump", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "----------DOS_HEADER----------")

	code, out, _ = runCmd("--format", "yaml", "dump", path)
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "Parsing Warnings:") || strings.HasPrefix(out, "DOS_HEADER:"), out)

	code, out, _ = runCmd("--format", "json", "dump", path)
	require.Equal(t, 0, code)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Contains(t, v, "OPTIONAL_HEADER")

	code, out, _ = runCmd("dump", "--raw", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Summary")
}

func TestUnknownFormat(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, _, errOut := runCmd("--format", "xml", "info", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown output format "xml"`)
}

func TestChecksumFix(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, out, _ := runCmd("checksum", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "invalid")

	fixed := filepath.Join(t.TempDir(), "fixed.exe")
	code, _, _ = runCmd("checksum", "--fix-to", fixed, path)
	require.Equal(t, 0, code)

	code, out, _ = runCmd("checksum", fixed)
	require.Equal(t, 0, code)
	assert.True(t, strings.HasSuffix(out, " valid\n"), out)
}

func TestFastSections(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())
	code, out, _ := runCmd("--fast", "sections", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "VirtualAddress")
}

// imageWithCodeView adds a debug directory with an RSDS record to
// minimalImage, both stored in the header area.
func imageWithCodeView(guid [16]byte, age uint32) []byte {
	b := minimalImage()
	le := binary.LittleEndian
	opt := 0x84 + 20
	le.PutUint32(b[opt+96+6*8:], 0x200)
	le.PutUint32(b[opt+96+6*8+4:], 28)

	cv := append([]byte("RSDS"), guid[:]...)
	cv = le.AppendUint32(cv, age)
	cv = append(cv, "app.pdb\x00"...)
	copy(b[0x240:], cv)

	le.PutUint32(b[0x200+12:], 2)
	le.PutUint32(b[0x200+16:], uint32(len(cv)))
	le.PutUint32(b[0x200+20:], 0x240)
	le.PutUint32(b[0x200+24:], 0x240)
	return b
}

// pdbImage builds an MSF with the info stream in block 5.
func pdbImage(guid [16]byte, age uint32) []byte {
	const bs = 512
	le := binary.LittleEndian
	b := make([]byte, 6*bs)
	copy(b, "Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")
	le.PutUint32(b[32:], bs)
	le.PutUint32(b[36:], 1)
	le.PutUint32(b[40:], 6)
	le.PutUint32(b[44:], 16)
	le.PutUint32(b[52:], 3)
	le.PutUint32(b[3*bs:], 4)

	le.PutUint32(b[4*bs:], 2)
	le.PutUint32(b[4*bs+8:], 28)
	le.PutUint32(b[4*bs+12:], 5)

	le.PutUint32(b[5*bs:], 20000404)
	le.PutUint32(b[5*bs+8:], age)
	copy(b[5*bs+12:], guid[:])
	return b
}

func TestPDBMatch(t *testing.T) {
	guid := [16]byte{0x78, 0x56, 0x34, 0x12, 0xbc, 0x9a, 0xf0, 0xde, 1, 2, 3, 4, 5, 6, 7, 8}
	img := writeFile(t, "app.exe", imageWithCodeView(guid, 2))

	good := writeFile(t, "good.pdb", pdbImage(guid, 2))
	code, out, _ := runCmd("pdb", img, good)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "PDB name: app.pdb")
	assert.Contains(t, out, "Expected: 123456789ABCDEF001020304050607082")
	assert.Contains(t, out, "Found:    123456789ABCDEF001020304050607082")

	stale := writeFile(t, "stale.pdb", pdbImage(guid, 1))
	code, out, errOut := runCmd("--format", "json", "pdb", img, stale)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"match":false`)
	assert.Contains(t, errOut, "PDB does not match the image")

	code, _, errOut = runCmd("pdb", writeFile(t, "min.exe", minimalImage()), good)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no CodeView debug entry")
}

func TestDumpJSONKeepsNestedObjects(t *testing.T) {
	path := writeFile(t, "min.exe", minimalImage())

	for _, args := range [][]string{
		{"--format", "json", "dump", path},
		{"--format", "json", "--pretty", "dump", path},
	} {
		code, out, _ := runCmd(args...)
		require.Equal(t, 0, code)

		dos := strings.Index(out, `"DOS_HEADER"`)
		nt := strings.Index(out, `"NT_HEADERS"`)
		opt := strings.Index(out, `"OPTIONAL_HEADER"`)
		assert.True(t, dos >= 0 && dos < nt && nt < opt, "keys out of order: %v", args)

		var v map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		dirs, ok := v["Directories"].([]interface{})
		require.True(t, ok)
		require.Len(t, dirs, 16)

		export, ok := dirs[0].(map[string]interface{})
		require.True(t, ok, "%T", dirs[0])
		assert.Equal(t, "IMAGE_DIRECTORY_ENTRY_EXPORT", export["Structure"])
		va, ok := export["VirtualAddress"].(map[string]interface{})
		require.True(t, ok, "%T", export["VirtualAddress"])
		assert.Equal(t, float64(0xf8), va["FileOffset"])
		assert.Equal(t, float64(0), va["Value"])

		assert.Empty(t, v["PE Sections"])
	}
}
