package pe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/gope/pkg/pe/codeview"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// debugImage places a debug directory in the only section, whose raw data
// starts right after the headers.
func debugImage(entries ...testDebug) *testImage {
	img := newTestImage(false)
	sb := newSectionBuffer(rdataRVA)
	rva, size := buildDebug(sb, testHeadersSize, entries)
	img.addSection(".rdata", rdataRVA, sb.buf, 0)
	img.dir(winnt.DirectoryEntryDebug, rva, size)
	return img
}

func TestCodeViewEntry(t *testing.T) {
	f := openImage(t, fullImage(false))

	require.Len(t, f.Debug, 2)
	cv := f.Debug[0]
	assert.Equal(t, uint32(winnt.DebugTypeCodeView), cv.Type())
	require.NotNil(t, cv.Entry)
	assert.Equal(t, `C:\src\test.pdb`, codeview.PdbFileName(cv.Entry))
	assert.Equal(t, "123456789ABCDEF00102030405060708", codeview.GUIDString(codeview.GUID(cv.Entry)))
	assert.Equal(t, uint32(2), cv.Entry.Uint32("Age"))
	assert.Nil(t, cv.POGO)

	pogo := f.Debug[1]
	assert.Nil(t, pogo.Entry)
	require.NotNil(t, pogo.POGO)
	assert.Equal(t, []codeview.POGOEntry{{RVA: 0x1000, Size: 0x100, Name: ".text"}}, pogo.POGO.Entries)
}

func TestPGO(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  uint32
		kind string
	}{
		{"instrumented", codeview.POGOSignaturePGU, "PGU"},
		{"optimized", codeview.POGOSignaturePGO, "PGO"},
		{"ltcg", codeview.POGOSignatureLTCG, "LTCG"},
		{"unknown", 0x41414141, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := openImage(t, debugImage(testDebug{
				typ:     winnt.DebugTypePOGO,
				payload: pogoPayload(tc.sig, ".text$mn", ".rdata"),
			}))

			info, ok := f.PGO()
			require.True(t, ok)
			assert.Equal(t, tc.sig, info.Signature)
			assert.Equal(t, tc.kind, info.Kind)
			assert.Same(t, f.Debug[0], info.Entry)

			sum := f.Summary().PGO
			require.NotNil(t, sum)
			assert.Equal(t, []string{".text$mn", ".rdata"}, sum.Sections)
		})
	}
}

func TestPGOMissing(t *testing.T) {
	f := openImage(t, debugImage(testDebug{
		typ:     winnt.DebugTypeCodeView,
		payload: rsdsPayload("x.pdb"),
	}))
	info, ok := f.PGO()
	assert.False(t, ok)
	assert.Nil(t, info)
	assert.Nil(t, f.Summary().PGO)

	info, ok = openImage(t, newTestImage(false)).PGO()
	assert.False(t, ok)
	assert.Nil(t, info)
}

func TestPGOPointerOutsideFile(t *testing.T) {
	img := newTestImage(false)
	sb := newSectionBuffer(rdataRVA)
	dir := sb.alloc(winnt.DebugDirectory.Size())
	sb.put32(dir+12, winnt.DebugTypePOGO)
	sb.put32(dir+24, 0x7ffffff0)
	img.addSection(".rdata", rdataRVA, sb.buf, 0)
	img.dir(winnt.DirectoryEntryDebug, dir, uint32(winnt.DebugDirectory.Size()))

	f := openImage(t, img)
	require.Len(t, f.Debug, 1)
	assert.Nil(t, f.Debug[0].POGO)

	info, ok := f.PGO()
	assert.False(t, ok)
	assert.Nil(t, info)
}

func TestTruncatedCodeView(t *testing.T) {
	f := openImage(t, debugImage(testDebug{
		typ:     winnt.DebugTypeCodeView,
		payload: []byte("RSDS\x01\x02\x03\x04"),
	}))

	require.Len(t, f.Debug, 1)
	assert.Nil(t, f.Debug[0].Entry)

	var found bool
	for _, w := range f.Warnings() {
		if strings.HasPrefix(w, `Corrupt header "CV_INFO"`) {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", f.Warnings())
}

func TestDebugDump(t *testing.T) {
	f := openImage(t, fullImage(false))
	out := f.DumpInfo()
	assert.Contains(t, out, "Type: IMAGE_DEBUG_TYPE_CODEVIEW")
	assert.Contains(t, out, "Type: IMAGE_DEBUG_TYPE_POGO")
}
