package pe

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/gope/pkg/pe/winnt"
)

func exportImage(exports []testExport) *testImage {
	img := newTestImage(false)
	img.characteristics |= winnt.FileDLL
	img.addSection(".text", textRVA, textSection(), winnt.SectionCntCode|winnt.SectionMemExecute|winnt.SectionMemRead)
	sb := newSectionBuffer(rdataRVA)
	rva, size := buildExports(sb, "test.dll", exports)
	img.addSection(".edata", rdataRVA, sb.buf, 0)
	img.dir(winnt.DirectoryEntryExport, rva, size)
	return img
}

func TestExportByName(t *testing.T) {
	f := openImage(t, exportImage([]testExport{{name: "Foo", address: 0x1000}}))

	require.NotNil(t, f.Exports)
	assert.Equal(t, "test.dll", f.Exports.Name(f))
	require.Len(t, f.Exports.Symbols, 1)

	sym := f.Exports.Symbols[0]
	assert.Equal(t, uint32(1), sym.Ordinal)
	assert.Equal(t, uint32(0x1000), sym.Address)
	assert.Equal(t, "Foo", sym.Name)
	assert.Empty(t, sym.Forwarder)
	assert.False(t, sym.IsForwarded())

	nameRVA, ok := f.GetDwordAtRVA(f.Exports.Struct.Uint32("AddressOfNames"))
	require.True(t, ok)
	off, err := f.GetOffsetFromRVA(nameRVA)
	require.NoError(t, err)
	assert.Equal(t, off, sym.NameOffset)

	funcs, err := f.GetOffsetFromRVA(f.Exports.Struct.Uint32("AddressOfFunctions"))
	require.NoError(t, err)
	assert.Equal(t, funcs, sym.AddressOffset)
}

func TestExportForwarderAndOrdinalOnly(t *testing.T) {
	f := openImage(t, exportImage([]testExport{
		{name: "Foo", address: textRVA},
		{name: "Bar", forwarder: "NTDLL.RtlBar"},
		{address: textRVA + 4},
	}))

	require.NotNil(t, f.Exports)
	syms := f.Exports.Symbols
	require.Len(t, syms, 3)

	assert.Equal(t, "Bar", syms[1].Name)
	assert.Equal(t, uint32(2), syms[1].Ordinal)
	assert.True(t, syms[1].IsForwarded())
	assert.Equal(t, "NTDLL.RtlBar", syms[1].Forwarder)
	off, err := f.GetOffsetFromRVA(syms[1].Address)
	require.NoError(t, err)
	assert.Equal(t, off, syms[1].ForwarderOffset)

	assert.Equal(t, uint32(3), syms[2].Ordinal)
	assert.Equal(t, uint32(textRVA+4), syms[2].Address)
	assert.Empty(t, syms[2].Name)
}

func TestForwardedExportsOnly(t *testing.T) {
	f := openImage(t, exportImage([]testExport{
		{name: "Foo", address: textRVA},
		{name: "Bar", forwarder: "NTDLL.RtlBar"},
	}), WithFastLoad())

	f.ParseDataDirectories(Directories(winnt.DirectoryEntryExport), ForwardedExportsOnly())
	require.NotNil(t, f.Exports)

	var named []string
	for _, s := range f.Exports.Symbols {
		if s.Name != "" {
			named = append(named, s.Name)
		}
	}
	assert.Equal(t, []string{"Bar"}, named)
}

func TestExportDemangledNames(t *testing.T) {
	f := openImage(t, exportImage([]testExport{
		{name: "?Run@Engine@@QAEHH@Z", address: textRVA},
		{name: "_Start@8", address: textRVA + 1},
	}))

	require.NotNil(t, f.Exports)
	require.Len(t, f.Exports.Symbols, 2)
	assert.Equal(t, "Engine::Run", f.Exports.Symbols[0].Demangled)
	assert.Equal(t, "Start", f.Exports.Symbols[1].Demangled)
}

func TestExportBadOrdinalDropsDirectory(t *testing.T) {
	img := exportImage([]testExport{{name: "Foo", address: textRVA}})
	edata := img.sections[1].data
	// The directory opens the section; point its only name at an ordinal
	// beyond NumberOfFunctions
	ordinals := int(binary.LittleEndian.Uint32(edata[36:]) - rdataRVA)
	put16(edata, ordinals, 7)

	f := openImage(t, img)
	assert.Nil(t, f.Exports)
}

// truncatedNamesImage places the AddressOfNames array in the last 16 bytes
// of the file, outside every section, so only four of numNames entries can
// be read. Every name maps to the single function.
func truncatedNamesImage(numNames int) *testImage {
	img := newTestImage(false)
	img.characteristics |= winnt.FileDLL
	img.addSection(".text", textRVA, textSection(), winnt.SectionCntCode|winnt.SectionMemExecute|winnt.SectionMemRead)

	sb := newSectionBuffer(rdataRVA)
	dirRVA := sb.alloc(winnt.ExportDirectory.Size())
	funcs := sb.alloc(4)
	ordinals := sb.alloc(2 * numNames)
	sb.put32(funcs, textRVA)
	var nameRVAs []uint32
	for _, n := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		nameRVAs = append(nameRVAs, sb.cstring(n))
	}
	moduleRVA := sb.cstring("test.dll")
	size := uint32(len(sb.buf))
	sb.buf = append(sb.buf, make([]byte, testFileAlignment-len(sb.buf))...)

	tail := len(sb.buf) - 16
	for i, rva := range nameRVAs {
		put32(sb.buf, tail+4*i, rva)
	}
	img.addSection(".edata", rdataRVA, sb.buf, 0)
	// Outside every section an RVA is read as a file offset
	namesRVA := img.rawPointer(1) + uint32(tail)

	sb.put32(dirRVA+12, moduleRVA)
	sb.put32(dirRVA+16, 1)
	sb.put32(dirRVA+20, 1)
	sb.put32(dirRVA+24, uint32(numNames))
	sb.put32(dirRVA+28, funcs)
	sb.put32(dirRVA+32, namesRVA)
	sb.put32(dirRVA+36, ordinals)
	img.dir(winnt.DirectoryEntryExport, dirRVA, size)
	return img
}

func TestUnreadableExportNamesUseFailureBudget(t *testing.T) {
	names := func(f *File) []string {
		var out []string
		for _, s := range f.Exports.Symbols {
			out = append(out, s.Name)
		}
		return out
	}
	warned := func(f *File) bool {
		for _, w := range f.Warnings() {
			if strings.HasPrefix(w, "RVA AddressOfNames in the export directory") {
				return true
			}
		}
		return false
	}

	// Four unreadable entries stay within the budget
	f := openImage(t, truncatedNamesImage(8))
	require.NotNil(t, f.Exports)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma", "Delta"}, names(f))
	assert.False(t, warned(f), "warnings: %v", f.Warnings())

	// Ten exhaust it
	f = openImage(t, truncatedNamesImage(20))
	require.NotNil(t, f.Exports)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma", "Delta"}, names(f))
	assert.True(t, warned(f), "warnings: %v", f.Warnings())
}
