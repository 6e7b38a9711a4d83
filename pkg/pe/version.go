package pe

import (
	"fmt"
	"strings"

	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const (
	versionInfoKey      = "VS_VERSION_INFO"
	maxVersionKeyLength = 1 << 16
	maxVersionKeyShown  = 128
)

// VersionInfo is the decoded VS_VERSIONINFO resource.
type VersionInfo struct {
	Struct   *structure.Structure
	Key      string
	Fixed    *structure.Structure
	FileInfo []*VersionFileInfo
}

// VersionFileInfo is a StringFileInfo or VarFileInfo block. Exactly one of
// StringTables and Vars is populated, depending on Key.
type VersionFileInfo struct {
	Struct       *structure.Structure
	Key          string
	StringTables []*StringTable
	Vars         []*Var
}

// StringTable holds the key/value strings of one language.
type StringTable struct {
	Struct  *structure.Structure
	LangID  string
	Keys    []string
	Entries map[string]string

	// file offsets and UTF-16 lengths of each key and value
	offsets  map[string][2]uint32
	lengths  map[string][2]int
	modified map[string]bool
}

// Var is one VarFileInfo entry, usually the "Translation" pair.
type Var struct {
	Struct *structure.Structure
	Key    string
	Value  string
}

// StringTables returns the string tables of every StringFileInfo block.
func (v *VersionInfo) StringTables() []*StringTable {
	var out []*StringTable
	for _, fi := range v.FileInfo {
		out = append(out, fi.StringTables...)
	}
	return out
}

// Vars returns the entries of every VarFileInfo block.
func (v *VersionInfo) Vars() []*Var {
	var out []*Var
	for _, fi := range v.FileInfo {
		out = append(out, fi.Vars...)
	}
	return out
}

// Get returns the value stored under key.
func (t *StringTable) Get(key string) (string, bool) {
	v, ok := t.Entries[key]
	return v, ok
}

// Set replaces the value of an existing key. The new value is written by
// File.Write, truncated to the length of the original value.
func (t *StringTable) Set(key, value string) bool {
	if _, ok := t.Entries[key]; !ok {
		return false
	}
	t.Entries[key] = value
	t.modified[key] = true
	return true
}

func (t *StringTable) add(key, value string, keyOffset, valueOffset uint32) {
	if _, ok := t.Entries[key]; !ok {
		t.Keys = append(t.Keys, key)
	}
	t.Entries[key] = value
	t.offsets[key] = [2]uint32{keyOffset, valueOffset}
	t.lengths[key] = [2]int{utf16Len(key), utf16Len(value)}
}

// dwordAlign aligns off, relative to base, the way the resource compiler
// lays out version blocks.
func dwordAlign(off, base int) int {
	return ((off + base + 3) &^ 3) - (base &^ 3)
}

// parseVersionResource locates the VS_VERSIONINFO leaf below the RT_VERSION
// type entry and decodes it.
func (f *File) parseVersionResource(typ *ResourceDirectoryEntry) {
	if typ.Directory == nil || len(typ.Directory.Entries) == 0 {
		return
	}
	name := typ.Directory.Entries[0]
	if name.Directory == nil || len(name.Directory.Entries) == 0 {
		return
	}
	if leaf := name.Directory.Entries[0].Data; leaf != nil {
		f.parseVersionInformation(leaf.Struct)
	}
}

// versionBlock tracks the raw bytes of the version resource being decoded.
type versionBlock struct {
	f     *File
	raw   []byte
	rva   int
	start int
}

func (b *versionBlock) unpack(format *structure.Format, off int) *structure.Structure {
	var data []byte
	if off >= 0 && off <= len(b.raw) {
		data = b.raw[off:]
	}
	return b.f.unpack(format, data, b.start+off)
}

func (b *versionBlock) align(off int) int {
	return dwordAlign(off, b.rva)
}

func (b *versionBlock) stringAt(off, max int) (string, error) {
	return b.f.GetStringUAtRVA(uint32(b.rva+off), max)
}

func (f *File) parseVersionInformation(leaf *structure.Structure) {
	rva := leaf.Uint32("OffsetToData")
	start, err := f.GetOffsetFromRVA(rva)
	if err != nil {
		return
	}
	b := &versionBlock{
		f:     f,
		raw:   f.slice(int(start), int(start)+int(leaf.Uint32("Size"))),
		rva:   int(rva),
		start: int(start),
	}

	info := b.unpack(winnt.VSVersionInfo, 0)
	if info == nil {
		return
	}
	hdrSize := info.Size()

	keyRVA := rva + uint32(hdrSize)
	maxKey := maxVersionKeyLength
	if s := f.GetSectionByRVA(keyRVA); s != nil {
		end := s.VirtualAddress() + maxUint32(s.SizeOfRawData(), s.VirtualSize())
		maxKey = int(end-keyRVA) >> 1
	}
	key, err := f.GetStringUAtRVA(keyRVA, maxKey)
	if err != nil {
		f.warnf("Error parsing the version information, attempting to read VS_VERSION_INFO string. "+
			"Can't read unicode string at offset 0x%x", keyRVA)
	} else if key != versionInfoKey {
		shown := key
		if len(key) > maxVersionKeyShown {
			shown = fmt.Sprintf("%s ... (%d bytes, too long to display)", key[:maxVersionKeyShown], len(key))
		}
		f.warnf("Invalid VS_VERSION_INFO block: %s", strings.ReplaceAll(shown, "\x00", "\\00"))
		return
	}

	vi := &VersionInfo{Struct: info, Key: key}
	f.version = vi

	fixedOff := b.align(hdrSize + 2*(utf16Len(key)+1))
	fixed := b.unpack(winnt.VSFixedFileInfo, fixedOff)
	if fixed == nil {
		return
	}
	vi.Fixed = fixed

	off := b.align(fixedOff + fixed.Size())
	for {
		fi := b.unpack(winnt.StringFileInfo, off)
		if fi == nil {
			f.warn("Error parsing StringFileInfo/VarFileInfo struct")
			return
		}
		fiKey, err := b.stringAt(off+hdrSize, maxVersionKeyLength)
		if err != nil {
			f.warnf("Error parsing the version information, attempting to read StringFileInfo string. "+
				"Can't read unicode string at offset 0x%x", b.rva+off+hdrSize)
			break
		}
		block := &VersionFileInfo{Struct: fi, Key: fiKey}
		vi.FileInfo = append(vi.FileInfo, block)

		typeOK := fi.Uint16("Type") <= 1 && fi.Uint16("ValueLength") == 0
		childOff := b.align(off + fi.Size() + 2*(utf16Len(fiKey)+1))
		end := off + int(fi.Uint16("Length"))
		switch {
		case strings.HasPrefix(fiKey, "StringFileInfo") && typeOK:
			block.StringTables = b.stringTables(childOff, end)
		case strings.HasPrefix(fiKey, "VarFileInfo") && typeOK:
			fi.SetName("VarFileInfo")
			block.Vars = b.vars(childOff, end)
		}

		next := b.align(int(fi.Uint16("Length")) + off)
		if fi.Uint16("Length") == 0 || next <= off || next >= int(info.Uint16("Length")) {
			break
		}
		off = next
	}
}

// stringTables decodes the StringTable blocks in [off, end).
func (b *versionBlock) stringTables(off, end int) []*StringTable {
	var tables []*StringTable
	for {
		st := b.unpack(winnt.StringTable, off)
		if st == nil {
			break
		}
		lang, err := b.stringAt(off+st.Size(), maxVersionKeyLength)
		if err != nil {
			b.f.warnf("Error parsing the version information, attempting to read StringTable string. "+
				"Can't read unicode string at offset 0x%x", b.rva+off+st.Size())
			break
		}
		t := &StringTable{
			Struct:   st,
			LangID:   lang,
			Entries:  make(map[string]string),
			offsets:  make(map[string][2]uint32),
			lengths:  make(map[string][2]int),
			modified: make(map[string]bool),
		}
		tables = append(tables, t)

		tableEnd := off + int(st.Uint16("Length"))
		entryOff := b.align(off + st.Size() + 2*(utf16Len(lang)+1))
		for entryOff < tableEnd {
			next, ok := b.stringEntry(t, entryOff, tableEnd)
			if !ok || next <= entryOff {
				break
			}
			entryOff = next
		}

		next := b.align(int(st.Uint16("Length")) + off)
		if next <= off || next >= end {
			break
		}
		off = next
	}
	return tables
}

// stringEntry decodes one String record into t and returns the offset of the
// record that follows.
func (b *versionBlock) stringEntry(t *StringTable, off, tableEnd int) (int, bool) {
	s := b.unpack(winnt.String, off)
	if s == nil {
		return 0, false
	}
	keyRVA := uint32(b.rva + off + s.Size())
	key, err := b.f.GetStringUAtRVA(keyRVA, maxVersionKeyLength)
	var keyOffset uint32
	if err == nil {
		keyOffset, err = b.f.GetOffsetFromRVA(keyRVA)
	}
	if err != nil {
		b.f.warnf("Error parsing the version information, attempting to read StringTable Key string. "+
			"Can't read unicode string at offset 0x%x", keyRVA)
		return 0, false
	}

	valueRVA := uint32(b.rva + b.align(2*(utf16Len(key)+1)+off+s.Size()))
	value, err := b.f.GetStringUAtRVA(valueRVA, int(s.Uint16("ValueLength")))
	var valueOffset uint32
	if err == nil {
		valueOffset, err = b.f.GetOffsetFromRVA(valueRVA)
	}
	if err != nil {
		b.f.warnf("Error parsing the version information, attempting to read StringTable Value string. "+
			"Can't read unicode string at offset 0x%x", valueRVA)
		return 0, false
	}

	next := tableEnd
	if s.Uint16("Length") != 0 {
		next = b.align(int(s.Uint16("Length")) + off)
	}
	t.add(key, value, keyOffset, valueOffset)
	return next, true
}

// vars decodes the Var records in [off, end).
func (b *versionBlock) vars(off, end int) []*Var {
	var out []*Var
	for {
		vs := b.unpack(winnt.Var, off)
		if vs == nil {
			break
		}
		key, err := b.stringAt(off+vs.Size(), maxVersionKeyLength)
		if err != nil {
			b.f.warnf("Error parsing the version information, attempting to read VarFileInfo Var string. "+
				"Can't read unicode string at offset 0x%x", b.rva+off+vs.Size())
			break
		}
		v := &Var{Struct: vs, Key: key}
		out = append(out, v)

		wordOff := b.align(2*(utf16Len(key)+1) + off + vs.Size())
		for w := wordOff; w < wordOff+int(vs.Uint16("ValueLength")); w += 4 {
			pair := b.raw[minInt(w, len(b.raw)):minInt(w+4, len(b.raw))]
			if len(pair) == 4 {
				v.Value = fmt.Sprintf("0x%04x 0x%04x",
					uint16(pair[0])|uint16(pair[1])<<8, uint16(pair[2])|uint16(pair[3])<<8)
			}
		}

		next := b.align(off + int(vs.Uint16("Length")))
		if vs.Uint16("Length") == 0 || next <= off || next >= end {
			break
		}
		off = next
	}
	return out
}

// writeVersionStrings re-encodes the modified string table values into data.
func (f *File) writeVersionStrings(data []byte) {
	if f.version == nil {
		return
	}
	for _, t := range f.version.StringTables() {
		for _, key := range t.Keys {
			if !t.modified[key] {
				continue
			}
			enc := encodeUTF16(t.Entries[key])
			if limit := t.lengths[key][1] * 2; len(enc) > limit {
				enc = enc[:limit]
			}
			at := int(t.offsets[key][1])
			if at < len(data) {
				copy(data[at:], enc)
			}
		}
	}
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
