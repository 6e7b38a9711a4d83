package pe

import (
	"encoding/binary"

	"github.com/jtang613/gope/pkg/pe/winnt"
)

// Layout of the synthetic images.
const (
	testLfanew           = 0x100
	testHeadersSize      = 0x400
	testFileAlignment    = 0x200
	testSectionAlignment = 0x1000
	testImageBase32      = 0x400000
	testImageBase64      = 0x140000000
	testOptOffset        = testLfanew + 4 + 20
)

type testSection struct {
	name        string
	va          uint32
	data        []byte
	chars       uint32
	virtualSize uint32 // defaults to len(data)
}

// testImage assembles a minimal PE32 or PE32+ image.
type testImage struct {
	is64            bool
	characteristics uint16
	entry           uint32
	imageBase       uint64
	numDirs         int
	dirs            map[int][2]uint32
	sections        []testSection
	richKey         uint32
	rich            []uint32
	overlay         []byte
}

func newTestImage(is64 bool) *testImage {
	img := &testImage{
		is64:            is64,
		characteristics: winnt.FileExecutableImage,
		numDirs:         winnt.NumberOfDirectoryEntries,
		dirs:            make(map[int][2]uint32),
	}
	if is64 {
		img.imageBase = testImageBase64
	} else {
		img.imageBase = testImageBase32
		img.characteristics |= winnt.File32BitMachine
	}
	return img
}

func (img *testImage) addSection(name string, va uint32, data []byte, chars uint32) *testImage {
	img.sections = append(img.sections, testSection{name: name, va: va, data: data, chars: chars})
	return img
}

func (img *testImage) dir(idx int, rva, size uint32) *testImage {
	img.dirs[idx] = [2]uint32{rva, size}
	return img
}

func alignUp(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}

// rawPointer returns the file offset the builder assigns to section i.
func (img *testImage) rawPointer(i int) uint32 {
	ptr := uint32(testHeadersSize)
	for _, s := range img.sections[:i] {
		ptr += alignUp(uint32(len(s.data)), testFileAlignment)
	}
	return ptr
}

func (img *testImage) optionalHeaderSize() int {
	if img.is64 {
		return 112
	}
	return 96
}

func (img *testImage) build() []byte {
	total := img.rawPointer(len(img.sections))
	buf := make([]byte, total)

	// DOS header and stub
	copy(buf, "MZ")
	put32(buf, 0x3c, testLfanew)
	copy(buf[0x40:], "This program cannot be run in DOS mode.")
	if img.rich != nil {
		img.putRich(buf)
	}

	copy(buf[testLfanew:], "PE\x00\x00")

	fh := testLfanew + 4
	machine := uint16(winnt.MachineI386)
	if img.is64 {
		machine = winnt.MachineAMD64
	}
	optSize := img.optionalHeaderSize() + 8*img.numDirs
	put16(buf, fh, machine)
	put16(buf, fh+2, uint16(len(img.sections)))
	put32(buf, fh+4, 0x5f000000)
	put16(buf, fh+16, uint16(optSize))
	put16(buf, fh+18, img.characteristics)

	sizeOfImage := uint32(testSectionAlignment)
	for _, s := range img.sections {
		vs := s.virtualSize
		if vs == 0 {
			vs = uint32(len(s.data))
		}
		if end := alignUp(s.va+vs, testSectionAlignment); end > sizeOfImage {
			sizeOfImage = end
		}
	}

	entry := img.entry
	if entry == 0 && len(img.sections) > 0 {
		entry = img.sections[0].va
	}

	opt := testOptOffset
	put8(buf, opt+2, 14)
	put32(buf, opt+16, entry)
	put32(buf, opt+20, 0x1000)
	if img.is64 {
		put16(buf, opt, winnt.OptionalHeaderMagicPEPlus)
		put64(buf, opt+24, img.imageBase)
	} else {
		put16(buf, opt, winnt.OptionalHeaderMagicPE)
		put32(buf, opt+28, uint32(img.imageBase))
	}
	put32(buf, opt+32, testSectionAlignment)
	put32(buf, opt+36, testFileAlignment)
	put16(buf, opt+40, 6)
	put16(buf, opt+48, 6)
	put32(buf, opt+56, sizeOfImage)
	put32(buf, opt+60, testHeadersSize)
	put16(buf, opt+68, 3) // console
	put32(buf, opt+img.optionalHeaderSize()-4, uint32(img.numDirs))

	dirs := opt + img.optionalHeaderSize()
	for idx, d := range img.dirs {
		if idx < img.numDirs {
			put32(buf, dirs+8*idx, d[0])
			put32(buf, dirs+8*idx+4, d[1])
		}
	}

	table := opt + optSize
	for i, s := range img.sections {
		at := table + 40*i
		vs := s.virtualSize
		if vs == 0 {
			vs = uint32(len(s.data))
		}
		chars := s.chars
		if chars == 0 {
			chars = winnt.SectionCntInitializedData | winnt.SectionMemRead
		}
		copy(buf[at:at+8], s.name)
		put32(buf, at+8, vs)
		put32(buf, at+12, s.va)
		put32(buf, at+16, alignUp(uint32(len(s.data)), testFileAlignment))
		put32(buf, at+20, img.rawPointer(i))
		put32(buf, at+36, chars)
		copy(buf[img.rawPointer(i):], s.data)
	}

	return append(buf, img.overlay...)
}

// putRich writes a Rich header between the DOS stub and the NT headers.
func (img *testImage) putRich(buf []byte) {
	key := img.richKey
	at := richStart
	put32(buf, at, dansSignature^key)
	put32(buf, at+4, key)
	put32(buf, at+8, key)
	put32(buf, at+12, key)
	at += 16
	for _, v := range img.rich {
		put32(buf, at, v^key)
		at += 4
	}
	copy(buf[at:], "Rich")
	put32(buf, at+4, key)
}

func put8(b []byte, off int, v uint8)   { b[off] = v }
func put16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func put32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func put64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

// sectionBuffer lays out directory contents inside a section at va.
type sectionBuffer struct {
	va  uint32
	buf []byte
}

func newSectionBuffer(va uint32) *sectionBuffer {
	return &sectionBuffer{va: va}
}

// alloc reserves n zeroed bytes at a 4-byte boundary and returns their RVA.
func (s *sectionBuffer) alloc(n int) uint32 {
	for len(s.buf)%4 != 0 {
		s.buf = append(s.buf, 0)
	}
	rva := s.va + uint32(len(s.buf))
	s.buf = append(s.buf, make([]byte, n)...)
	return rva
}

func (s *sectionBuffer) bytes(b []byte) uint32 {
	rva := s.alloc(len(b))
	copy(s.buf[rva-s.va:], b)
	return rva
}

func (s *sectionBuffer) cstring(str string) uint32 {
	return s.bytes(append([]byte(str), 0))
}

func (s *sectionBuffer) put16(rva uint32, v uint16) { put16(s.buf, int(rva-s.va), v) }
func (s *sectionBuffer) put32(rva uint32, v uint32) { put32(s.buf, int(rva-s.va), v) }
func (s *sectionBuffer) put64(rva uint32, v uint64) { put64(s.buf, int(rva-s.va), v) }

type testImport struct {
	dll      string
	names    []string
	ordinals []uint16
}

// buildImports writes an import directory and returns its RVA and size.
func buildImports(sb *sectionBuffer, is64 bool, mods []testImport) (uint32, uint32) {
	descSize := winnt.ImportDescriptor.Size()
	dirRVA := sb.alloc(descSize * (len(mods) + 1))

	thunk := 4
	flag := uint64(winnt.OrdinalFlag32)
	if is64 {
		thunk = 8
		flag = winnt.OrdinalFlag64
	}
	putThunk := func(rva uint32, v uint64) {
		if is64 {
			sb.put64(rva, v)
		} else {
			sb.put32(rva, uint32(v))
		}
	}

	for i, m := range mods {
		n := len(m.names) + len(m.ordinals)
		ilt := sb.alloc(thunk * (n + 1))
		iat := sb.alloc(thunk * (n + 1))
		slot := 0
		for _, name := range m.names {
			hint := sb.bytes(append([]byte{0, 0}, append([]byte(name), 0)...))
			putThunk(ilt+uint32(slot*thunk), uint64(hint))
			putThunk(iat+uint32(slot*thunk), uint64(hint))
			slot++
		}
		for _, ord := range m.ordinals {
			putThunk(ilt+uint32(slot*thunk), flag|uint64(ord))
			putThunk(iat+uint32(slot*thunk), flag|uint64(ord))
			slot++
		}
		name := sb.cstring(m.dll)

		desc := dirRVA + uint32(i*descSize)
		sb.put32(desc, ilt)
		sb.put32(desc+12, name)
		sb.put32(desc+16, iat)
	}
	return dirRVA, uint32(descSize * (len(mods) + 1))
}

type testExport struct {
	name      string
	address   uint32
	forwarder string
}

// buildExports writes an export directory with Base 1 and returns its RVA
// and size. Exports without a name are only reachable by ordinal.
func buildExports(sb *sectionBuffer, module string, exports []testExport) (uint32, uint32) {
	dirRVA := sb.alloc(winnt.ExportDirectory.Size())
	funcs := sb.alloc(4 * len(exports))

	var named []int
	for i, e := range exports {
		if e.name != "" {
			named = append(named, i)
		}
	}
	names := sb.alloc(4 * len(named))
	ordinals := sb.alloc(2 * len(named))

	for j, i := range named {
		sb.put32(names+uint32(4*j), sb.cstring(exports[i].name))
		sb.put16(ordinals+uint32(2*j), uint16(i))
	}
	for i, e := range exports {
		addr := e.address
		if e.forwarder != "" {
			addr = sb.cstring(e.forwarder)
		}
		sb.put32(funcs+uint32(4*i), addr)
	}
	moduleRVA := sb.cstring(module)
	size := uint32(len(sb.buf)) - (dirRVA - sb.va)

	sb.put32(dirRVA+12, moduleRVA)
	sb.put32(dirRVA+16, 1)
	sb.put32(dirRVA+20, uint32(len(exports)))
	sb.put32(dirRVA+24, uint32(len(named)))
	sb.put32(dirRVA+28, funcs)
	sb.put32(dirRVA+32, names)
	sb.put32(dirRVA+36, ordinals)
	return dirRVA, size
}

// resourceNode describes a resource directory or, when data is set, a leaf.
type resourceNode struct {
	id       uint32
	name     string
	children []*resourceNode
	data     []byte
}

// buildResources writes a resource tree and returns the RVA of its root.
func buildResources(sb *sectionBuffer, root []*resourceNode) uint32 {
	base := sb.alloc(0)
	writeResourceDirectory(sb, base, root)
	return base
}

func writeResourceDirectory(sb *sectionBuffer, base uint32, entries []*resourceNode) uint32 {
	var named, ids []*resourceNode
	for _, e := range entries {
		if e.name != "" {
			named = append(named, e)
		} else {
			ids = append(ids, e)
		}
	}
	ordered := append(named, ids...)

	dir := sb.alloc(winnt.ResourceDirectory.Size() + 8*len(ordered))
	sb.put16(dir+12, uint16(len(named)))
	sb.put16(dir+14, uint16(len(ids)))

	for i, e := range ordered {
		at := dir + uint32(winnt.ResourceDirectory.Size()+8*i)
		if e.name != "" {
			str := sb.alloc(2 + 2*len(e.name))
			sb.put16(str, uint16(len(e.name)))
			copy(sb.buf[str-sb.va+2:], encodeUTF16(e.name))
			sb.put32(at, 0x80000000|(str-base))
		} else {
			sb.put32(at, e.id)
		}

		if e.data != nil {
			leaf := sb.alloc(winnt.ResourceDataEntry.Size())
			blob := sb.bytes(e.data)
			sb.put32(leaf, blob)
			sb.put32(leaf+4, uint32(len(e.data)))
			sb.put32(at+4, leaf-base)
			continue
		}
		sub := writeResourceDirectory(sb, base, e.children)
		sb.put32(at+4, 0x80000000|(sub-base))
	}
	return dir
}

// stringTableBlob encodes the 16 length-prefixed strings of an RT_STRING
// block.
func stringTableBlob(strs ...string) []byte {
	var out []byte
	for i := 0; i < 16; i++ {
		var s string
		if i < len(strs) {
			s = strs[i]
		}
		var n [2]byte
		binary.LittleEndian.PutUint16(n[:], uint16(utf16Len(s)))
		out = append(out, n[:]...)
		out = append(out, encodeUTF16(s)...)
	}
	return out
}

// versionNode encodes one version resource block: header, key, value and
// children, each aligned to a dword.
func versionNode(key string, valueLength, typ uint16, value []byte, children ...[]byte) []byte {
	b := make([]byte, 6)
	b = append(b, encodeUTF16(key)...)
	b = append(b, 0, 0)
	b = padDword(b)
	b = append(b, value...)
	for _, c := range children {
		b = padDword(b)
		b = append(b, c...)
	}
	binary.LittleEndian.PutUint16(b[0:], uint16(len(b)))
	binary.LittleEndian.PutUint16(b[2:], valueLength)
	binary.LittleEndian.PutUint16(b[4:], typ)
	return b
}

func padDword(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func versionString(key, value string) []byte {
	v := append(encodeUTF16(value), 0, 0)
	return versionNode(key, uint16(len(value)+1), 1, v)
}

// versionResource encodes a VS_VERSIONINFO with one string table and a
// translation var.
func versionResource(lang string, kv ...string) []byte {
	fixed := make([]byte, winnt.VSFixedFileInfo.Size())
	put32(fixed, 0, 0xfeef04bd)
	put32(fixed, 4, 0x10000)
	put32(fixed, 8, 0x10002)
	put32(fixed, 12, 0x30004)

	var strs [][]byte
	for i := 0; i+1 < len(kv); i += 2 {
		strs = append(strs, versionString(kv[i], kv[i+1]))
	}
	table := versionNode(lang, 0, 1, nil, strs...)
	sfi := versionNode("StringFileInfo", 0, 1, nil, table)

	translation := []byte{0x09, 0x04, 0xb0, 0x04}
	vfi := versionNode("VarFileInfo", 0, 1, nil, versionNode("Translation", 4, 0, translation))

	return versionNode(versionInfoKey, uint16(len(fixed)), 0, fixed, sfi, vfi)
}

type testDebug struct {
	typ     uint32
	payload []byte
}

// buildDebug writes a debug directory followed by the entry payloads and
// returns its RVA and size. rawBase is the file offset of the section.
func buildDebug(sb *sectionBuffer, rawBase uint32, entries []testDebug) (uint32, uint32) {
	size := winnt.DebugDirectory.Size()
	dir := sb.alloc(size * len(entries))
	for i, e := range entries {
		at := dir + uint32(i*size)
		data := sb.bytes(e.payload)
		sb.put32(at+12, e.typ)
		sb.put32(at+16, uint32(len(e.payload)))
		sb.put32(at+20, data)
		sb.put32(at+24, rawBase+(data-sb.va))
	}
	return dir, uint32(size * len(entries))
}

// buildRelocations writes one relocation block for the page at base and
// returns its RVA and size.
func buildRelocations(sb *sectionBuffer, base uint32, entries []uint16) (uint32, uint32) {
	size := uint32(winnt.BaseRelocation.Size() + 2*len(entries))
	block := sb.alloc(int(size))
	sb.put32(block, base)
	sb.put32(block+4, size)
	for i, e := range entries {
		sb.put16(block+8+uint32(2*i), e)
	}
	return block, size
}

func rsdsPayload(pdb string) []byte {
	b := []byte("RSDS")
	b = append(b, 0x78, 0x56, 0x34, 0x12, 0xbc, 0x9a, 0xf0, 0xde)
	b = append(b, 1, 2, 3, 4, 5, 6, 7, 8)
	b = binary.LittleEndian.AppendUint32(b, 2)
	return append(append(b, pdb...), 0)
}

// pogoPayload encodes a POGO signature followed by one record per section
// name.
func pogoPayload(sig uint32, sections ...string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, sig)
	for i, name := range sections {
		b = binary.LittleEndian.AppendUint32(b, uint32(0x1000*(i+1)))
		b = binary.LittleEndian.AppendUint32(b, 0x100)
		b = append(b, name...)
		b = append(b, 0)
		b = padDword(b)
	}
	return b
}
