package pe

import (
	"encoding/binary"
	"sort"
	"unicode/utf16"

	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// ResourceDirectory is one level of the resource tree.
type ResourceDirectory struct {
	Struct  *structure.Structure
	Entries []*ResourceDirectoryEntry

	// Strings holds the RT_STRING table entries below this directory, keyed
	// by string id. Only set on the id level of RT_STRING.
	Strings map[int]string
}

// ResourceDirectoryEntry is a named or numbered entry leading either to a
// subdirectory or to a data leaf.
type ResourceDirectoryEntry struct {
	Struct *structure.Structure

	// Name is set for entries identified by a string
	Name         string
	NameIsString bool
	// ID is the raw Name field of entries identified by number
	ID uint32

	Directory *ResourceDirectory
	Data      *ResourceDataEntry
}

// NameOffset returns the offset of the entry name relative to the resource
// section base.
func (e *ResourceDirectoryEntry) NameOffset() uint32 {
	return e.Struct.Uint32("Name") & 0x7fffffff
}

// DataIsDirectory reports whether the entry points to a subdirectory.
func (e *ResourceDirectoryEntry) DataIsDirectory() bool {
	return e.Struct.Uint32("OffsetToData")&0x80000000 != 0
}

// OffsetToDirectory returns the offset of the subdirectory or data entry
// relative to the resource section base.
func (e *ResourceDirectoryEntry) OffsetToDirectory() uint32 {
	return e.Struct.Uint32("OffsetToData") & 0x7fffffff
}

// ResourceDataEntry is a resource leaf.
type ResourceDataEntry struct {
	Struct  *structure.Structure
	Lang    uint32
	Sublang uint32
}

// ResourceStrings returns every RT_STRING entry found in the resources.
func (f *File) ResourceStrings() []string {
	if f.Resources == nil {
		return nil
	}
	var out []string
	for _, typ := range f.Resources.Entries {
		if typ.Directory == nil {
			continue
		}
		for _, id := range typ.Directory.Entries {
			if id.Directory == nil || len(id.Directory.Strings) == 0 {
				continue
			}
			keys := make([]int, 0, len(id.Directory.Strings))
			for k := range id.Directory.Strings {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			for _, k := range keys {
				out = append(out, id.Directory.Strings[k])
			}
		}
	}
	return out
}

func (f *File) parseResourcesDirectory(rva, size uint32) *ResourceDirectory {
	w := &resourceWalk{base: rva, parsed: make(map[uint32]*ResourceDirectory)}
	return f.parseResourceLevel(w, rva, 0, []uint32{rva})
}

// resourceWalk is the state shared by every level of one resource parse.
// Subdirectories referenced from several entries are parsed once and shared.
type resourceWalk struct {
	base      uint32
	parsed    map[uint32]*ResourceDirectory
	entries   int
	exhausted bool
}

// pendingName is a resource name whose string is read once the level is
// complete, so an overlapping name can still be discarded.
type pendingName struct {
	entry *ResourceDirectoryEntry
	rva   uint32
	end   uint32
}

// parseResourceLevel decodes the directory at rva. path holds the directories
// on the way down from the root and breaks reference cycles.
func (f *File) parseResourceLevel(w *resourceWalk, rva uint32, level int, path []uint32) *ResourceDirectory {
	if level >= MaxResourceDepth {
		f.warnf("Error parsing the resources directory. The directory at RVA 0x%x is nested deeper than %d levels",
			rva, MaxResourceDepth)
		return nil
	}
	base := w.base

	data, err := f.GetData(rva, winnt.ResourceDirectory.Size())
	if err != nil {
		f.warnf("Invalid resources directory. Can't read directory data at RVA: 0x%x", rva)
		return nil
	}
	off, _ := f.GetOffsetFromRVA(rva)
	hdr := f.unpack(winnt.ResourceDirectory, data, int(off))
	if hdr == nil {
		f.warnf("Invalid resources directory. Can't parse directory data at RVA: 0x%x", rva)
		return nil
	}

	count := int(hdr.Uint16("NumberOfNamedEntries")) + int(hdr.Uint16("NumberOfIdEntries"))
	if count > MaxResourceEntries {
		f.warnf("Error parsing the resources directory. The directory contains %d entries (>%d)",
			count, MaxResourceEntries)
		return nil
	}
	rva += uint32(winnt.ResourceDirectory.Size())

	dir := &ResourceDirectory{Struct: hdr}
	var names []pendingName

	for idx := 0; idx < count; idx++ {
		w.entries++
		if w.entries > MaxResourceTotal {
			if !w.exhausted {
				w.exhausted = true
				f.warnf("Error parsing the resources directory. The file contains more than %d entries",
					MaxResourceTotal)
			}
			break
		}
		entry := f.parseResourceEntry(rva)
		if entry == nil {
			f.warnf("Error parsing the resources directory, Entry %d is invalid, RVA = 0x%x. ", idx, rva)
			break
		}

		nameField := entry.Struct.Uint32("Name")
		if nameField&0x80000000 != 0 {
			at := base + entry.NameOffset()
			length, _ := f.GetWordAtRVA(at)

			if n := len(names); n > 0 && names[n-1].rva < at && at <= names[n-1].end {
				names = names[:n-1]
				f.warnf("Error parsing the resources directory, attempting to read entry name. "+
					"Entry names overlap 0x%x", at)
				break
			}
			entry.NameIsString = true
			names = append(names, pendingName{entry: entry, rva: at, end: at + uint32(length)})
		} else {
			entry.ID = nameField
		}

		if entry.DataIsDirectory() {
			child := base + entry.OffsetToDirectory()
			if containsRVA(path, child) {
				break
			}
			sub, ok := w.parsed[child]
			if !ok {
				sub = f.parseResourceLevel(w, child, level+1, append(path[:len(path):len(path)], child))
				w.parsed[child] = sub
			}
			if sub == nil {
				break
			}
			entry.Directory = sub
			if !entry.NameIsString && entry.ID == winnt.RTString {
				f.collectStringTables(sub)
			}
			dir.Entries = append(dir.Entries, entry)
		} else {
			leaf := f.parseResourceDataEntry(base + entry.OffsetToDirectory())
			if leaf == nil {
				break
			}
			leaf.Lang = nameField & 0x3ff
			leaf.Sublang = nameField >> 10
			entry.Data = leaf
			dir.Entries = append(dir.Entries, entry)
		}

		if level == 0 && nameField&0xffff == winnt.RTVersion && len(dir.Entries) > 0 {
			f.parseVersionResource(dir.Entries[len(dir.Entries)-1])
		}

		rva += uint32(winnt.ResourceDirectoryEntry.Size())
	}

	for _, n := range names {
		s, err := f.GetStringUAtRVA(n.rva+2, int(n.end-n.rva))
		if err != nil {
			f.warnf("Error parsing the resources directory, attempting to read entry name. "+
				"Can't read unicode string at offset 0x%x", n.rva)
			continue
		}
		n.entry.Name = s
	}
	return dir
}

func containsRVA(path []uint32, rva uint32) bool {
	for _, p := range path {
		if p == rva {
			return true
		}
	}
	return false
}

func (f *File) parseResourceEntry(rva uint32) *ResourceDirectoryEntry {
	data, err := f.GetData(rva, winnt.ResourceDirectoryEntry.Size())
	if err != nil {
		return nil
	}
	off, _ := f.GetOffsetFromRVA(rva)
	st := f.unpack(winnt.ResourceDirectoryEntry, data, int(off))
	if st == nil {
		return nil
	}
	return &ResourceDirectoryEntry{Struct: st}
}

func (f *File) parseResourceDataEntry(rva uint32) *ResourceDataEntry {
	data, err := f.GetData(rva, winnt.ResourceDataEntry.Size())
	if err != nil {
		f.warnf("Error parsing a resource directory data entry, the RVA is invalid: 0x%x", rva)
		return nil
	}
	off, _ := f.GetOffsetFromRVA(rva)
	st := f.unpack(winnt.ResourceDataEntry, data, int(off))
	if st == nil {
		return nil
	}
	return &ResourceDataEntry{Struct: st}
}

// collectStringTables decodes the RT_STRING blocks below the type directory.
// Block n holds the strings with ids (n-1)*16 to n*16-1.
func (f *File) collectStringTables(typ *ResourceDirectory) {
	for _, id := range typ.Entries {
		if id.Directory == nil || id.NameIsString {
			continue
		}
		strs := make(map[int]string)
		for _, lang := range id.Directory.Entries {
			if lang.Data == nil {
				continue
			}
			blob, err := f.GetData(lang.Data.Struct.Uint32("OffsetToData"), int(lang.Data.Struct.Uint32("Size")))
			if err != nil {
				continue
			}
			parseStringTable(blob, (int(id.ID)-1)*16, strs)
		}
		id.Directory.Strings = strs
	}
}

const maxStringTableErrors = 3

// parseStringTable decodes a block of length-prefixed UTF-16LE strings into
// out, numbering them from counter. Empty slots consume an id.
func parseStringTable(data []byte, counter int, out map[int]string) {
	errs := 0
	for i := 0; i+2 <= len(data); counter++ {
		n := int(int16(binary.LittleEndian.Uint16(data[i:])))
		i += 2
		if n != 0 && n*2 >= 0 && n*2 <= len(data) {
			end := i + n*2
			if end > len(data) {
				end = len(data)
			}
			raw := data[i:end]
			if validUTF16(raw) {
				out[counter] = decodeUTF16(raw)
			} else {
				errs++
				if errs >= maxStringTableErrors {
					break
				}
			}
			i += n * 2
		}
	}
}

// validUTF16 reports whether b is a complete UTF-16LE sequence without
// unpaired surrogates.
func validUTF16(b []byte) bool {
	if len(b)%2 != 0 {
		return false
	}
	for i := 0; i < len(b); i += 2 {
		u := rune(binary.LittleEndian.Uint16(b[i:]))
		switch {
		case utf16.IsSurrogate(u) && u < 0xdc00:
			if i+4 > len(b) {
				return false
			}
			next := rune(binary.LittleEndian.Uint16(b[i+2:]))
			if next < 0xdc00 || next > 0xdfff {
				return false
			}
			i += 2
		case utf16.IsSurrogate(u):
			return false
		}
	}
	return true
}
