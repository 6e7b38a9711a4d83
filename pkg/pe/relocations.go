package pe

import (
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// relocationWindow is how many recent (offset, type) pairs are checked for
// repeats inside one block.
const relocationWindow = 1000

// BaseRelocation is one relocation block covering a 4 KiB page.
type BaseRelocation struct {
	Struct  *structure.Structure
	Entries []*RelocationEntry
}

// RelocationEntry is one fixup of a relocation block.
type RelocationEntry struct {
	Struct  *structure.Structure
	Type    uint8
	BaseRVA uint32
	RVA     uint32
}

func (f *File) parseRelocationsDirectory(rva, size uint32) []*BaseRelocation {
	var blocks []*BaseRelocation
	sizeOfImage := f.OptionalHeader.Uint32("SizeOfImage")
	end := uint64(rva) + uint64(size)

	for uint64(rva) < end {
		hdr, ok := f.unpackAtRVA(winnt.BaseRelocation, rva)
		if !ok {
			f.warnf("Invalid relocation information. Can't read data at RVA: 0x%x", rva)
		}
		if hdr == nil {
			break
		}

		va := hdr.Uint32("VirtualAddress")
		blockSize := hdr.Uint32("SizeOfBlock")
		if va > sizeOfImage {
			f.warnf("Invalid relocation information. VirtualAddress outside of Image: 0x%x", va)
			break
		}
		if blockSize > sizeOfImage {
			f.warnf("Invalid relocation information. SizeOfBlock too large: %d", blockSize)
			break
		}

		entries := f.parseRelocationEntries(rva+uint32(hdr.Size()), va, int64(blockSize)-int64(hdr.Size()))
		blocks = append(blocks, &BaseRelocation{Struct: hdr, Entries: entries})

		if blockSize == 0 {
			break
		}
		rva += blockSize
	}
	f.logger.Trace("parsed relocations", "blocks", len(blocks))
	return blocks
}

type relocationKey struct {
	offset uint16
	typ    uint8
}

// parseRelocationEntries decodes the entries of the block at rva. The walk
// stops at a pair repeated within the recent window, which marks a block
// crafted to loop.
func (f *File) parseRelocationEntries(rva, base uint32, size int64) []*RelocationEntry {
	if size <= 0 {
		return nil
	}
	data, err := f.GetData(rva, int(size))
	if err != nil {
		f.warnf("Bad RVA in relocation data: 0x%x", rva)
		return nil
	}
	fileOffset, _ := f.GetOffsetFromRVA(rva)

	var (
		entries []*RelocationEntry
		window  []relocationKey
		seen    = make(map[relocationKey]int)
	)
	for idx := 0; idx < len(data)/2; idx++ {
		st := f.unpack(winnt.BaseRelocationEntry, data[idx*2:idx*2+2], int(fileOffset)+idx*2)
		if st == nil {
			break
		}
		word := st.Uint16("Data")
		key := relocationKey{offset: word & 0x0fff, typ: uint8(word >> 12)}

		if seen[key] > 0 {
			f.warnf("Overlapping offsets in relocation data data at RVA: 0x%x", uint32(key.offset)+rva)
			break
		}
		window = append(window, key)
		seen[key]++
		if len(window) > relocationWindow {
			old := window[0]
			window = window[1:]
			seen[old]--
		}

		entries = append(entries, &RelocationEntry{
			Struct:  st,
			Type:    key.typ,
			BaseRVA: base,
			RVA:     base + uint32(key.offset),
		})
	}
	return entries
}

// RelocateImage applies the base relocations as if the image were loaded at
// newBase, then updates ImageBase. The patches land in the File's copy of
// the data.
func (f *File) RelocateImage(newBase uint64) {
	diff := newBase - f.ImageBase()

	for _, block := range f.Relocations {
		entries := block.Entries
		for i := 0; i < len(entries); i++ {
			e := entries[i]
			switch e.Type {
			case winnt.RelBasedAbsolute:
			case winnt.RelBasedHigh:
				if w, ok := f.GetWordAtRVA(e.RVA); ok {
					f.SetWordAtRVA(e.RVA, uint16((uint64(w)+diff)>>16))
				}
			case winnt.RelBasedLow:
				if w, ok := f.GetWordAtRVA(e.RVA); ok {
					f.SetWordAtRVA(e.RVA, uint16(uint64(w)+diff))
				}
			case winnt.RelBasedHighLow:
				if d, ok := f.GetDwordAtRVA(e.RVA); ok {
					f.SetDwordAtRVA(e.RVA, uint32(uint64(d)+diff))
				}
			case winnt.RelBasedHighAdj:
				// The low half of the target comes from the following entry
				if i+1 >= len(entries) {
					break
				}
				i++
				next := entries[i]
				if w, ok := f.GetWordAtRVA(e.RVA); ok {
					v := (uint64(w)<<16 + uint64(next.RVA) + diff) & 0xffff0000
					f.SetWordAtRVA(e.RVA, uint16(v>>16))
				}
			case winnt.RelBasedDir64:
				if q, ok := f.GetQwordAtRVA(e.RVA); ok {
					f.SetQwordAtRVA(e.RVA, q+diff)
				}
			}
		}
	}

	f.OptionalHeader.Set("ImageBase", newBase)
}
