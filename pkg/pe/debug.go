package pe

import (
	"github.com/jtang613/gope/pkg/pe/codeview"
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// DebugEntry is one IMAGE_DEBUG_DIRECTORY entry with its decoded payload.
type DebugEntry struct {
	Struct *structure.Structure

	// Entry is the CodeView or MISC record, nil for other types or when the
	// payload cannot be decoded
	Entry *structure.Structure
	POGO  *codeview.POGO
}

// Type returns the IMAGE_DEBUG_TYPE_* value.
func (d *DebugEntry) Type() uint32 {
	return d.Struct.Uint32("Type")
}

// PGOInfo describes the POGO debug entry of an image.
type PGOInfo struct {
	Entry     *DebugEntry
	Signature uint32
	// Kind is "PGU", "PGO" or "LTCG", empty for unknown signatures
	Kind string
}

func (f *File) parseDebugDirectory(rva, size uint32) []*DebugEntry {
	entrySize := uint32(winnt.DebugDirectory.Size())

	var entries []*DebugEntry
	for idx := uint32(0); idx < size/entrySize; idx++ {
		at := rva + entrySize*idx
		data, err := f.GetData(at, int(entrySize))
		if err != nil {
			f.warnf("Invalid debug information. Can't read data at RVA: 0x%x", rva)
			return nil
		}
		off, _ := f.GetOffsetFromRVA(at)
		dbg := f.unpack(winnt.DebugDirectory, data, int(off))
		if dbg == nil {
			return nil
		}

		entry := &DebugEntry{Struct: dbg}
		ptr := int(dbg.Uint32("PointerToRawData"))
		payload := f.slice(ptr, ptr+int(dbg.Uint32("SizeOfData")))

		switch dbg.Uint32("Type") {
		case winnt.DebugTypeCodeView:
			entry.Entry = f.decodePayload(codeview.DecodeCodeView, payload, ptr, "CV_INFO")
		case winnt.DebugTypeMisc:
			entry.Entry = f.decodePayload(codeview.DecodeMisc, payload, ptr, codeview.DebugMisc.Name())
		case winnt.DebugTypePOGO:
			if p, err := codeview.ParsePOGO(payload); err == nil {
				entry.POGO = p
			}
		}
		entries = append(entries, entry)
	}
	f.logger.Trace("parsed debug directory", "entries", len(entries))
	return entries
}

func (f *File) decodePayload(decode func([]byte, int) (*structure.Structure, error),
	payload []byte, ptr int, name string) *structure.Structure {
	st, err := decode(payload, ptr)
	if err != nil {
		f.warnf("Corrupt header \"%s\" at file offset %d. Exception: %v", name, ptr, err)
		return nil
	}
	if st != nil {
		f.structures = append(f.structures, st)
	}
	return st
}

// PGO returns the first POGO debug entry together with the signature dword
// stored at its raw data pointer. ok is false when the image has no such
// entry or the dword lies outside the file.
func (f *File) PGO() (*PGOInfo, bool) {
	for _, d := range f.Debug {
		if d.Type() != winnt.DebugTypePOGO {
			continue
		}
		sig, ok := f.GetDwordFromOffset(d.Struct.Uint32("PointerToRawData"))
		if !ok {
			return nil, false
		}
		kind, _ := codeview.ClassifyPGO(sig)
		return &PGOInfo{Entry: d, Signature: sig, Kind: kind}, true
	}
	return nil, false
}
