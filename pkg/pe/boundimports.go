package pe

import (
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const maxBoundNameLength = 256

// BoundImportDescriptor is one module the image was bound against.
type BoundImportDescriptor struct {
	Struct  *structure.Structure
	Name    string
	Entries []*BoundForwarderRef
}

// BoundForwarderRef is a module that a bound import forwards to.
type BoundForwarderRef struct {
	Struct *structure.Structure
	Name   string
}

// The descriptor RVA is used as a file offset, which is how the loader
// treats this directory: it lives in the headers, outside every section.
func (f *File) parseBoundImportsDirectory(rva, size uint32) []*BoundImportDescriptor {
	descSize := uint32(winnt.BoundImportDescriptor.Size())
	start := rva

	var bound []*BoundImportDescriptor
	for {
		desc := f.unpack(winnt.BoundImportDescriptor, f.slice(int(rva), int(rva+descSize)), int(rva))
		if desc == nil {
			f.warn("The Bound Imports directory exists but can't be parsed.")
			return bound
		}
		if desc.AllZero() {
			break
		}
		rva += descSize

		boundary, ok := f.boundImportBoundary(rva)
		if !ok {
			f.warnf("RVA of IMAGE_BOUND_IMPORT_DESCRIPTOR points to an invalid address: %x", rva)
			return bound
		}

		var refs []*BoundForwarderRef
		count := minInt64(int64(desc.Uint16("NumberOfModuleForwarderRefs")), boundary/int64(descSize))
		for i := int64(0); i < count; i++ {
			ref := f.unpack(winnt.BoundForwarderRef, f.slice(int(rva), int(rva+descSize)), int(rva))
			if ref == nil {
				f.warn("IMAGE_BOUND_FORWARDER_REF cannot be read")
				return bound
			}
			rva += descSize

			name := f.boundModuleName(start, ref.Uint16("OffsetModuleName"))
			if !validBoundName(name) {
				break
			}
			refs = append(refs, &BoundForwarderRef{Struct: ref, Name: name})
		}

		name := f.boundModuleName(start, desc.Uint16("OffsetModuleName"))
		if name == "" || !validBoundName(name) {
			break
		}
		bound = append(bound, &BoundImportDescriptor{Struct: desc, Name: name, Entries: refs})
	}
	return bound
}

// boundImportBoundary returns how many bytes may follow off: up to the end
// of the section holding it, or up to the next section.
func (f *File) boundImportBoundary(off uint32) (int64, bool) {
	if s := f.GetSectionByOffset(off); s != nil {
		return int64(s.PointerToRawData()) + int64(len(s.Data(-1, 0))) - int64(off), true
	}
	fileOffset, err := f.GetOffsetFromRVA(off)
	if err != nil {
		return 0, false
	}

	var next *Section
	for _, s := range f.Sections {
		if s.PointerToRawData() > fileOffset && (next == nil || s.PointerToRawData() < next.PointerToRawData()) {
			next = s
		}
	}
	if next == nil {
		return 0, false
	}
	s := f.GetSectionByOffset(next.PointerToRawData())
	if s == nil {
		return 0, false
	}
	return int64(s.PointerToRawData()) - int64(fileOffset), true
}

func (f *File) boundModuleName(start uint32, offset uint16) string {
	at := int(start) + int(offset)
	return GetStringFromData(0, f.slice(at, at+MaxStringLength))
}

// validBoundName rejects names that are too long or hold non-printable
// characters. Empty names pass.
func validBoundName(name string) bool {
	if len(name) > maxBoundNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 0x20 || c > 0x7e) && (c < '\t' || c > '\r') {
			return false
		}
	}
	return true
}
