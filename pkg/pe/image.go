package pe

// DefaultMaxVirtualAddress bounds the sections MemoryMappedImage maps.
const DefaultMaxVirtualAddress = 0x10000000

// MemoryMappedImage returns the image laid out as the loader maps it: the
// headers followed by each section at its virtual address. Sections at or
// beyond maxVA are skipped, as are sections without raw data.
func (f *File) MemoryMappedImage(maxVA uint32) []byte {
	if maxVA == 0 {
		maxVA = DefaultMaxVirtualAddress
	}
	mapped := append([]byte(nil), f.data...)

	for _, s := range f.Sections {
		if s.VirtualSize() == 0 || s.SizeOfRawData() == 0 {
			continue
		}
		if int64(s.SizeOfRawData()) > int64(len(f.data)) {
			continue
		}
		if int64(s.adjustedPointer()) > int64(len(f.data)) {
			continue
		}
		va := s.adjustedVirtualAddress()
		if va >= maxVA {
			continue
		}

		if pad := int(va) - len(mapped); pad > 0 {
			mapped = append(mapped, make([]byte, pad)...)
		} else if pad < 0 {
			mapped = mapped[:va]
		}
		mapped = append(mapped, s.Data(-1, 0)...)
	}
	return mapped
}

// MemoryMappedImageAt is MemoryMappedImage for an image loaded at imageBase.
// The relocations are applied to a copy; f itself is left unchanged.
func (f *File) MemoryMappedImageAt(maxVA uint32, imageBase uint64) ([]byte, error) {
	rebased, err := OpenBytes(f.Write())
	if err != nil {
		return nil, err
	}
	defer rebased.Close()

	rebased.RelocateImage(imageBase)
	return rebased.MemoryMappedImage(maxVA), nil
}
