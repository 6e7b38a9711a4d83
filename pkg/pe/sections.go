package pe

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const (
	maxSimultaneousErrors = 3

	// Loader constants used by the alignment adjustments
	fileAlignmentHardcoded = 0x200
	pageSize               = 0x1000

	maxSuspiciousSize = 0x10000000
)

// Section represents one section header and gives access to its data.
type Section struct {
	Header *structure.Structure

	// NextSectionVirtualAddress is the VirtualAddress of the following
	// section in address order, nil for the last one.
	NextSectionVirtualAddress *uint32

	f        *File
	modified []byte
}

// Name returns the section name without its NUL padding.
func (s *Section) Name() string {
	return string(bytes.TrimRight(s.Header.Bytes("Name"), "\x00"))
}

// VirtualAddress returns the declared section RVA.
func (s *Section) VirtualAddress() uint32 { return s.Header.Uint32("VirtualAddress") }

// VirtualSize returns Misc_VirtualSize.
func (s *Section) VirtualSize() uint32 { return s.Header.Uint32("Misc_VirtualSize") }

// SizeOfRawData returns the size of the section data in the file.
func (s *Section) SizeOfRawData() uint32 { return s.Header.Uint32("SizeOfRawData") }

// PointerToRawData returns the declared file offset of the section data.
func (s *Section) PointerToRawData() uint32 { return s.Header.Uint32("PointerToRawData") }

// Characteristics returns the section flags.
func (s *Section) Characteristics() uint32 { return s.Header.Uint32("Characteristics") }

// Flags returns the names of the characteristics bits that are set.
func (s *Section) Flags() []string {
	return winnt.FlagNames(winnt.SectionCharacteristics, uint64(s.Characteristics()))
}

func (s *Section) has(flag uint32) bool {
	return s.Characteristics()&flag == flag
}

// IsExecutable reports whether IMAGE_SCN_MEM_EXECUTE is set.
func (s *Section) IsExecutable() bool { return s.has(winnt.SectionMemExecute) }

// IsWritable reports whether IMAGE_SCN_MEM_WRITE is set.
func (s *Section) IsWritable() bool { return s.has(winnt.SectionMemWrite) }

// IsReadable reports whether IMAGE_SCN_MEM_READ is set.
func (s *Section) IsReadable() bool { return s.has(winnt.SectionMemRead) }

// ContainsCode reports whether IMAGE_SCN_CNT_CODE is set.
func (s *Section) ContainsCode() bool { return s.has(winnt.SectionCntCode) }

func (s *Section) adjustedPointer() uint32 {
	return s.f.adjustFileAlignment(s.PointerToRawData())
}

func (s *Section) adjustedVirtualAddress() uint32 {
	return s.f.adjustSectionAlignment(s.VirtualAddress())
}

// Data returns section bytes starting at the RVA start for length bytes.
// A negative start means the beginning of the section and a length <= 0
// means up to the end of the raw data.
func (s *Section) Data(start int64, length int) []byte {
	ptr := int64(s.adjustedPointer())

	offset := ptr
	if start >= 0 {
		offset = start - int64(s.adjustedVirtualAddress()) + ptr
	}

	var end int64
	if length > 0 {
		end = offset + int64(length)
	} else {
		end = offset + int64(s.SizeOfRawData())
	}
	// The unaligned pointer bounds the end so bytes cut by the alignment
	// are still reachable
	if limit := int64(s.PointerToRawData()) + int64(s.SizeOfRawData()); end > limit {
		end = limit
	}
	if offset < 0 {
		offset = 0
	}
	if end < offset {
		return nil
	}

	if s.modified != nil {
		rel := offset - ptr
		if rel < 0 || rel > int64(len(s.modified)) {
			return nil
		}
		relEnd := end - ptr
		if relEnd > int64(len(s.modified)) {
			relEnd = int64(len(s.modified))
		}
		return s.modified[rel:relEnd]
	}
	return s.f.slice(int(offset), int(end))
}

// SetData replaces the section contents. The change reaches the image bytes
// once File.MergeModifiedSectionData is called.
func (s *Section) SetData(b []byte) {
	s.modified = append([]byte(nil), b...)
}

// RVAFromOffset converts a file offset inside the section to an RVA.
func (s *Section) RVAFromOffset(off uint32) uint32 {
	return off - s.adjustedPointer() + s.adjustedVirtualAddress()
}

// OffsetFromRVA converts an RVA inside the section to a file offset.
func (s *Section) OffsetFromRVA(rva uint32) uint32 {
	return rva - s.adjustedVirtualAddress() + s.adjustedPointer()
}

// ContainsOffset reports whether off lies within the section raw data.
func (s *Section) ContainsOffset(off uint32) bool {
	ptr := uint64(s.adjustedPointer())
	return ptr <= uint64(off) && uint64(off) < ptr+uint64(s.SizeOfRawData())
}

// ContainsRVA reports whether rva lies within the section. The extent is
// clipped at the next section when the declared sizes overlap it.
func (s *Section) ContainsRVA(rva uint32) bool {
	raw := uint64(s.SizeOfRawData())
	virt := uint64(s.VirtualSize())

	var size uint64
	if int64(len(s.f.data))-int64(s.adjustedPointer()) < int64(raw) {
		// The raw data is truncated, fall back to the virtual size
		size = virt
	} else {
		size = raw
		if virt > size {
			size = virt
		}
	}

	va := uint64(s.adjustedVirtualAddress())
	if next := s.NextSectionVirtualAddress; next != nil {
		n := uint64(*next)
		if n > uint64(s.VirtualAddress()) && va+size > n {
			size = n - va
		}
	}
	return va <= uint64(rva) && uint64(rva) < va+size
}

// Contains is an alias of ContainsRVA.
func (s *Section) Contains(rva uint32) bool {
	return s.ContainsRVA(rva)
}

// Entropy returns the Shannon entropy of the section data in bits per byte.
func (s *Section) Entropy() float64 {
	return entropy(s.Data(-1, 0))
}

func entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	var h float64
	total := float64(len(data))
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

func (s *Section) digest(h hash.Hash) string {
	h.Write(s.Data(-1, 0))
	return hex.EncodeToString(h.Sum(nil))
}

// MD5 returns the hex MD5 digest of the section data.
func (s *Section) MD5() string { return s.digest(md5.New()) }

// SHA1 returns the hex SHA-1 digest of the section data.
func (s *Section) SHA1() string { return s.digest(sha1.New()) }

// SHA256 returns the hex SHA-256 digest of the section data.
func (s *Section) SHA256() string { return s.digest(sha256.New()) }

// SHA512 returns the hex SHA-512 digest of the section data.
func (s *Section) SHA512() string { return s.digest(sha512.New()) }

// parseSections decodes the section table at offset and returns the offset
// just past it.
func (f *File) parseSections(offset int) int {
	f.Sections = nil
	count := int(f.FileHeader.Uint16("NumberOfSections"))
	size := winnt.SectionHeader.Size()
	fileAlignment := f.fileAlignment()

	var pagedWX []int
	for i := 0; i < count; i++ {
		sectionOffset := offset + size*i
		raw := f.slice(sectionOffset, sectionOffset+size)

		if len(raw) == size && isZero(raw) {
			f.warnf("Invalid section %d. Contents are null-bytes.", i)
			break
		}
		if len(raw) == 0 {
			f.warnf("Invalid section %d. No data in the file (is this corkami's virtsectblXP?).", i)
			break
		}
		hdr := f.unpack(winnt.SectionHeader, raw, sectionOffset)
		if hdr == nil {
			break
		}
		s := &Section{Header: hdr, f: f}

		errs := 0
		if uint64(s.SizeOfRawData())+uint64(s.PointerToRawData()) > uint64(len(f.data)) {
			errs++
			f.warnf("Error parsing section %d. SizeOfRawData is larger than file.", i)
		}
		if int(f.adjustFileAlignment(s.PointerToRawData())) > len(f.data) {
			errs++
			f.warnf("Error parsing section %d. PointerToRawData points beyond the end of the file.", i)
		}
		if s.VirtualSize() > maxSuspiciousSize {
			errs++
			f.warnf("Suspicious value found parsing section %d. VirtualSize is extremely large > 256MiB.", i)
		}
		if f.adjustSectionAlignment(s.VirtualAddress()) > maxSuspiciousSize {
			errs++
			f.warnf("Suspicious value found parsing section %d. VirtualAddress is beyond 0x10000000.", i)
		}
		if fileAlignment != 0 && s.PointerToRawData()%fileAlignment != 0 {
			errs++
			f.warnf("Error parsing section %d. PointerToRawData should normally be a multiple of "+
				"FileAlignment, this might imply the file is trying to confuse tools which parse "+
				"this incorrectly.", i)
		}
		if errs >= maxSimultaneousErrors {
			f.warn("Too many warnings parsing section. Aborting.")
			break
		}

		if s.IsWritable() && s.IsExecutable() {
			if s.Name() == "PAGE" {
				// Drivers legitimately page code; decided once the table is complete
				pagedWX = append(pagedWX, i)
			} else {
				f.warnWriteExecute(i)
			}
		}

		f.Sections = append(f.Sections, s)
	}

	sort.SliceStable(f.Sections, func(i, j int) bool {
		return f.Sections[i].VirtualAddress() < f.Sections[j].VirtualAddress()
	})
	for i, s := range f.Sections {
		s.NextSectionVirtualAddress = nil
		if i+1 < len(f.Sections) {
			next := f.Sections[i+1].VirtualAddress()
			s.NextSectionVirtualAddress = &next
		}
	}

	if len(pagedWX) > 0 && !f.IsDriver() {
		for _, i := range pagedWX {
			f.warnWriteExecute(i)
		}
	}

	f.logger.Trace("parsed section table", "sections", len(f.Sections), "offset", offset)

	if count > 0 && len(f.Sections) > 0 {
		return offset + size*count
	}
	return offset
}

func (f *File) warnWriteExecute(i int) {
	f.warnf("Suspicious flags set for section %d. Both IMAGE_SCN_MEM_WRITE and "+
		"IMAGE_SCN_MEM_EXECUTE are set. This might indicate a packed executable.", i)
}

// adjustFileAlignment rounds a raw data pointer down the way the loader does
// when FileAlignment is at least 0x200.
func (f *File) adjustFileAlignment(v uint32) uint32 {
	fa := f.fileAlignment()
	if fa > fileAlignmentHardcoded && !isPowerOfTwo(fa) && !f.fileAlignmentWarned {
		f.warnf("If FileAlignment > 0x200 it should be a power of 2. Value: %x", fa)
		f.fileAlignmentWarned = true
	}
	if fa < fileAlignmentHardcoded {
		return v
	}
	return (v / fileAlignmentHardcoded) * fileAlignmentHardcoded
}

// adjustSectionAlignment rounds a virtual address down to the effective
// section alignment. Below page size the section alignment collapses to the
// file alignment.
func (f *File) adjustSectionAlignment(v uint32) uint32 {
	fa := f.fileAlignment()
	sa := f.sectionAlignment()
	if fa < fileAlignmentHardcoded && fa != sa && !f.sectionAlignmentWarned {
		f.warnf("If FileAlignment(%x) < 0x200 it should equal SectionAlignment(%x)", fa, sa)
		f.sectionAlignmentWarned = true
	}
	if sa < pageSize {
		sa = fa
	}
	if sa != 0 && v%sa != 0 {
		return sa * (v / sa)
	}
	return v
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
