package pe

import (
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const (
	// Minimum optional header bytes the loader accepts, the rest is zero-padded
	minOptionalHeaderSize32 = 69
	minOptionalHeaderSize64 = 73

	optionalHeaderWindow = 0x200
	optionalHeaderPad    = 128

	maxAssumedRvaAndSizes = 0x100
)

func (f *File) parse(c *config) error {
	f.logger.Trace("parsing image", "size", len(f.data))

	f.checkByteFrequency()

	// DOS header
	f.DOSHeader = f.unpack(winnt.DOSHeader, f.slice(0, 64), 0)
	if f.DOSHeader == nil {
		return formatError("Unable to read the DOS Header, possibly a truncated file.")
	}
	switch f.DOSHeader.Uint16("e_magic") {
	case winnt.DOSSignature:
	case winnt.DOSSignatureZM:
		return formatError("Probably a ZM Executable (not a PE file).")
	default:
		return formatError("DOS Header magic not found.")
	}

	lfanew := int(f.DOSHeader.Uint32("e_lfanew"))
	if lfanew > len(f.data) {
		return formatError("Invalid e_lfanew value, probably not a PE file")
	}

	// NT signature
	f.NTHeaders = f.unpack(winnt.NTHeaders, f.slice(lfanew, lfanew+8), lfanew)
	if f.NTHeaders == nil || f.NTHeaders.Uint32("Signature") == 0 {
		return formatError("NT Headers not found.")
	}
	sig := f.NTHeaders.Uint32("Signature")
	switch sig & 0xffff {
	case winnt.OS2Signature:
		return formatError("Invalid NT Headers signature. Probably a NE file")
	case winnt.OS2SignatureLE:
		return formatError("Invalid NT Headers signature. Probably a LE file")
	case winnt.LXSignature:
		return formatError("Invalid NT Headers signature. Probably a LX file")
	case winnt.TESignature:
		return formatError("Invalid NT Headers signature. Probably a TE file")
	}
	if sig != winnt.NTSignature {
		return formatError("Invalid NT Headers signature.")
	}

	// COFF file header
	fileHeaderOffset := lfanew + 4
	f.FileHeader = f.unpack(winnt.FileHeader, f.slice(fileHeaderOffset, fileHeaderOffset+32), fileHeaderOffset)
	if f.FileHeader == nil {
		return formatError("File Header missing")
	}

	optOffset := fileHeaderOffset + winnt.FileHeader.Size()
	sectionsOffset := optOffset + int(f.FileHeader.Uint16("SizeOfOptionalHeader"))

	f.OptionalHeader = f.unpackOptionalHeader(winnt.OptionalHeader32, optOffset, 256, minOptionalHeaderSize32)
	if f.OptionalHeader != nil {
		switch f.OptionalHeader.Uint16("Magic") {
		case winnt.OptionalHeaderMagicPE:
			f.peType = Type32
		case winnt.OptionalHeaderMagicPEPlus:
			f.peType = Type64
			f.OptionalHeader = f.unpackOptionalHeader(winnt.OptionalHeader64, optOffset, optionalHeaderWindow, minOptionalHeaderSize64)
		}
	}
	if f.OptionalHeader == nil {
		return formatError("No Optional Header found, invalid PE32 or PE32+ file.")
	}
	if f.peType == TypeUnknown {
		f.warnf("Invalid type 0x%04x in Optional Header.", f.OptionalHeader.Uint16("Magic"))
	}
	f.logger.Trace("optional header", "type", f.peType.String(), "offset", optOffset)

	entryPoint := f.OptionalHeader.Uint32("AddressOfEntryPoint")
	if entryPoint < f.OptionalHeader.Uint32("SizeOfHeaders") {
		f.warn("SizeOfHeaders is smaller than AddressOfEntryPoint: this file cannot run under Windows 8.")
	}

	numRvaAndSizes := f.OptionalHeader.Uint32("NumberOfRvaAndSizes")
	if numRvaAndSizes > 0x10 {
		f.warnf("Suspicious NumberOfRvaAndSizes in the Optional Header. "+
			"Normal values are never larger than 0x10, the value is: 0x%x", numRvaAndSizes)
	}

	f.parseDataDirectoryTable(optOffset, numRvaAndSizes)

	offset := f.parseSections(sectionsOffset)
	f.header = f.slice(0, f.headerLength(offset))

	if f.GetSectionByRVA(entryPoint) != nil {
		epOffset, err := f.GetOffsetFromRVA(entryPoint)
		if err == nil && int(epOffset) > len(f.data) {
			f.warnf("Possibly corrupt file. AddressOfEntryPoint lies outside the file. "+
				"AddressOfEntryPoint: 0x%x", entryPoint)
		}
	} else {
		f.warnf("AddressOfEntryPoint lies outside the sections' boundaries. "+
			"AddressOfEntryPoint: 0x%x", entryPoint)
	}

	switch {
	case c.fastLoad:
	case len(c.directories) > 0:
		f.ParseDataDirectories(Directories(c.directories...))
		f.RichHeader = f.parseRichHeader()
	default:
		f.FullLoad()
	}
	return nil
}

// unpackOptionalHeader decodes the optional header, retrying with zero
// padding when the header is truncated but still large enough for the loader.
func (f *File) unpackOptionalHeader(format *structure.Format, off, window, minSize int) *structure.Structure {
	opt := f.unpack(format, f.slice(off, off+window), off)
	if opt != nil {
		return opt
	}
	raw := f.slice(off, off+optionalHeaderWindow)
	if len(raw) < minSize {
		return nil
	}
	padded := make([]byte, len(raw)+optionalHeaderPad)
	copy(padded, raw)
	return f.unpack(format, padded, off)
}

// parseDataDirectoryTable decodes the data directory entries that follow the
// optional header.
func (f *File) parseDataDirectoryTable(optOffset int, count uint32) {
	offset := optOffset + f.OptionalHeader.Size()
	limit := optOffset + f.OptionalHeader.Size() + 8*winnt.NumberOfDirectoryEntries

	f.DataDirectories = nil
	for i := 0; i < int(count&0x7fffffff); i++ {
		remaining := len(f.data) - offset
		if remaining == 0 {
			break
		}

		var raw []byte
		if remaining < 8 {
			raw = append(append([]byte(nil), f.slice(offset, -1)...), make([]byte, 8)...)
		} else {
			raw = f.slice(offset, offset+maxAssumedRvaAndSizes)
		}

		dir := f.unpack(winnt.DataDirectory, raw, offset)
		if dir == nil {
			break
		}
		name, ok := winnt.DirectoryName(i)
		if !ok {
			break
		}
		dir.SetName(name)
		offset += dir.Size()
		f.DataDirectories = append(f.DataDirectories, dir)

		if offset >= limit {
			break
		}
	}
}

// headerLength returns the size of the header region: the lowest aligned raw
// data pointer of the sections, unless it falls inside the section table.
func (f *File) headerLength(sectionTableEnd int) int {
	lowest := -1
	for _, s := range f.Sections {
		if s.PointerToRawData() == 0 {
			continue
		}
		p := int(f.adjustFileAlignment(s.PointerToRawData()))
		if lowest < 0 || p < lowest {
			lowest = p
		}
	}
	if lowest <= 0 || lowest < sectionTableEnd {
		return sectionTableEnd
	}
	return lowest
}

// checkByteFrequency warns when a single byte value dominates the file,
// which usually means truncation or padding with garbage.
func (f *File) checkByteFrequency() {
	if len(f.data) == 0 {
		return
	}
	var counts [256]int
	for _, b := range f.data {
		counts[b]++
	}
	total := float64(len(f.data))
	for b, n := range counts {
		ratio := float64(n) / total
		if (b == 0 && ratio > 0.5) || (b != 0 && ratio > 0.15) {
			f.warnf("Byte 0x%02x makes up %.4f%% of the file's contents. "+
				"This may indicate truncation / malformation.", b, 100*ratio)
		}
	}
}

// DataDirectory returns the data directory entry at index, or nil.
func (f *File) DataDirectory(index int) *structure.Structure {
	if index < 0 || index >= len(f.DataDirectories) {
		return nil
	}
	return f.DataDirectories[index]
}

// Characteristics returns the COFF file header characteristics.
func (f *File) Characteristics() uint16 {
	return f.FileHeader.Uint16("Characteristics")
}

// Flags returns the names of the COFF characteristics bits that are set.
func (f *File) Flags() []string {
	return winnt.FlagNames(winnt.ImageCharacteristics, uint64(f.Characteristics()))
}

// HasCharacteristic reports whether every bit of flag is set in the COFF
// characteristics.
func (f *File) HasCharacteristic(flag uint16) bool {
	return f.Characteristics()&flag == flag
}

// IsExecutableImage reports whether IMAGE_FILE_EXECUTABLE_IMAGE is set.
func (f *File) IsExecutableImage() bool {
	return f.HasCharacteristic(winnt.FileExecutableImage)
}

// DLLCharacteristicsFlags returns the names of the optional header
// DllCharacteristics bits that are set.
func (f *File) DLLCharacteristicsFlags() []string {
	return winnt.FlagNames(winnt.DLLCharacteristics, f.OptionalHeader.Uint("DllCharacteristics"))
}

// ImageBase returns the preferred load address.
func (f *File) ImageBase() uint64 {
	return f.OptionalHeader.Uint("ImageBase")
}

func (f *File) fileAlignment() uint32 {
	return f.OptionalHeader.Uint32("FileAlignment")
}

func (f *File) sectionAlignment() uint32 {
	return f.OptionalHeader.Uint32("SectionAlignment")
}
