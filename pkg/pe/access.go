package pe

import (
	"bytes"
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/jtang613/gope/pkg/pe/source"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// GetSectionByRVA returns the first section containing rva, or nil.
func (f *File) GetSectionByRVA(rva uint32) *Section {
	for _, s := range f.Sections {
		if s.ContainsRVA(rva) {
			return s
		}
	}
	return nil
}

// GetSectionByOffset returns the first section whose raw data contains off,
// or nil.
func (f *File) GetSectionByOffset(off uint32) *Section {
	for _, s := range f.Sections {
		if s.ContainsOffset(off) {
			return s
		}
	}
	return nil
}

// GetData returns the bytes at rva. Addresses outside every section are
// read from the header or, failing that, treated as file offsets. A length
// <= 0 reads to the end of the containing region.
func (f *File) GetData(rva uint32, length int) ([]byte, error) {
	s := f.GetSectionByRVA(rva)
	if s != nil {
		return s.Data(int64(rva), length), nil
	}

	end := -1
	if length > 0 {
		end = int(rva) + length
	}
	switch {
	case uint64(rva) < uint64(len(f.header)):
		return source.Clamp(f.header, int(rva), end), nil
	case uint64(rva) < uint64(len(f.data)):
		return f.slice(int(rva), end), nil
	}
	return nil, formatError("data at RVA can't be fetched. Corrupt header?")
}

// GetOffsetFromRVA converts an RVA to a file offset. Outside every section
// the RVA is assumed to equal the offset as long as it lies in the file.
func (f *File) GetOffsetFromRVA(rva uint32) (uint32, error) {
	s := f.GetSectionByRVA(rva)
	if s == nil {
		if uint64(rva) < uint64(len(f.data)) {
			return rva, nil
		}
		return 0, formatError("data at RVA can't be fetched. Corrupt header?")
	}
	return s.OffsetFromRVA(rva), nil
}

// GetRVAFromOffset converts a file offset to an RVA. Offsets outside every
// section only map when they precede the lowest section address.
func (f *File) GetRVAFromOffset(off uint32) (uint32, bool) {
	s := f.GetSectionByOffset(off)
	if s != nil {
		return s.RVAFromOffset(off), true
	}
	if len(f.Sections) == 0 {
		return off, true
	}
	lowest := f.Sections[0].adjustedVirtualAddress()
	for _, s := range f.Sections[1:] {
		if va := s.adjustedVirtualAddress(); va < lowest {
			lowest = va
		}
	}
	if off < lowest {
		return off, true
	}
	return 0, false
}

// GetPhysicalByRVA returns the file offset of rva, or false when it cannot
// be mapped.
func (f *File) GetPhysicalByRVA(rva uint32) (uint32, bool) {
	off, err := f.GetOffsetFromRVA(rva)
	if err != nil {
		return 0, false
	}
	return off, true
}

// GetStringAtRVA returns the NUL terminated ASCII string at rva, reading at
// most max bytes.
func (f *File) GetStringAtRVA(rva uint32, max int) string {
	if max <= 0 {
		max = MaxStringLength
	}
	s := f.GetSectionByRVA(rva)
	if s == nil {
		return GetStringFromData(0, f.slice(int(rva), int(rva)+max))
	}
	return GetStringFromData(0, s.Data(int64(rva), max))
}

// GetStringFromData returns the NUL terminated string starting at offset.
func GetStringFromData(offset int, data []byte) string {
	b := source.Clamp(data, offset, -1)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// GetStringUAtRVA returns the UTF-16LE string at rva, up to maxChars
// characters or the first aligned double NUL. The read starts small and grows
// only when no terminator is found.
func (f *File) GetStringUAtRVA(rva uint32, maxChars int) (string, error) {
	if _, err := f.GetData(rva, 2); err != nil {
		return "", err
	}
	maxLen := maxChars << 1
	if maxLen <= 0 {
		return "", nil
	}
	requested := maxLen
	if requested > 256 {
		requested = 256
	}
	data, err := f.GetData(rva, requested)
	if err != nil {
		return "", err
	}

	nullIndex := -1
	for {
		idx := bytes.Index(data[nullIndex+1:], []byte{0, 0})
		if idx >= 0 {
			idx += nullIndex + 1
		}
		if idx == -1 {
			if len(data) < requested || len(data) >= maxLen {
				nullIndex = len(data) >> 1
				break
			}
			more, err := f.GetData(rva+uint32(len(data)), maxLen-len(data))
			if err != nil {
				return "", err
			}
			data = append(append([]byte(nil), data...), more...)
			nullIndex = requested - 1
			requested = maxLen
			continue
		}
		if idx%2 == 0 {
			nullIndex = idx >> 1
			break
		}
		nullIndex = idx
	}

	return decodeUTF16(data[:nullIndex*2]), nil
}

func decodeUTF16(b []byte) string {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

func encodeUTF16(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}

// utf16Len returns the number of UTF-16 code units needed to encode s.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xffff {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// GetWordAtRVA returns the 16-bit value at rva.
func (f *File) GetWordAtRVA(rva uint32) (uint16, bool) {
	b, err := f.GetData(rva, 2)
	if err != nil || len(b) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// GetDwordAtRVA returns the 32-bit value at rva.
func (f *File) GetDwordAtRVA(rva uint32) (uint32, bool) {
	b, err := f.GetData(rva, 4)
	if err != nil || len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// GetQwordAtRVA returns the 64-bit value at rva.
func (f *File) GetQwordAtRVA(rva uint32) (uint64, bool) {
	b, err := f.GetData(rva, 8)
	if err != nil || len(b) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// GetWordFromOffset returns the 16-bit value at file offset off.
func (f *File) GetWordFromOffset(off uint32) (uint16, bool) {
	b := f.slice(int(off), int(off)+2)
	if len(b) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// GetDwordFromOffset returns the 32-bit value at file offset off.
func (f *File) GetDwordFromOffset(off uint32) (uint32, bool) {
	b := f.slice(int(off), int(off)+4)
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// GetQwordFromOffset returns the 64-bit value at file offset off.
func (f *File) GetQwordFromOffset(off uint32) (uint64, bool) {
	b := f.slice(int(off), int(off)+8)
	if len(b) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// SetBytesAtOffset overwrites the image bytes at off. Writes running past the
// end grow the image. It fails only when off lies outside the file.
func (f *File) SetBytesAtOffset(off uint32, b []byte) bool {
	if uint64(off) >= uint64(len(f.data)) {
		return false
	}
	end := int(off) + len(b)
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
		f.header = f.data[:len(f.header)]
	}
	copy(f.data[off:], b)
	return true
}

// SetBytesAtRVA overwrites the image bytes at rva.
func (f *File) SetBytesAtRVA(rva uint32, b []byte) bool {
	off, ok := f.GetPhysicalByRVA(rva)
	if !ok {
		return false
	}
	return f.SetBytesAtOffset(off, b)
}

// SetWordAtRVA stores a 16-bit value at rva.
func (f *File) SetWordAtRVA(rva uint32, v uint16) bool {
	return f.SetBytesAtRVA(rva, binary.LittleEndian.AppendUint16(nil, v))
}

// SetDwordAtRVA stores a 32-bit value at rva.
func (f *File) SetDwordAtRVA(rva uint32, v uint32) bool {
	return f.SetBytesAtRVA(rva, binary.LittleEndian.AppendUint32(nil, v))
}

// SetQwordAtRVA stores a 64-bit value at rva.
func (f *File) SetQwordAtRVA(rva uint32, v uint64) bool {
	return f.SetBytesAtRVA(rva, binary.LittleEndian.AppendUint64(nil, v))
}

// SetWordAtOffset stores a 16-bit value at file offset off.
func (f *File) SetWordAtOffset(off uint32, v uint16) bool {
	return f.SetBytesAtOffset(off, binary.LittleEndian.AppendUint16(nil, v))
}

// SetDwordAtOffset stores a 32-bit value at file offset off.
func (f *File) SetDwordAtOffset(off uint32, v uint32) bool {
	return f.SetBytesAtOffset(off, binary.LittleEndian.AppendUint32(nil, v))
}

// SetQwordAtOffset stores a 64-bit value at file offset off.
func (f *File) SetQwordAtOffset(off uint32, v uint64) bool {
	return f.SetBytesAtOffset(off, binary.LittleEndian.AppendUint64(nil, v))
}

const (
	alnum           = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	filenameChars   = alnum + "!#$%&'()-@^_`{}~+,.;=[]" + `\/`
	funcNameChars   = alnum + "_?@$()<>"
	invalidNameMark = "*invalid*"
)

// IsValidDOSFilename reports whether s only uses characters valid in a DOS
// file name or path.
func IsValidDOSFilename(s string) bool {
	return onlyChars(s, filenameChars)
}

// IsValidFunctionName reports whether s only uses characters found in plain
// or decorated symbol names.
func IsValidFunctionName(s string) bool {
	return onlyChars(s, funcNameChars)
}

func onlyChars(s, allowed string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(allowed, s[i]) < 0 {
			return false
		}
	}
	return true
}
