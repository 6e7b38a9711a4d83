package pe

import (
	"strings"

	"github.com/jtang613/gope/pkg/pe/winnt"
)

// OverlayOffset returns the file offset where data appended past the end of
// everything the headers describe begins. ok is false without an overlay.
func (f *File) OverlayOffset() (offset int64, ok bool) {
	size := int64(len(f.data))
	var largest int64

	consider := func(off, n uint64) {
		end := int64(off + n)
		if end <= size && end > largest {
			largest = end
		}
	}

	if f.OptionalHeader != nil {
		consider(uint64(f.OptionalHeader.FileOffset()), uint64(f.FileHeader.Uint16("SizeOfOptionalHeader")))
	}
	for _, s := range f.Sections {
		consider(uint64(s.PointerToRawData()), uint64(s.SizeOfRawData()))
	}
	for _, d := range f.DataDirectories {
		consider(uint64(d.Uint32("VirtualAddress")), uint64(d.Uint32("Size")))
	}

	if size > largest {
		return largest, true
	}
	return 0, false
}

// Overlay returns the appended data, or nil.
func (f *File) Overlay() []byte {
	off, ok := f.OverlayOffset()
	if !ok {
		return nil
	}
	return f.data[off:]
}

// Trim returns a copy of the image without its overlay.
func (f *File) Trim() []byte {
	off, ok := f.OverlayOffset()
	if !ok {
		return append([]byte(nil), f.data...)
	}
	return append([]byte(nil), f.data[:off]...)
}

// driverModules are imports only kernel-mode images link against.
var driverModules = map[string]bool{
	"ntoskrnl.exe": true,
	"hal.dll":      true,
	"ndis.sys":     true,
	"bootvid.dll":  true,
	"kdcom.dll":    true,
}

// IsDriver reports whether the image imports from a kernel-mode module. The
// import directory is parsed on demand.
func (f *File) IsDriver() bool {
	if !f.importsParsed {
		f.ParseDataDirectories(Directories(winnt.DirectoryEntryImport))
	}
	for _, d := range f.Imports {
		if driverModules[strings.ToLower(d.DLL)] {
			return true
		}
	}
	return false
}

// IsDLL reports whether IMAGE_FILE_DLL is set.
func (f *File) IsDLL() bool {
	return f.HasCharacteristic(winnt.FileDLL)
}

// IsEXE reports whether the image is a plain executable: neither a DLL nor a
// driver, with IMAGE_FILE_EXECUTABLE_IMAGE set.
func (f *File) IsEXE() bool {
	if f.IsDLL() || f.IsDriver() {
		return false
	}
	return f.IsExecutableImage()
}
