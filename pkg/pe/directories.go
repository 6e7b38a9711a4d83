package pe

import (
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// DirectoryOption configures ParseDataDirectories.
type DirectoryOption func(*dirConfig)

type dirConfig struct {
	only                 map[int]bool
	forwardedExportsOnly bool
	importDLLNamesOnly   bool
}

// Directories restricts parsing to the given data directory indices.
func Directories(idx ...int) DirectoryOption {
	return func(c *dirConfig) {
		if c.only == nil {
			c.only = make(map[int]bool)
		}
		for _, i := range idx {
			c.only[i] = true
		}
	}
}

// ForwardedExportsOnly keeps only forwarded symbols from the named exports.
func ForwardedExportsOnly() DirectoryOption {
	return func(c *dirConfig) { c.forwardedExportsOnly = true }
}

// ImportDLLNamesOnly records imported DLL names without walking their
// thunk tables.
func ImportDLLNamesOnly() DirectoryOption {
	return func(c *dirConfig) { c.importDLLNamesOnly = true }
}

// directoryOrder is the order directories are parsed in. Parsing stops at the
// first index the image does not declare.
var directoryOrder = []int{
	winnt.DirectoryEntryImport,
	winnt.DirectoryEntryExport,
	winnt.DirectoryEntryResource,
	winnt.DirectoryEntryDebug,
	winnt.DirectoryEntryBaseReloc,
	winnt.DirectoryEntryTLS,
	winnt.DirectoryEntryLoadConfig,
	winnt.DirectoryEntryDelayImport,
	winnt.DirectoryEntryBoundImport,
}

// FullLoad parses every data directory and the rich header. It is what Open
// does unless WithFastLoad is given.
func (f *File) FullLoad() {
	f.ParseDataDirectories()
	f.RichHeader = f.parseRichHeader()
}

// ParseDataDirectories parses the data directories. Results that come back
// empty leave the corresponding field nil.
func (f *File) ParseDataDirectories(opts ...DirectoryOption) {
	c := &dirConfig{}
	for _, o := range opts {
		o(c)
	}

	for _, idx := range directoryOrder {
		dir := f.DataDirectory(idx)
		if dir == nil {
			break
		}
		if c.only != nil && !c.only[idx] {
			continue
		}
		rva := dir.Uint32("VirtualAddress")
		size := dir.Uint32("Size")
		if rva == 0 {
			continue
		}

		name, _ := winnt.DirectoryName(idx)
		f.logger.Trace("parsing directory", "directory", name, "rva", rva, "size", size)

		switch idx {
		case winnt.DirectoryEntryImport:
			f.importsParsed = true
			if v := f.parseImportDirectory(rva, size, c.importDLLNamesOnly); len(v) > 0 {
				f.Imports = v
			}
		case winnt.DirectoryEntryExport:
			if v := f.parseExportDirectory(rva, size, c.forwardedExportsOnly); v != nil {
				f.Exports = v
			}
		case winnt.DirectoryEntryResource:
			if v := f.parseResourcesDirectory(rva, size); v != nil {
				f.Resources = v
			}
		case winnt.DirectoryEntryDebug:
			if v := f.parseDebugDirectory(rva, size); len(v) > 0 {
				f.Debug = v
			}
		case winnt.DirectoryEntryBaseReloc:
			if v := f.parseRelocationsDirectory(rva, size); len(v) > 0 {
				f.Relocations = v
			}
		case winnt.DirectoryEntryTLS:
			if v := f.parseTLSDirectory(rva); v != nil {
				f.TLS = v
			}
		case winnt.DirectoryEntryLoadConfig:
			if v := f.parseLoadConfigDirectory(rva); v != nil {
				f.LoadConfig = v
			}
		case winnt.DirectoryEntryDelayImport:
			if v := f.parseDelayImportDirectory(rva, size); len(v) > 0 {
				f.DelayImports = v
			}
		case winnt.DirectoryEntryBoundImport:
			if v := f.parseBoundImportsDirectory(rva, size); len(v) > 0 {
				f.BoundImports = v
			}
		}
	}
}

// TLSDirectory holds the decoded IMAGE_TLS_DIRECTORY.
type TLSDirectory struct {
	Struct *structure.Structure
}

// LoadConfigDirectory holds the decoded IMAGE_LOAD_CONFIG_DIRECTORY.
type LoadConfigDirectory struct {
	Struct *structure.Structure
}

// unpackAtRVA reads format.Size() bytes at rva and decodes them. ok is false
// when the RVA cannot be read at all.
func (f *File) unpackAtRVA(format *structure.Format, rva uint32) (*structure.Structure, bool) {
	data, err := f.GetData(rva, format.Size())
	if err != nil {
		return nil, false
	}
	off, err := f.GetOffsetFromRVA(rva)
	if err != nil {
		return nil, false
	}
	return f.unpack(format, data, int(off)), true
}

func (f *File) parseTLSDirectory(rva uint32) *TLSDirectory {
	format := winnt.TLSDirectory32
	if f.peType == Type64 {
		format = winnt.TLSDirectory64
	}
	st, ok := f.unpackAtRVA(format, rva)
	if !ok {
		f.warnf("Invalid TLS information. Can't read data at RVA: 0x%x", rva)
	}
	if st == nil {
		return nil
	}
	return &TLSDirectory{Struct: st}
}

func (f *File) parseLoadConfigDirectory(rva uint32) *LoadConfigDirectory {
	format := winnt.LoadConfigDirectory32
	if f.peType == Type64 {
		format = winnt.LoadConfigDirectory64
	}
	st, ok := f.unpackAtRVA(format, rva)
	if !ok {
		f.warnf("Invalid LOAD_CONFIG information. Can't read data at RVA: 0x%x", rva)
	}
	if st == nil {
		return nil
	}
	return &LoadConfigDirectory{Struct: st}
}
