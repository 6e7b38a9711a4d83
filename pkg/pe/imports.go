package pe

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const maxImportErrors = 5

// ImportDescriptor is one imported module: the descriptor structure, the DLL
// name and the symbols taken from it.
type ImportDescriptor struct {
	Struct  *structure.Structure
	DLL     string
	Imports []*Import
}

// Import is one imported symbol.
type Import struct {
	// Struct is the lookup table thunk, IATStruct the differing address
	// table thunk of a bound import
	Struct    *structure.Structure
	IATStruct *structure.Structure

	ByOrdinal bool
	Ordinal   *uint16
	Hint      *uint16
	Name      string
	Demangled string

	// Bound is the pre-resolved address of a bound import, 0 otherwise
	Bound   uint64
	Address uint64

	HintNameTableRVA uint64
	NameOffset       *uint32
	ThunkOffset      uint32
	ThunkRVA         *uint32

	nameSet bool
}

func (i *Import) hasName() bool {
	return i.nameSet
}

// OrdinalOffset returns the file offset of the thunk holding the ordinal.
func (i *Import) OrdinalOffset() uint32 {
	return uint32(i.Struct.FileOffset())
}

// HasImport reports whether the image imports sym from dll. DLL names
// compare case-insensitively.
func (f *File) HasImport(dll, sym string) bool {
	for _, d := range f.Imports {
		if !strings.EqualFold(d.DLL, dll) {
			continue
		}
		if sym == "" {
			return true
		}
		for _, imp := range d.Imports {
			if imp.Name == sym {
				return true
			}
		}
	}
	return false
}

// importDescriptorFields names the fields that differ between regular and
// delay-load descriptors.
type importDescriptorFields struct {
	format       *structure.Format
	lookupTable  string
	addressTable string
	name         string
	errRead      string
	errInvalid   string
	errTooMany   string
	dllNamesOnly bool
	checkPackers bool
}

func (f *File) parseImportDirectory(rva, size uint32, dllNamesOnly bool) []*ImportDescriptor {
	return f.walkImportDescriptors(rva, importDescriptorFields{
		format:       winnt.ImportDescriptor,
		lookupTable:  "OriginalFirstThunk",
		addressTable: "FirstThunk",
		name:         "Name",
		errRead:      "Error parsing the import directory at RVA: 0x%x",
		errInvalid:   "Error parsing the import directory. Invalid Import data at RVA: 0x%x (%s)",
		errTooMany:   "Too may errors parsing the import directory. Invalid import data at RVA: 0x%x",
		dllNamesOnly: dllNamesOnly,
		checkPackers: !dllNamesOnly,
	})
}

func (f *File) parseDelayImportDirectory(rva, size uint32) []*ImportDescriptor {
	return f.walkImportDescriptors(rva, importDescriptorFields{
		format:       winnt.DelayImportDescriptor,
		lookupTable:  "pINT",
		addressTable: "pIAT",
		name:         "szName",
		errRead:      "Error parsing the Delay import directory at RVA: 0x%x",
		errInvalid:   "Error parsing the Delay import directory. Invalid import data at RVA: 0x%x (%s)",
		errTooMany:   "Too may errors parsing the Delay import directory. Invalid import data at RVA: 0x%x",
	})
}

// walkImportDescriptors walks a descriptor array until its all-zero
// terminator.
func (f *File) walkImportDescriptors(rva uint32, fl importDescriptorFields) []*ImportDescriptor {
	var descs []*ImportDescriptor
	errorCount := 0

	for {
		data, err := f.GetData(rva, fl.format.Size())
		if err != nil {
			f.warnf(fl.errRead, rva)
			break
		}
		fileOffset, err := f.GetOffsetFromRVA(rva)
		if err != nil {
			f.warnf(fl.errRead, rva)
			break
		}
		desc := f.unpack(fl.format, data, int(fileOffset))
		if desc == nil || desc.AllZero() {
			break
		}
		rva += uint32(fl.format.Size())

		lookup := desc.Uint32(fl.lookupTable)
		address := desc.Uint32(fl.addressTable)

		// Thunk arrays located before the descriptor bound the walk
		maxLen := int64(len(f.data)) - int64(fileOffset)
		if rva > lookup || rva > address {
			maxLen = int64(rva) - int64(lookup)
			if d := int64(rva) - int64(address); d > maxLen {
				maxLen = d
			}
		}

		var imports []*Import
		if !fl.dllNamesOnly {
			imports, err = f.parseImports(lookup, address, maxLen)
			if err != nil {
				f.warnf(fl.errInvalid, rva, err)
				imports = nil
			}
			if errorCount > maxImportErrors {
				f.warnf(fl.errTooMany, rva)
				break
			}
			if len(imports) == 0 {
				errorCount++
				continue
			}
		}

		dll := f.GetStringAtRVA(desc.Uint32(fl.name), MaxDLLLength)
		if !IsValidDOSFilename(dll) {
			dll = invalidNameMark
		}
		if dll == "" {
			continue
		}
		for _, imp := range imports {
			if imp.Name == "" && imp.Ordinal != nil {
				if name, ok := OrdinalName(dll, *imp.Ordinal); ok {
					imp.Name = name
					imp.Demangled = name
				}
			}
		}
		descs = append(descs, &ImportDescriptor{Struct: desc, DLL: dll, Imports: imports})
	}

	if fl.checkPackers {
		f.checkPackerImports(descs)
	}
	return descs
}

// checkPackerImports warns about small import tables that resolve their
// real imports at run time.
func (f *File) checkPackerImports(descs []*ImportDescriptor) {
	suspicious := []string{"LoadLibrary", "GetProcAddress"}
	hits, total := 0, 0
	for _, d := range descs {
		for _, imp := range d.Imports {
			for _, prefix := range suspicious {
				if imp.Name != "" && strings.HasPrefix(imp.Name, prefix) {
					hits++
					break
				}
			}
			total++
		}
	}
	if hits == len(suspicious) && total < 20 {
		f.warn("Imported symbols contain entries typical of packed executables.")
	}
}

func (f *File) thunkLayout() (format *structure.Format, ordinalFlag, addressMask uint64, size int) {
	if f.peType == Type64 {
		return winnt.ThunkData64, winnt.OrdinalFlag64, 0x7fffffffffffffff, 8
	}
	// Unknown magic is treated as PE32
	return winnt.ThunkData32, winnt.OrdinalFlag32, 0x7fffffff, 4
}

// parseImports decodes the symbols of one descriptor from its lookup table,
// falling back to the address table.
func (f *File) parseImports(lookupRVA, addressRVA uint32, maxLen int64) ([]*Import, error) {
	ilt := f.importTable(lookupRVA, maxLen)
	iat := f.importTable(addressRVA, maxLen)

	if len(ilt) == 0 && len(iat) == 0 {
		f.warnf("Damaged Import Table information. ILT and/or IAT appear to be broken. "+
			"OriginalFirstThunk: 0x%x FirstThunk: 0x%x", lookupRVA, addressRVA)
		return nil, nil
	}

	table := ilt
	if len(table) == 0 {
		table = iat
	}

	_, ordinalFlag, addressMask, thunkSize := f.thunkLayout()
	imageBase := f.ImageBase()

	var (
		symbols    []*Import
		numInvalid int
	)
	for idx, thunk := range table {
		imp := &Import{Struct: thunk}
		v := thunk.Uint("AddressOfData")

		if v != 0 {
			if v&ordinalFlag != 0 {
				imp.ByOrdinal = true
				ord := uint16(v & 0xffff)
				imp.Ordinal = &ord
			} else {
				imp.HintNameTableRVA = v & addressMask
				f.readHintName(imp, v)
			}
			imp.ThunkOffset = uint32(thunk.FileOffset())
			if r, ok := f.GetRVAFromOffset(imp.ThunkOffset); ok {
				imp.ThunkRVA = &r
			}
		}

		imp.Address = uint64(addressRVA) + imageBase + uint64(idx*thunkSize)

		if len(ilt) > 0 && len(iat) > 0 && idx < len(iat) {
			if b := iat[idx].Uint("AddressOfData"); b != v {
				imp.Bound = b
				imp.IATStruct = iat[idx]
			}
		}

		if imp.Ordinal == nil && !imp.hasName() {
			return symbols, errors.New("Invalid entries, aborting parsing.")
		}

		// Invalid names interleaved with valid ones are skipped; a table made
		// only of invalid names is abandoned
		if imp.Name == invalidNameMark {
			if numInvalid > 1000 && numInvalid == idx {
				return symbols, errors.New("Too many invalid names, aborting parsing.")
			}
			numInvalid++
			continue
		}

		if (imp.Ordinal != nil && *imp.Ordinal != 0) || imp.Name != "" {
			imp.Demangled = Demangle(imp.Name)
			symbols = append(symbols, imp)
		}
	}
	return symbols, nil
}

// readHintName fills the hint and name of an import by name. Unreadable
// entries leave the fields unset.
func (f *File) readHintName(imp *Import, addressOfData uint64) {
	data, err := f.GetData(uint32(imp.HintNameTableRVA), 2)
	if err != nil {
		return
	}
	if len(data) >= 2 {
		hint := uint16(data[0]) | uint16(data[1])<<8
		imp.Hint = &hint
	}

	nameRVA := uint32(addressOfData + 2)
	name := f.GetStringAtRVA(nameRVA, MaxImportNameLength)
	if !IsValidFunctionName(name) {
		name = invalidNameMark
	}
	imp.Name = name
	imp.nameSet = true

	off, err := f.GetOffsetFromRVA(nameRVA)
	if err != nil {
		return
	}
	imp.NameOffset = &off
}

// importTable reads a thunk array until its zero terminator. Tables that look
// forged, with repeated or widely spread addresses, come back empty.
func (f *File) importTable(rva uint32, maxLen int64) []*structure.Structure {
	format, ordinalFlag, _, size := f.thunkLayout()

	var (
		table    []*structure.Structure
		repeated int
		set32    = newAddressSet()
		set64    = newAddressSet()
	)
	start := int64(rva)

	for rva != 0 {
		if int64(rva) >= start+maxLen {
			f.warn("Error parsing the import table. Entries go beyond bounds.")
			break
		}
		if repeated >= MaxRepeatedAddresses {
			return []*structure.Structure{}
		}
		if set32.spread() > MaxAddressSpread || set64.spread() > MaxAddressSpread {
			return []*structure.Structure{}
		}

		data, err := f.GetData(rva, size)
		if err != nil || len(data) != size {
			f.warnf("Error parsing the import table. Invalid data at RVA: 0x%x", rva)
			return nil
		}
		off, err := f.GetOffsetFromRVA(rva)
		if err != nil {
			f.warnf("Error parsing the import table. Invalid data at RVA: 0x%x", rva)
			return nil
		}
		thunk := f.unpack(format, data, int(off))

		if thunk != nil {
			v := thunk.Uint("AddressOfData")
			if v >= uint64(start) && v <= uint64(rva) {
				f.warnf("Error parsing the import table. AddressOfData overlaps with "+
					"THUNK_DATA for THUNK at RVA 0x%x", rva)
				break
			}
			if v != 0 {
				if v&ordinalFlag != 0 {
					// An ordinal beyond 16 bits means garbage
					if v&0x7fffffff > 0xffff {
						return []*structure.Structure{}
					}
				} else {
					if set32.has(v) || set64.has(v) {
						repeated++
					}
					if v >= 1<<32 {
						set64.add(v)
					} else {
						set32.add(v)
					}
				}
			}
		}

		if thunk == nil || thunk.AllZero() {
			break
		}
		rva += uint32(size)
		table = append(table, thunk)
	}
	return table
}

// addressSet tracks the thunk targets seen in one table along with their
// range.
type addressSet struct {
	seen     map[uint64]struct{}
	min, max uint64
}

func newAddressSet() *addressSet {
	return &addressSet{seen: make(map[uint64]struct{})}
}

func (s *addressSet) has(v uint64) bool {
	_, ok := s.seen[v]
	return ok
}

func (s *addressSet) add(v uint64) {
	if len(s.seen) == 0 || v < s.min {
		s.min = v
	}
	if len(s.seen) == 0 || v > s.max {
		s.max = v
	}
	s.seen[v] = struct{}{}
}

func (s *addressSet) spread() uint64 {
	if len(s.seen) == 0 {
		return 0
	}
	return s.max - s.min
}
