package pe

import (
	"encoding/binary"

	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

const maxFailedExportEntries = 10

// ExportDirectory holds the export directory header and its symbols.
type ExportDirectory struct {
	Struct  *structure.Structure
	Symbols []*Export
}

// Export is one exported symbol. Unnamed exports have an empty Name and only
// forwarded ones carry a Forwarder.
type Export struct {
	Ordinal         uint32
	OrdinalOffset   uint32
	Address         uint32
	AddressOffset   uint32
	Name            string
	NameOffset      uint32
	Demangled       string
	Forwarder       string
	ForwarderOffset uint32
}

// IsForwarded reports whether the export redirects to another module.
func (e *Export) IsForwarded() bool {
	return e.Forwarder != ""
}

// Name returns the module name recorded in the export directory.
func (d *ExportDirectory) Name(f *File) string {
	return f.GetStringAtRVA(d.Struct.Uint32("Name"), MaxDLLLength)
}

func wordAt(data []byte, i int) (uint16, bool) {
	if (i+1)*2 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[i*2:]), true
}

func dwordAt(data []byte, i int) (uint32, bool) {
	if (i+1)*4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[i*4:]), true
}

func (f *File) parseExportDirectory(rva, size uint32, forwardedOnly bool) *ExportDirectory {
	dir, ok := f.unpackAtRVA(winnt.ExportDirectory, rva)
	if !ok {
		f.warnf("Error parsing export directory at RVA: 0x%x", rva)
		return nil
	}
	if dir == nil {
		return nil
	}

	numNames := dir.Uint32("NumberOfNames")
	numFuncs := dir.Uint32("NumberOfFunctions")
	namesRVA := dir.Uint32("AddressOfNames")
	ordinalsRVA := dir.Uint32("AddressOfNameOrdinals")
	funcsRVA := dir.Uint32("AddressOfFunctions")
	base := dir.Uint32("Base")

	// The arrays are bounded by what is left of the file
	readArray := func(at uint32, count uint32) ([]byte, bool) {
		off, err := f.GetOffsetFromRVA(at)
		if err != nil {
			return nil, false
		}
		n := int64(len(f.data)) - int64(off)
		if want := int64(count) * 4; want < n {
			n = want
		}
		data, err := f.GetData(at, int(n))
		return data, err == nil
	}
	names, ok1 := readArray(namesRVA, numNames)
	ordinals, ok2 := readArray(ordinalsRVA, numNames)
	functions, ok3 := readArray(funcsRVA, numFuncs)
	if !ok1 || !ok2 || !ok3 {
		f.warnf("Error parsing export directory at RVA: 0x%x", rva)
		return nil
	}

	isForwarder := func(addr uint32) bool {
		return uint64(addr) >= uint64(rva) && uint64(addr) < uint64(rva)+uint64(size)
	}
	offsetOf := func(at uint32) uint32 {
		off, _ := f.GetOffsetFromRVA(at)
		return off
	}

	var exports []*Export

	failures := maxFailedExportEntries
	completed := true
	for i := 0; i < int(minInt64(int64(numNames), f.arrayBoundary(namesRVA)/4)); i++ {
		ord, ok := wordAt(ordinals, i)
		if !ok || int(ord)*4 >= len(functions) {
			// A bad ordinal table makes the whole directory useless
			return nil
		}
		addr, ok := dwordAt(functions, int(ord))
		if !ok || addr == 0 {
			continue
		}

		exp := &Export{Address: addr}
		if isForwarder(addr) {
			exp.Forwarder = f.GetStringAtRVA(addr, 0)
			off, err := f.GetOffsetFromRVA(addr)
			if err != nil {
				continue
			}
			exp.ForwarderOffset = off
		} else if forwardedOnly {
			continue
		}

		nameRVA, ok := dwordAt(names, i)
		if !ok {
			failures--
			if failures <= 0 {
				completed = false
				break
			}
			continue
		}
		name := f.GetStringAtRVA(nameRVA, MaxSymbolNameLength)
		if !IsValidFunctionName(name) {
			completed = false
			break
		}
		nameOffset, err := f.GetOffsetFromRVA(nameRVA)
		if err != nil {
			failures--
			if failures <= 0 {
				completed = false
				break
			}
			continue
		}

		exp.Ordinal = base + uint32(ord)
		exp.OrdinalOffset = offsetOf(ordinalsRVA + 2*uint32(i))
		exp.AddressOffset = offsetOf(funcsRVA + 4*uint32(ord))
		exp.Name = name
		exp.NameOffset = nameOffset
		exp.Demangled = Demangle(name)
		exports = append(exports, exp)
	}
	if !completed {
		f.warnf("RVA AddressOfNames in the export directory points to an invalid address: %x", namesRVA)
	}

	seen := make(map[uint32]bool, len(exports))
	for _, e := range exports {
		seen[e.Ordinal] = true
	}

	failures = maxFailedExportEntries
	completed = true
	for idx := 0; idx < int(minInt64(int64(numFuncs), f.arrayBoundary(funcsRVA)/4)); idx++ {
		if seen[base+uint32(idx)] {
			continue
		}
		addr, ok := dwordAt(functions, idx)
		if !ok {
			failures--
			if failures <= 0 {
				completed = false
				break
			}
			continue
		}
		if addr == 0 {
			continue
		}
		exp := &Export{Ordinal: base + uint32(idx), Address: addr}
		if isForwarder(addr) {
			exp.Forwarder = f.GetStringAtRVA(addr, 0)
		}
		exports = append(exports, exp)
	}
	if !completed {
		f.warnf("RVA AddressOfFunctions in the export directory points to an invalid address: %x", funcsRVA)
		return nil
	}

	if len(exports) == 0 && dir.AllZero() {
		return nil
	}
	f.logger.Trace("parsed exports", "symbols", len(exports))
	return &ExportDirectory{Struct: dir, Symbols: exports}
}

// arrayBoundary returns how many bytes an array at rva may span: up to the
// end of its section, or the file size when no section holds it.
func (f *File) arrayBoundary(rva uint32) int64 {
	s := f.GetSectionByRVA(rva)
	if s == nil {
		return int64(len(f.data))
	}
	return int64(s.VirtualAddress()) + int64(len(s.Data(-1, 0))) - int64(rva)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
