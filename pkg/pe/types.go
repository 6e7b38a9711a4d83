package pe

import (
	"fmt"

	"github.com/jtang613/gope/pkg/pe/winnt"
)

// SectionInfo describes one entry of the section table.
type SectionInfo struct {
	Index            int      `json:"index"`
	Name             string   `json:"name"`
	VirtualAddress   uint32   `json:"virtual_address"`
	VirtualSize      uint32   `json:"virtual_size"`
	PointerToRawData uint32   `json:"pointer_to_raw_data"`
	SizeOfRawData    uint32   `json:"size_of_raw_data"`
	Flags            []string `json:"flags,omitempty"`
	Entropy          float64  `json:"entropy"`
	SHA256           string   `json:"sha256"`
}

// ImportInfo is one imported symbol.
type ImportInfo struct {
	DLL       string `json:"dll"`
	Name      string `json:"name,omitempty"`
	Demangled string `json:"demangled,omitempty"`
	Ordinal   uint16 `json:"ordinal,omitempty"`
	Address   uint64 `json:"address"`
	Delayed   bool   `json:"delayed,omitempty"`
}

// ExportInfo is one exported symbol.
type ExportInfo struct {
	Ordinal   uint32 `json:"ordinal"`
	RVA       uint32 `json:"rva"`
	Name      string `json:"name,omitempty"`
	Demangled string `json:"demangled,omitempty"`
	Forwarder string `json:"forwarder,omitempty"`
}

// ResourceInfo is one leaf of the resource tree.
type ResourceInfo struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	RVA      uint32 `json:"rva"`
	Size     uint32 `json:"size"`
}

// RichEntry is one decoded (comp.id, count) pair of the Rich header.
type RichEntry struct {
	ProductID uint16 `json:"product_id"`
	Build     uint16 `json:"build"`
	Count     uint32 `json:"count"`
}

// ChecksumInfo compares the stored optional header checksum with a freshly
// computed one.
type ChecksumInfo struct {
	Stored   uint32 `json:"stored"`
	Computed uint32 `json:"computed"`
	Valid    bool   `json:"valid"`
}

// PGOSummary describes the POGO debug entry.
type PGOSummary struct {
	Signature uint32   `json:"signature"`
	Kind      string   `json:"kind,omitempty"`
	Sections  []string `json:"sections,omitempty"`
}

// Summary is a flat, serializable overview of an image.
type Summary struct {
	Type            string            `json:"type"`
	Machine         string            `json:"machine"`
	Subsystem       string            `json:"subsystem"`
	Characteristics []string          `json:"characteristics,omitempty"`
	ImageBase       uint64            `json:"image_base"`
	EntryPoint      uint32            `json:"entry_point"`
	SizeOfImage     uint32            `json:"size_of_image"`
	IsDLL           bool              `json:"is_dll"`
	IsDriver        bool              `json:"is_driver"`
	Checksum        ChecksumInfo      `json:"checksum"`
	Sections        []SectionInfo     `json:"sections"`
	Imports         []ImportInfo      `json:"imports,omitempty"`
	Exports         []ExportInfo      `json:"exports,omitempty"`
	ImpHash         string            `json:"imphash,omitempty"`
	PGO             *PGOSummary       `json:"pgo,omitempty"`
	Version         map[string]string `json:"version,omitempty"`
	Rich            []RichEntry       `json:"rich,omitempty"`
	OverlayOffset   int64             `json:"overlay_offset,omitempty"`
	OverlaySize     int               `json:"overlay_size,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// SectionInfos returns a summary of every section.
func (f *File) SectionInfos() []SectionInfo {
	out := make([]SectionInfo, 0, len(f.Sections))
	for i, s := range f.Sections {
		out = append(out, SectionInfo{
			Index:            i + 1,
			Name:             s.Name(),
			VirtualAddress:   s.VirtualAddress(),
			VirtualSize:      s.VirtualSize(),
			PointerToRawData: s.PointerToRawData(),
			SizeOfRawData:    s.SizeOfRawData(),
			Flags:            s.Flags(),
			Entropy:          s.Entropy(),
			SHA256:           s.SHA256(),
		})
	}
	return out
}

// ImportInfos flattens the regular and delay-load imports.
func (f *File) ImportInfos() []ImportInfo {
	var out []ImportInfo
	add := func(mods []*ImportDescriptor, delayed bool) {
		for _, mod := range mods {
			for _, imp := range mod.Imports {
				out = append(out, ImportInfo{
					DLL:       mod.DLL,
					Name:      imp.Name,
					Demangled: demangledIfDifferent(imp.Name, imp.Demangled),
					Ordinal:   derefUint16(imp.Ordinal),
					Address:   imp.Address,
					Delayed:   delayed,
				})
			}
		}
	}
	add(f.Imports, false)
	add(f.DelayImports, true)
	return out
}

// ExportInfos returns the exported symbols.
func (f *File) ExportInfos() []ExportInfo {
	if f.Exports == nil {
		return nil
	}
	out := make([]ExportInfo, 0, len(f.Exports.Symbols))
	for _, sym := range f.Exports.Symbols {
		out = append(out, ExportInfo{
			Ordinal:   sym.Ordinal,
			RVA:       sym.Address,
			Name:      sym.Name,
			Demangled: demangledIfDifferent(sym.Name, sym.Demangled),
			Forwarder: sym.Forwarder,
		})
	}
	return out
}

func demangledIfDifferent(name, demangled string) string {
	if demangled == name {
		return ""
	}
	return demangled
}

// ResourceInfos walks the three-level resource tree and lists its leaves.
func (f *File) ResourceInfos() []ResourceInfo {
	if f.Resources == nil {
		return nil
	}
	var out []ResourceInfo
	for _, typ := range f.Resources.Entries {
		if typ.Directory == nil {
			continue
		}
		for _, name := range typ.Directory.Entries {
			if name.Directory == nil {
				continue
			}
			for _, lang := range name.Directory.Entries {
				if lang.Data == nil {
					continue
				}
				out = append(out, ResourceInfo{
					Type:     resourceLabel(typ, true),
					Name:     resourceLabel(name, false),
					Language: winnt.LanguageName(lang.Data.Lang),
					RVA:      lang.Data.Struct.Uint32("OffsetToData"),
					Size:     lang.Data.Struct.Uint32("Size"),
				})
			}
		}
	}
	return out
}

func resourceLabel(e *ResourceDirectoryEntry, isType bool) string {
	if e.NameIsString {
		return e.Name
	}
	if isType {
		if name, ok := winnt.ResourceTypeName(e.ID); ok {
			return name
		}
	}
	return fmt.Sprint(e.ID)
}

// RichEntries decodes the comp.id values of the Rich header.
func (f *File) RichEntries() []RichEntry {
	if f.RichHeader == nil {
		return nil
	}
	v := f.RichHeader.Values
	out := make([]RichEntry, 0, len(v)/2)
	for i := 0; i+1 < len(v); i += 2 {
		out = append(out, RichEntry{
			ProductID: uint16(v[i] >> 16),
			Build:     uint16(v[i]),
			Count:     v[i+1],
		})
	}
	return out
}

// ChecksumInfo recomputes the image checksum.
func (f *File) ChecksumInfo() ChecksumInfo {
	stored := f.OptionalHeader.Uint32("CheckSum")
	computed := f.GenerateChecksum()
	return ChecksumInfo{Stored: stored, Computed: computed, Valid: stored == computed}
}

// VersionStrings merges the entries of every version string table. Later
// tables win on duplicate keys.
func (f *File) VersionStrings() map[string]string {
	if f.version == nil {
		return nil
	}
	out := make(map[string]string)
	for _, t := range f.version.StringTables() {
		for _, k := range t.Keys {
			out[k] = t.Entries[k]
		}
	}
	return out
}

// Summary collects the most commonly inspected facts about the image.
func (f *File) Summary() *Summary {
	s := &Summary{
		Type:            f.peType.String(),
		Machine:         winnt.MachineTypeName(f.FileHeader.Uint16("Machine")),
		Subsystem:       winnt.SubsystemName(f.OptionalHeader.Uint16("Subsystem")),
		Characteristics: f.Flags(),
		ImageBase:       f.ImageBase(),
		EntryPoint:      f.OptionalHeader.Uint32("AddressOfEntryPoint"),
		SizeOfImage:     f.OptionalHeader.Uint32("SizeOfImage"),
		IsDLL:           f.IsDLL(),
		IsDriver:        f.IsDriver(),
		Checksum:        f.ChecksumInfo(),
		Sections:        f.SectionInfos(),
		Imports:         f.ImportInfos(),
		Exports:         f.ExportInfos(),
		ImpHash:         f.ImpHash(),
		Version:         f.VersionStrings(),
		Rich:            f.RichEntries(),
		Warnings:        f.Warnings(),
	}
	if pgo, ok := f.PGO(); ok {
		ps := &PGOSummary{Signature: pgo.Signature, Kind: pgo.Kind}
		if p := pgo.Entry.POGO; p != nil {
			for _, e := range p.Entries {
				ps.Sections = append(ps.Sections, e.Name)
			}
		}
		s.PGO = ps
	}
	if off, ok := f.OverlayOffset(); ok {
		s.OverlayOffset = off
		s.OverlaySize = len(f.data) - int(off)
	}
	return s
}
