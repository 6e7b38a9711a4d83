package pe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/jtang613/gope/pkg/pe/winnt"
)

// dumper accumulates the text of DumpInfo.
type dumper struct {
	b strings.Builder
}

func (d *dumper) add(txt string, indent int) {
	d.b.WriteString(strings.Repeat(" ", indent))
	d.b.WriteString(txt)
}

func (d *dumper) line(txt string, indent int) {
	d.add(txt+"\n", indent)
}

func (d *dumper) lines(txt []string, indent int) {
	for _, l := range txt {
		d.line(l, indent)
	}
}

func (d *dumper) header(txt string) {
	d.line(fmt.Sprintf("%s%s%s\n", strings.Repeat("-", 10), txt, strings.Repeat("-", 10)), 0)
}

func (d *dumper) newline() {
	d.b.WriteString("\n")
}

func sortedFlags(names []string) string {
	names = append([]string(nil), names...)
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// escapeString renders s with non-ASCII characters escaped.
func escapeString(s string) string {
	q := strconv.QuoteToASCII(s)
	return q[1 : len(q)-1]
}

// DumpInfo renders every decoded structure as text.
func (f *File) DumpInfo() string {
	d := &dumper{}

	if w := f.Warnings(); len(w) > 0 {
		d.header("Parsing Warnings")
		for _, msg := range w {
			d.line(msg, 0)
			d.newline()
		}
	}

	d.header("DOS_HEADER")
	d.lines(f.DOSHeader.Dump(0), 0)
	d.newline()

	d.header("NT_HEADERS")
	d.lines(f.NTHeaders.Dump(0), 0)
	d.newline()

	d.header("FILE_HEADER")
	d.lines(f.FileHeader.Dump(0), 0)
	d.add("Flags: ", 0)
	d.line(sortedFlags(f.Flags()), 0)
	d.newline()

	d.header("OPTIONAL_HEADER")
	d.lines(f.OptionalHeader.Dump(0), 0)
	d.add("DllCharacteristics: ", 0)
	d.line(sortedFlags(f.DLLCharacteristicsFlags()), 0)
	d.newline()

	d.header("PE Sections")
	for _, s := range f.Sections {
		d.lines(s.Header.Dump(0), 0)
		d.add("Flags: ", 0)
		d.line(sortedFlags(s.Flags()), 0)
		d.line(fmt.Sprintf("Entropy: %f (Min=0.0, Max=8.0)", s.Entropy()), 0)
		d.line("MD5     hash: "+s.MD5(), 0)
		d.line("SHA-1   hash: "+s.SHA1(), 0)
		d.line("SHA-256 hash: "+s.SHA256(), 0)
		d.line("SHA-512 hash: "+s.SHA512(), 0)
		d.newline()
	}

	if len(f.DataDirectories) > 0 {
		d.header("Directories")
		for _, dir := range f.DataDirectories {
			d.lines(dir.Dump(0), 0)
		}
		d.newline()
	}

	if vi := f.version; vi != nil {
		f.dumpVersion(d, vi)
	}

	if e := f.Exports; e != nil {
		d.header("Exported symbols")
		d.lines(e.Struct.Dump(0), 0)
		d.newline()
		d.line(fmt.Sprintf("%-10s   %-10s  %s", "Ordinal", "RVA", "Name"), 0)
		for _, sym := range e.Symbols {
			name := sym.Name
			if name == "" {
				name = "None"
			}
			d.add(fmt.Sprintf("%-10d 0x%08Xh    %s", sym.Ordinal, sym.Address, name), 0)
			if sym.Forwarder != "" {
				d.line(" forwarder: "+sym.Forwarder, 0)
			} else {
				d.newline()
			}
		}
		d.newline()
	}

	if len(f.Imports) > 0 {
		d.header("Imported symbols")
		for _, mod := range f.Imports {
			d.lines(mod.Struct.Dump(0), 0)
			if len(mod.Imports) == 0 {
				d.add("  Name -> "+f.GetStringAtRVA(mod.Struct.Uint32("Name"), 0), 0)
				d.newline()
			}
			d.newline()
			dumpImports(d, mod)
			d.newline()
		}
	}

	if len(f.BoundImports) > 0 {
		d.header("Bound imports")
		for _, b := range f.BoundImports {
			d.lines(b.Struct.Dump(0), 0)
			d.line("DLL: "+b.Name, 0)
			d.newline()
			for _, ref := range b.Entries {
				d.lines(ref.Struct.Dump(0), 4)
				d.line("DLL: "+ref.Name, 4)
				d.newline()
			}
		}
	}

	if len(f.DelayImports) > 0 {
		d.header("Delay Imported symbols")
		for _, mod := range f.DelayImports {
			d.lines(mod.Struct.Dump(0), 0)
			d.newline()
			dumpImports(d, mod)
			d.newline()
		}
	}

	if r := f.Resources; r != nil {
		dumpResources(d, r)
	}

	if f.TLS != nil {
		d.header("TLS")
		d.lines(f.TLS.Struct.Dump(0), 0)
		d.newline()
	}

	if f.LoadConfig != nil {
		d.header("LOAD_CONFIG")
		d.lines(f.LoadConfig.Struct.Dump(0), 0)
		d.newline()
	}

	if len(f.Debug) > 0 {
		d.header("Debug information")
		for _, dbg := range f.Debug {
			d.lines(dbg.Struct.Dump(0), 0)
			if name, ok := winnt.Lookup(winnt.DebugTypes, uint64(dbg.Type())); ok {
				d.line("Type: "+name, 0)
			} else {
				d.line(fmt.Sprintf("Type: 0x%x(Unknown)", dbg.Type()), 0)
			}
			d.newline()
			if dbg.Entry != nil {
				d.lines(dbg.Entry.Dump(0), 4)
				d.newline()
			}
		}
	}

	if len(f.Relocations) > 0 {
		d.header("Base relocations")
		for _, block := range f.Relocations {
			d.lines(block.Struct.Dump(0), 0)
			for _, e := range block.Entries {
				if name, ok := winnt.Lookup(winnt.RelocationTypes, uint64(e.Type)); ok {
					d.line(fmt.Sprintf("%08Xh %s", e.RVA, strings.TrimPrefix(name, "IMAGE_REL_BASED_")), 4)
				} else {
					d.line(fmt.Sprintf("0x%08X 0x%x(Unknown)", e.RVA, e.Type), 4)
				}
			}
			d.newline()
		}
	}

	return d.b.String()
}

func dumpImports(d *dumper, mod *ImportDescriptor) {
	for _, sym := range mod.Imports {
		switch {
		case sym.ByOrdinal && sym.Name != "":
			d.add(fmt.Sprintf("%s.%s Ordinal[%d] (Imported by Ordinal)", mod.DLL, sym.Name, derefUint16(sym.Ordinal)), 0)
		case sym.ByOrdinal:
			d.add(fmt.Sprintf("%s Ordinal[%d] (Imported by Ordinal)", mod.DLL, derefUint16(sym.Ordinal)), 0)
		default:
			d.add(fmt.Sprintf("%s.%s Hint[%d]", mod.DLL, sym.Name, derefUint16(sym.Hint)), 0)
		}
		if sym.Bound != 0 {
			d.line(fmt.Sprintf(" Bound: 0x%08X", sym.Bound), 0)
		} else {
			d.newline()
		}
	}
}

func (f *File) dumpVersion(d *dumper, vi *VersionInfo) {
	d.header("Version Information")
	d.lines(vi.Struct.Dump(0), 0)
	d.newline()
	if vi.Fixed != nil {
		d.lines(vi.Fixed.Dump(0), 0)
		d.newline()
	}
	for _, fi := range vi.FileInfo {
		d.lines(fi.Struct.Dump(0), 0)
		d.newline()
		switch {
		case fi.StringTables != nil:
			for _, t := range fi.StringTables {
				d.lines(t.Struct.Dump(0), 2)
				d.line("LangID: "+t.LangID, 2)
				d.newline()
				keys := append([]string(nil), t.Keys...)
				sort.Strings(keys)
				for _, k := range keys {
					d.line(fmt.Sprintf("%s: %s", k, t.Entries[k]), 4)
				}
			}
			d.newline()
		case fi.Vars != nil:
			for _, v := range fi.Vars {
				if v.Value == "" {
					continue
				}
				d.lines(v.Struct.Dump(0), 2)
				d.line(fmt.Sprintf("%s: %s", v.Key, v.Value), 4)
			}
			d.newline()
		}
	}
}

func dumpResources(d *dumper, r *ResourceDirectory) {
	d.header("Resource directory")
	d.lines(r.Struct.Dump(0), 0)

	for _, typ := range r.Entries {
		if typ.NameIsString {
			d.line(fmt.Sprintf("Name: [%s]", typ.Name), 2)
		} else {
			id := typ.Struct.Uint32("Name") & 0xffff
			name, ok := winnt.ResourceTypeName(id)
			if !ok {
				name = "-"
			}
			d.line(fmt.Sprintf("Id: [0x%X] (%s)", id, name), 2)
		}
		d.lines(typ.Struct.Dump(0), 2)

		if typ.Directory != nil {
			d.lines(typ.Directory.Struct.Dump(0), 4)
			for _, id := range typ.Directory.Entries {
				if id.NameIsString {
					d.line(fmt.Sprintf("Name: [%s]", id.Name), 6)
				} else {
					d.line(fmt.Sprintf("Id: [0x%X]", id.Struct.Uint32("Name")&0xffff), 6)
				}
				d.lines(id.Struct.Dump(0), 6)

				if id.Directory == nil {
					continue
				}
				d.lines(id.Directory.Struct.Dump(0), 8)
				for _, lang := range id.Directory.Entries {
					if lang.Data == nil {
						continue
					}
					l, sl := lang.Data.Lang, lang.Data.Sublang
					d.line(fmt.Sprintf("\\--- LANG [%d,%d][%s,%s]", l, sl,
						winnt.LanguageName(l), winnt.SublanguageName(l, sl)), 8)
					d.lines(lang.Struct.Dump(0), 10)
					d.lines(lang.Data.Struct.Dump(0), 12)
				}
				if len(id.Directory.Strings) > 0 {
					d.line("[STRINGS]", 10)
					for _, k := range sortedKeys(id.Directory.Strings) {
						d.line(fmt.Sprintf("%6d: %s", k, escapeString(id.Directory.Strings[k])), 12)
					}
				}
			}
		}
		d.newline()
	}
	d.newline()
}

// mergeDict adds the items of src to dst, replacing items with the same key.
func mergeDict(dst, src yaml.MapSlice) yaml.MapSlice {
	for _, item := range src {
		replaced := false
		for i := range dst {
			if dst[i].Key == item.Key {
				dst[i].Value = item.Value
				replaced = true
				break
			}
		}
		if !replaced {
			dst = append(dst, item)
		}
	}
	return dst
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func derefUint16(v *uint16) uint16 {
	if v == nil {
		return 0
	}
	return *v
}

// DumpDict returns the decoded structures as an ordered nested mapping,
// suitable for YAML or JSON rendering.
func (f *File) DumpDict() yaml.MapSlice {
	var out yaml.MapSlice
	put := func(k string, v interface{}) {
		out = append(out, yaml.MapItem{Key: k, Value: v})
	}

	if w := f.Warnings(); len(w) > 0 {
		put("Parsing Warnings", w)
	}
	put("DOS_HEADER", f.DOSHeader.DumpDict())
	put("NT_HEADERS", f.NTHeaders.DumpDict())
	put("FILE_HEADER", f.FileHeader.DumpDict())
	put("Flags", f.Flags())
	put("OPTIONAL_HEADER", f.OptionalHeader.DumpDict())
	put("DllCharacteristics", f.DLLCharacteristicsFlags())

	var sections []yaml.MapSlice
	for _, s := range f.Sections {
		sd := s.Header.DumpDict()
		sd = append(sd,
			yaml.MapItem{Key: "Flags", Value: s.Flags()},
			yaml.MapItem{Key: "Entropy", Value: s.Entropy()},
			yaml.MapItem{Key: "MD5", Value: s.MD5()},
			yaml.MapItem{Key: "SHA1", Value: s.SHA1()},
			yaml.MapItem{Key: "SHA256", Value: s.SHA256()},
			yaml.MapItem{Key: "SHA512", Value: s.SHA512()})
		sections = append(sections, sd)
	}
	put("PE Sections", sections)

	if len(f.DataDirectories) > 0 {
		var dirs []yaml.MapSlice
		for _, dir := range f.DataDirectories {
			dirs = append(dirs, dir.DumpDict())
		}
		put("Directories", dirs)
	}

	if vi := f.version; vi != nil {
		put("Version Information", versionDict(vi))
	}

	if e := f.Exports; e != nil {
		list := []interface{}{e.Struct.DumpDict()}
		for _, sym := range e.Symbols {
			m := yaml.MapSlice{
				{Key: "Ordinal", Value: sym.Ordinal},
				{Key: "RVA", Value: sym.Address},
				{Key: "Name", Value: sym.Name},
			}
			if sym.Forwarder != "" {
				m = append(m, yaml.MapItem{Key: "forwarder", Value: sym.Forwarder})
			}
			list = append(list, m)
		}
		put("Exported symbols", list)
	}

	if len(f.Imports) > 0 {
		put("Imported symbols", importsDict(f.Imports))
	}

	if len(f.BoundImports) > 0 {
		var list []yaml.MapSlice
		for _, b := range f.BoundImports {
			m := append(b.Struct.DumpDict(), yaml.MapItem{Key: "DLL", Value: b.Name})
			var refs []yaml.MapSlice
			for _, ref := range b.Entries {
				refs = append(refs, append(ref.Struct.DumpDict(), yaml.MapItem{Key: "DLL", Value: ref.Name}))
			}
			if len(refs) > 0 {
				m = append(m, yaml.MapItem{Key: "Forwarders", Value: refs})
			}
			list = append(list, m)
		}
		put("Bound imports", list)
	}

	if len(f.DelayImports) > 0 {
		put("Delay Imported symbols", importsDict(f.DelayImports))
	}

	if r := f.Resources; r != nil {
		put("Resource directory", resourcesDict(r))
	}

	if f.TLS != nil {
		put("TLS", f.TLS.Struct.DumpDict())
	}
	if f.LoadConfig != nil {
		put("LOAD_CONFIG", f.LoadConfig.Struct.DumpDict())
	}

	if len(f.Debug) > 0 {
		var list []interface{}
		for _, dbg := range f.Debug {
			list = append(list, dbg.Struct.DumpDict())
			if dbg.Entry != nil {
				list = append(list, dbg.Entry.DumpDict())
			}
		}
		put("Debug information", list)
	}

	if len(f.Relocations) > 0 {
		var list []interface{}
		for _, block := range f.Relocations {
			entries := []interface{}{block.Struct.DumpDict()}
			for _, e := range block.Entries {
				entries = append(entries, yaml.MapSlice{
					{Key: "RVA", Value: e.RVA},
					{Key: "Type", Value: winnt.RelocationTypeName(e.Type)},
				})
			}
			list = append(list, entries)
		}
		put("Base relocations", list)
	}

	return out
}

func importsDict(mods []*ImportDescriptor) []interface{} {
	var list []interface{}
	for _, mod := range mods {
		entries := []interface{}{mod.Struct.DumpDict()}
		for _, sym := range mod.Imports {
			m := yaml.MapSlice{{Key: "DLL", Value: mod.DLL}}
			if sym.ByOrdinal {
				m = append(m, yaml.MapItem{Key: "Ordinal", Value: derefUint16(sym.Ordinal)})
			} else {
				m = append(m,
					yaml.MapItem{Key: "Name", Value: sym.Name},
					yaml.MapItem{Key: "Hint", Value: derefUint16(sym.Hint)})
			}
			if sym.Bound != 0 {
				m = append(m, yaml.MapItem{Key: "Bound", Value: sym.Bound})
			}
			entries = append(entries, m)
		}
		list = append(list, entries)
	}
	return list
}

func versionDict(vi *VersionInfo) []interface{} {
	list := []interface{}{vi.Struct.DumpDict()}
	if vi.Fixed != nil {
		list = append(list, vi.Fixed.DumpDict())
	}
	var infos []interface{}
	for _, fi := range vi.FileInfo {
		infos = append(infos, fi.Struct.DumpDict())
		for _, t := range fi.StringTables {
			infos = append(infos, t.Struct.DumpDict())
			m := yaml.MapSlice{{Key: "LangID", Value: t.LangID}}
			for _, k := range t.Keys {
				m = append(m, yaml.MapItem{Key: k, Value: t.Entries[k]})
			}
			infos = append(infos, m)
		}
		for _, v := range fi.Vars {
			if v.Value == "" {
				continue
			}
			infos = append(infos, v.Struct.DumpDict(), yaml.MapSlice{{Key: v.Key, Value: v.Value}})
		}
	}
	if len(infos) > 0 {
		list = append(list, infos)
	}
	return list
}

func resourcesDict(r *ResourceDirectory) []interface{} {
	list := []interface{}{r.Struct.DumpDict()}
	for _, typ := range r.Entries {
		var m yaml.MapSlice
		if typ.NameIsString {
			m = yaml.MapSlice{{Key: "Name", Value: typ.Name}}
		} else {
			id := typ.Struct.Uint32("Name") & 0xffff
			name, ok := winnt.ResourceTypeName(id)
			if !ok {
				name = "-"
			}
			m = yaml.MapSlice{{Key: "Id", Value: []interface{}{id, name}}}
		}
		list = append(list, mergeDict(m, typ.Struct.DumpDict()))

		if typ.Directory == nil {
			continue
		}
		dir := []interface{}{typ.Directory.Struct.DumpDict()}
		for _, id := range typ.Directory.Entries {
			var im yaml.MapSlice
			if id.NameIsString {
				im = yaml.MapSlice{{Key: "Name", Value: id.Name}}
			} else {
				im = yaml.MapSlice{{Key: "Id", Value: id.Struct.Uint32("Name") & 0xffff}}
			}
			dir = append(dir, mergeDict(im, id.Struct.DumpDict()))

			if id.Directory == nil {
				continue
			}
			langs := []interface{}{id.Directory.Struct.DumpDict()}
			for _, lang := range id.Directory.Entries {
				if lang.Data == nil {
					continue
				}
				l, sl := lang.Data.Lang, lang.Data.Sublang
				lm := yaml.MapSlice{
					{Key: "LANG", Value: l},
					{Key: "SUBLANG", Value: sl},
					{Key: "LANG_NAME", Value: winnt.LanguageName(l)},
					{Key: "SUBLANG_NAME", Value: winnt.SublanguageName(l, sl)},
				}
				lm = mergeDict(lm, lang.Struct.DumpDict())
				lm = mergeDict(lm, lang.Data.Struct.DumpDict())
				langs = append(langs, lm)
			}
			for _, k := range sortedKeys(id.Directory.Strings) {
				langs = append(langs, escapeString(id.Directory.Strings[k]))
			}
			dir = append(dir, langs)
		}
		list = append(list, dir)
	}
	return list
}
