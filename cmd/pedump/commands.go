package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jtang613/gope/pkg/pe"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

// allDirectories makes --fast a no-op for commands that show everything.
var allDirectories = []int{
	winnt.DirectoryEntryExport, winnt.DirectoryEntryImport, winnt.DirectoryEntryResource,
	winnt.DirectoryEntryBaseReloc, winnt.DirectoryEntryDebug, winnt.DirectoryEntryTLS,
	winnt.DirectoryEntryLoadConfig, winnt.DirectoryEntryBoundImport, winnt.DirectoryEntryDelayImport,
}

func newInfoCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>...",
		Short: "Show an overview of each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, allDirectories, func(f *pe.File) error {
				s := f.Summary()
				if g.Format != formatText {
					return g.encode(out, s)
				}
				printSummary(out, f, s)
				return nil
			})
		},
	}
}

func printSummary(w io.Writer, f *pe.File, s *pe.Summary) {
	kind := "EXE"
	switch {
	case s.IsDriver:
		kind = "driver"
	case s.IsDLL:
		kind = "DLL"
	}
	fmt.Fprintf(w, "Type:            %s %s\n", s.Type, kind)
	fmt.Fprintf(w, "Machine:         %s\n", s.Machine)
	fmt.Fprintf(w, "Subsystem:       %s\n", s.Subsystem)
	fmt.Fprintf(w, "Characteristics: %s\n", strings.Join(s.Characteristics, ", "))
	fmt.Fprintf(w, "Image base:      0x%x\n", s.ImageBase)
	fmt.Fprintf(w, "Entry point:     %s\n", hex32(s.EntryPoint))
	fmt.Fprintf(w, "Size of image:   %s\n", humanize.IBytes(uint64(s.SizeOfImage)))
	fmt.Fprintf(w, "File size:       %s\n", humanize.IBytes(uint64(len(f.Data()))))
	fmt.Fprintf(w, "Checksum:        %s (computed %s)\n", hex32(s.Checksum.Stored), hex32(s.Checksum.Computed))
	fmt.Fprintf(w, "Sections:        %d\n", len(s.Sections))
	fmt.Fprintf(w, "Imports:         %s\n", humanize.Comma(int64(len(s.Imports))))
	fmt.Fprintf(w, "Exports:         %s\n", humanize.Comma(int64(len(s.Exports))))
	if s.ImpHash != "" {
		fmt.Fprintf(w, "Imphash:         %s\n", s.ImpHash)
	}
	if s.PGO != nil {
		fmt.Fprintf(w, "POGO:            %s\n", pgoLabel(s.PGO.Kind, s.PGO.Signature))
	}
	if s.OverlaySize > 0 {
		fmt.Fprintf(w, "Overlay:         %s at 0x%x\n", humanize.IBytes(uint64(s.OverlaySize)), s.OverlayOffset)
	}
	for _, e := range s.Rich {
		fmt.Fprintf(w, "Rich:            product %d build %d count %d\n", e.ProductID, e.Build, e.Count)
	}
	printVersion(w, s.Version)
}

func printVersion(w io.Writer, version map[string]string) {
	keys := make([]string, 0, len(version))
	for k := range version {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-16s %s\n", k+":", version[k])
	}
}

func newDumpCmd(g *GlobalFlags) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "dump <file>...",
		Short: "Dump every decoded structure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, allDirectories, func(f *pe.File) error {
				switch {
				case raw:
					cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
					cfg.Fdump(out, f.Summary(), f.Imports, f.Exports, f.Debug, f.Relocations)
					return nil
				case g.Format != formatText:
					return g.encode(out, f.DumpDict())
				}
				_, err := io.WriteString(out, f.DumpInfo())
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the parsed Go values")
	return cmd
}

func newSectionsCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <file>...",
		Short: "List the section table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, nil, func(f *pe.File) error {
				infos := f.SectionInfos()
				if g.Format != formatText {
					return g.encode(out, infos)
				}
				rows := make([][]string, 0, len(infos))
				for _, s := range infos {
					rows = append(rows, []string{
						s.Name,
						hex32(s.VirtualAddress),
						humanize.IBytes(uint64(s.VirtualSize)),
						hex32(s.PointerToRawData),
						humanize.IBytes(uint64(s.SizeOfRawData)),
						fmt.Sprintf("%.2f", s.Entropy),
						strings.Join(s.Flags, " "),
					})
				}
				printTable(out, []string{"Name", "VirtualAddress", "VirtualSize", "RawPointer", "RawSize", "Entropy", "Flags"}, rows)
				return nil
			})
		},
	}
}

func newImportsCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "imports <file>...",
		Short: "List imported symbols, including delay-loaded ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			dirs := []int{winnt.DirectoryEntryImport, winnt.DirectoryEntryDelayImport}
			return g.forEachFile(cmd, args, dirs, func(f *pe.File) error {
				infos := f.ImportInfos()
				if g.Format != formatText {
					return g.encode(out, infos)
				}
				rows := make([][]string, 0, len(infos))
				for _, imp := range infos {
					name := imp.Name
					if name == "" {
						name = fmt.Sprintf("#%d", imp.Ordinal)
					}
					if imp.Demangled != "" {
						name += " (" + imp.Demangled + ")"
					}
					delayed := ""
					if imp.Delayed {
						delayed = "delay"
					}
					rows = append(rows, []string{imp.DLL, name, fmt.Sprintf("0x%x", imp.Address), delayed})
				}
				printTable(out, []string{"DLL", "Symbol", "Address", ""}, rows)
				return nil
			})
		},
	}
}

func newExportsCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exports <file>...",
		Short: "List exported symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, []int{winnt.DirectoryEntryExport}, func(f *pe.File) error {
				infos := f.ExportInfos()
				if g.Format != formatText {
					return g.encode(out, infos)
				}
				rows := make([][]string, 0, len(infos))
				for _, e := range infos {
					name := e.Name
					if e.Demangled != "" {
						name += " (" + e.Demangled + ")"
					}
					target := hex32(e.RVA)
					if e.Forwarder != "" {
						target = "-> " + e.Forwarder
					}
					rows = append(rows, []string{fmt.Sprint(e.Ordinal), target, name})
				}
				printTable(out, []string{"Ordinal", "RVA", "Name"}, rows)
				return nil
			})
		},
	}
}

func newResourcesCmd(g *GlobalFlags) *cobra.Command {
	var showStrings bool
	cmd := &cobra.Command{
		Use:   "resources <file>...",
		Short: "List resources and version information",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, []int{winnt.DirectoryEntryResource}, func(f *pe.File) error {
				infos := f.ResourceInfos()
				if g.Format != formatText {
					v := map[string]interface{}{"resources": infos, "version": f.VersionStrings()}
					if showStrings {
						v["strings"] = f.ResourceStrings()
					}
					return g.encode(out, v)
				}
				rows := make([][]string, 0, len(infos))
				for _, r := range infos {
					rows = append(rows, []string{r.Type, r.Name, r.Language, hex32(r.RVA), humanize.IBytes(uint64(r.Size))})
				}
				printTable(out, []string{"Type", "Name", "Language", "RVA", "Size"}, rows)
				if v := f.VersionStrings(); len(v) > 0 {
					fmt.Fprintln(out)
					printVersion(out, v)
				}
				if showStrings {
					fmt.Fprintln(out)
					for _, s := range f.ResourceStrings() {
						fmt.Fprintln(out, s)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showStrings, "strings", false, "Also print the RT_STRING entries")
	return cmd
}

func pgoLabel(kind string, sig uint32) string {
	if kind == "" {
		kind = "unknown"
	}
	return fmt.Sprintf("%s (%s)", kind, hex32(sig))
}

func newPGOCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pgo <file>...",
		Short: "Classify the POGO debug entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, []int{winnt.DirectoryEntryDebug}, func(f *pe.File) error {
				info, ok := f.PGO()
				if g.Format != formatText {
					var v interface{}
					if ok {
						v = f.Summary().PGO
					}
					return g.encode(out, v)
				}
				if !ok {
					fmt.Fprintln(out, "no POGO entry")
					return nil
				}
				fmt.Fprintln(out, pgoLabel(info.Kind, info.Signature))
				if p := info.Entry.POGO; p != nil {
					rows := make([][]string, 0, len(p.Entries))
					for _, e := range p.Entries {
						rows = append(rows, []string{e.Name, hex32(e.RVA), humanize.IBytes(uint64(e.Size))})
					}
					printTable(out, []string{"Section", "RVA", "Size"}, rows)
				}
				return nil
			})
		},
	}
}

func newChecksumCmd(g *GlobalFlags) *cobra.Command {
	var fixTo string
	cmd := &cobra.Command{
		Use:   "checksum <file>...",
		Short: "Verify the optional header checksum",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixTo != "" && len(args) != 1 {
				return errors.New("--fix-to takes exactly one input file")
			}
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, nil, func(f *pe.File) error {
				info := f.ChecksumInfo()
				if fixTo != "" {
					if err := f.OptionalHeader.Set("CheckSum", uint64(info.Computed)); err != nil {
						return err
					}
					if err := f.WriteFile(fixTo); err != nil {
						return err
					}
				}
				if g.Format != formatText {
					return g.encode(out, info)
				}
				state := "valid"
				if !info.Valid {
					state = "invalid"
				}
				fmt.Fprintf(out, "stored %s computed %s %s\n", hex32(info.Stored), hex32(info.Computed), state)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fixTo, "fix-to", "", "Write a copy with the computed checksum to this path")
	return cmd
}

func newImpHashCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "imphash <file>...",
		Short: "Print the import hash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return g.forEachFile(cmd, args, []int{winnt.DirectoryEntryImport}, func(f *pe.File) error {
				h := f.ImpHash()
				if g.Format != formatText {
					return g.encode(out, map[string]string{"imphash": h})
				}
				fmt.Fprintln(out, h)
				return nil
			})
		},
	}
}
