package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jtang613/gope/pkg/pdbinfo"
	"github.com/jtang613/gope/pkg/pe"
	"github.com/jtang613/gope/pkg/pe/codeview"
	"github.com/jtang613/gope/pkg/pe/structure"
	"github.com/jtang613/gope/pkg/pe/winnt"
)

var errPDBMismatch = errors.New("PDB does not match the image")

// pdbMatch is the machine-readable result of the pdb command.
type pdbMatch struct {
	Image    string `json:"image" yaml:"image"`
	PDB      string `json:"pdb" yaml:"pdb"`
	Expected string `json:"expected" yaml:"expected"`
	Found    string `json:"found" yaml:"found"`
	Match    bool   `json:"match" yaml:"match"`
}

func codeViewRecord(f *pe.File) *structure.Structure {
	for _, d := range f.Debug {
		if d.Type() == winnt.DebugTypeCodeView && d.Entry != nil {
			return d.Entry
		}
	}
	return nil
}

func newPDBCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pdb <image> <pdb>",
		Short: "Check that a PDB file belongs to an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p, err := pdbinfo.Open(args[1])
			if err != nil {
				return errors.Wrap(err, args[1])
			}
			defer p.Close()

			return g.forEachFile(cmd, args[:1], []int{winnt.DirectoryEntryDebug}, func(f *pe.File) error {
				cv := codeViewRecord(f)
				if cv == nil {
					return errors.New("no CodeView debug entry")
				}
				m := pdbMatch{
					Image: args[0],
					PDB:   args[1],
					Found: p.Info.SymbolKey(),
					Match: p.MatchesCodeView(cv),
				}
				if cv.Name() == codeview.PDB70.Name() {
					m.Expected = codeview.SymbolKey(cv)
				} else {
					m.Expected = fmt.Sprintf("%08X%X", cv.Uint32("Signature"), cv.Uint32("Age"))
					m.Found = fmt.Sprintf("%08X%X", p.Info.Signature, p.Info.Age)
				}

				if g.Format != formatText {
					if err := g.encode(out, m); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "PDB name: %s\n", codeview.PdbFileName(cv))
					fmt.Fprintf(out, "Expected: %s\n", m.Expected)
					fmt.Fprintf(out, "Found:    %s\n", m.Found)
				}
				if !m.Match {
					return errPDBMismatch
				}
				return nil
			})
		},
	}
}
