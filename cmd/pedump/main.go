// pedump is a CLI tool for inspecting Portable Executable images.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/jtang613/gope/pkg/pe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := buildRoot(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, color.RedString("Error: %v", err))
		return 1
	}
	return 0
}

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	Debug  bool
	Trace  bool
	Format string
	Pretty bool
	Fast   bool

	stderr io.Writer
}

func setGlobalFlags(flags *flag.FlagSet, stderr io.Writer) *GlobalFlags {
	g := &GlobalFlags{stderr: stderr}
	flags.BoolVar(&g.Debug, "debug", false, "Log parser warnings as they are found")
	flags.BoolVar(&g.Trace, "trace", false, "Log every parsing stage")
	flags.StringVar(&g.Format, "format", "text", "The output format to use. Can be text, json or yaml")
	flags.BoolVar(&g.Pretty, "pretty", false, "Indent JSON output")
	flags.BoolVar(&g.Fast, "fast", false, "Only parse the data directories the command needs")
	return g
}

func (g *GlobalFlags) logger() hclog.Logger {
	level := hclog.Warn
	switch {
	case g.Trace:
		level = hclog.Trace
	case g.Debug:
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "pedump",
		Level:  level,
		Output: g.stderr,
	})
}

func (g *GlobalFlags) validate() error {
	switch g.Format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return errors.Errorf("unknown output format %q", g.Format)
}

func buildRoot(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pedump",
		Short:         "Inspect PE/COFF executables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	g := setGlobalFlags(root.PersistentFlags(), stderr)
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		return g.validate()
	}

	root.AddCommand(newInfoCmd(g))
	root.AddCommand(newDumpCmd(g))
	root.AddCommand(newSectionsCmd(g))
	root.AddCommand(newImportsCmd(g))
	root.AddCommand(newExportsCmd(g))
	root.AddCommand(newResourcesCmd(g))
	root.AddCommand(newPGOCmd(g))
	root.AddCommand(newChecksumCmd(g))
	root.AddCommand(newImpHashCmd(g))
	root.AddCommand(newPDBCmd(g))
	return root
}

// forEachFile opens every path and runs fn on it. Failures do not stop the
// walk; they are collected and returned together. dirs lists the data
// directories fn needs when --fast is set.
func (g *GlobalFlags) forEachFile(cmd *cobra.Command, paths []string, dirs []int, fn func(*pe.File) error) error {
	out := cmd.OutOrStdout()
	opts := []pe.Option{pe.WithLogger(g.logger())}
	switch {
	case g.Fast && len(dirs) == 0:
		opts = append(opts, pe.WithFastLoad())
	case g.Fast:
		opts = append(opts, pe.WithDirectories(dirs...))
	}

	var errs *multierror.Error
	for i, path := range paths {
		if len(paths) > 1 && g.Format == formatText {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "==> %s <==\n", path)
		}

		f, err := pe.Open(path, opts...)
		if err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, path))
			continue
		}
		err = fn(f)
		g.printWarnings(f)
		f.Close()
		if err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, path))
		}
	}
	return errs.ErrorOrNil()
}

func (g *GlobalFlags) printWarnings(f *pe.File) {
	if g.Format != formatText {
		return
	}
	for _, w := range f.Warnings() {
		fmt.Fprintln(g.stderr, color.YellowString("warning: %s", w))
	}
}
