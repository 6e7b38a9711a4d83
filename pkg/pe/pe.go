// Package pe parses Portable Executable images. Parsing tolerates malformed
// input: anomalies are collected as warnings and only images that cannot be
// interpreted as PE at all fail with a *FormatError.
package pe

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/jtang613/gope/pkg/pe/source"
	"github.com/jtang613/gope/pkg/pe/structure"
)

// Parsing limits
const (
	MaxImportSymbols     = 0x2000
	MaxImportNameLength  = 0x200
	MaxDLLLength         = 0x200
	MaxSymbolNameLength  = 0x200
	MaxStringLength      = 0x100000
	MaxResourceEntries   = 0x1000
	MaxResourceDepth     = 3
	MaxResourceTotal     = 0x8000
	MaxRepeatedAddresses = 15
	MaxAddressSpread     = 128 * 1024 * 1024
)

// Type is the bitness of an image as declared by the optional header magic.
type Type int

// Image types
const (
	TypeUnknown Type = iota
	Type32
	Type64
)

func (t Type) String() string {
	switch t {
	case Type32:
		return "PE32"
	case Type64:
		return "PE32+"
	}
	return "unknown"
}

// File represents an opened PE image.
type File struct {
	src    *source.Source
	data   []byte
	header []byte
	logger hclog.Logger

	DOSHeader       *structure.Structure
	NTHeaders       *structure.Structure
	FileHeader      *structure.Structure
	OptionalHeader  *structure.Structure
	DataDirectories []*structure.Structure
	Sections        []*Section
	RichHeader      *RichHeader

	// Directory results, nil when the directory is absent or unusable
	Imports      []*ImportDescriptor
	DelayImports []*ImportDescriptor
	Exports      *ExportDirectory
	Resources    *ResourceDirectory
	Debug        []*DebugEntry
	Relocations  []*BaseRelocation
	TLS          *TLSDirectory
	LoadConfig   *LoadConfigDirectory
	BoundImports []*BoundImportDescriptor

	version *VersionInfo

	peType     Type
	structures []*structure.Structure
	warnings   []string

	importsParsed bool

	// warn-once flags for the alignment adjustments
	fileAlignmentWarned    bool
	sectionAlignmentWarned bool
}

// Option configures Open and OpenBytes.
type Option func(*config)

type config struct {
	fastLoad    bool
	logger      hclog.Logger
	directories []int
	mmap        bool
}

// WithFastLoad stops parsing after the section table. Directories can be
// parsed later with FullLoad or ParseDataDirectories.
func WithFastLoad() Option {
	return func(c *config) { c.fastLoad = true }
}

// WithLogger routes parse tracing and warnings to logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithDirectories restricts load-time directory parsing to the given
// data directory indices.
func WithDirectories(idx ...int) Option {
	return func(c *config) { c.directories = append(c.directories, idx...) }
}

// WithoutMmap reads the file into memory instead of mapping it.
func WithoutMmap() Option {
	return func(c *config) { c.mmap = false }
}

func newConfig(opts []Option) *config {
	c := &config{mmap: true}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	return c
}

// Open opens and parses the PE image at path.
func Open(path string, opts ...Option) (*File, error) {
	c := newConfig(opts)

	var (
		src *source.Source
		err error
	)
	if c.mmap {
		src, err = source.Open(path)
	} else {
		src, err = source.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	f, err := newFile(src, c)
	if err != nil {
		src.Close()
		return nil, err
	}
	return f, nil
}

// OpenBytes parses a PE image held in memory. The buffer is copied, so
// setters never modify the caller's bytes.
func OpenBytes(b []byte, opts ...Option) (*File, error) {
	src, err := source.FromBytes(append([]byte(nil), b...))
	if err != nil {
		return nil, err
	}
	return newFile(src, newConfig(opts))
}

func newFile(src *source.Source, c *config) (*File, error) {
	f := &File{
		src:    src,
		data:   src.Bytes(),
		logger: c.logger,
	}

	if err := f.parse(c); err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Warnings = f.Warnings()
		}
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// Close releases the underlying byte source. The File must not be used
// afterwards.
func (f *File) Close() error {
	if f.src == nil {
		return nil
	}
	err := f.src.Close()
	f.src = nil
	f.data = nil
	f.header = nil
	return err
}

// Data returns the image bytes including any patches applied by setters.
func (f *File) Data() []byte {
	return f.data
}

// Header returns the bytes preceding the first section's raw data.
func (f *File) Header() []byte {
	return f.header
}

// Type returns the bitness declared by the optional header.
func (f *File) Type() Type {
	return f.peType
}

// Is64 reports whether the image is PE32+.
func (f *File) Is64() bool {
	return f.peType == Type64
}

// Structures returns every structure decoded so far, in decode order.
func (f *File) Structures() []*structure.Structure {
	return f.structures
}

// VersionInfo returns the decoded VS_VERSIONINFO resource, or nil.
func (f *File) VersionInfo() *VersionInfo {
	return f.version
}

// unpack decodes a structure and records it for write-back. Failures are
// reported as warnings and yield nil.
func (f *File) unpack(format *structure.Format, data []byte, fileOffset int) *structure.Structure {
	st, err := format.Unpack(data, fileOffset)
	if err != nil {
		f.warnf("Corrupt header \"%s\" at file offset %d. Exception: %v", format.Name(), fileOffset, err)
		return nil
	}
	f.structures = append(f.structures, st)
	return st
}

// slice returns data[start:end] clamped to the image.
func (f *File) slice(start, end int) []byte {
	return source.Clamp(f.data, start, end)
}
