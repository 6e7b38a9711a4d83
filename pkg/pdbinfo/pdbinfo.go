// Package pdbinfo reads the identity of a program database: the MSF
// container, its stream directory and the PDB info stream. It is used to
// check that a PDB belongs to the image whose CodeView record names it.
package pdbinfo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jtang613/gope/pkg/pe/codeview"
	"github.com/jtang613/gope/pkg/pe/source"
	s "github.com/jtang613/gope/pkg/pe/structure"
)

// Magic opens every MSF 7.00 file.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00"

// InfoStream is the index of the PDB info stream.
const InfoStream = 1

const unusedStream = 0xFFFFFFFF

// PDB info stream versions
const (
	VersionVC70  = 20000404
	VersionVC80  = 20030901
	VersionVC110 = 20091201
	VersionVC140 = 20140508
)

var (
	ErrBadMagic       = errors.New("not an MSF 7.00 file")
	ErrBadBlockSize   = errors.New("invalid MSF block size")
	ErrBadStream      = errors.New("stream index out of range")
	ErrBlockOutOfFile = errors.New("MSF block points outside the file")
)

// SuperBlock is the MSF header layout.
var SuperBlock = s.NewFormat("MSF_SUPERBLOCK",
	s.Arr(len(Magic), "Magic"),
	s.U32("BlockSize"),
	s.U32("FreeBlockMapBlock"),
	s.U32("NumBlocks"),
	s.U32("NumDirectoryBytes"),
	s.U32("Unknown"),
	s.U32("BlockMapAddr"))

// InfoHeader is the fixed header of the PDB info stream.
var InfoHeader = s.NewFormat("PDB_INFO_HEADER",
	s.U32("Version"),
	s.U32("Signature"),
	s.U32("Age"),
	s.Arr(16, "GUID"))

// Info is the identity recorded in the PDB info stream.
type Info struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
	// NamedStreams maps names such as "/names" to stream indices.
	NamedStreams map[string]uint32
}

// GUIDString returns the GUID in the compact form symbol servers use.
func (i *Info) GUIDString() string {
	return codeview.GUIDString(i.GUID)
}

// SymbolKey returns the GUID followed by the age in hex.
func (i *Info) SymbolKey() string {
	return fmt.Sprintf("%s%X", i.GUIDString(), i.Age)
}

// PDB is an opened program database.
type PDB struct {
	Header *s.Structure
	Info   *Info

	src       *source.Source
	data      []byte
	blockSize int
	sizes     []uint32
	blocks    [][]uint32
}

// Open memory-maps and parses the PDB at path.
func Open(path string) (*PDB, error) {
	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	p, err := parse(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return p, nil
}

// Parse reads a PDB held in memory.
func Parse(data []byte) (*PDB, error) {
	src, err := source.FromBytes(data)
	if err != nil {
		return nil, err
	}
	return parse(src)
}

func parse(src *source.Source) (*PDB, error) {
	p := &PDB{src: src, data: src.Bytes()}

	hdr, err := SuperBlock.Unpack(p.data, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read MSF superblock")
	}
	if !bytes.Equal(hdr.Bytes("Magic"), []byte(Magic)) {
		return nil, ErrBadMagic
	}
	p.Header = hdr

	switch bs := hdr.Uint32("BlockSize"); bs {
	case 512, 1024, 2048, 4096:
		p.blockSize = int(bs)
	default:
		return nil, errors.Wrapf(ErrBadBlockSize, "%d", bs)
	}

	if err := p.readDirectory(); err != nil {
		return nil, errors.Wrap(err, "failed to read stream directory")
	}

	info, err := p.Stream(InfoStream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read PDB info stream")
	}
	if p.Info, err = parseInfo(info); err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases the file mapping.
func (p *PDB) Close() error {
	if p.src == nil {
		return nil
	}
	return p.src.Close()
}

// NumStreams returns the number of entries in the stream directory.
func (p *PDB) NumStreams() int {
	return len(p.sizes)
}

// StreamSize returns the byte length of a stream, or 0 for unused streams.
func (p *PDB) StreamSize(idx int) uint32 {
	if idx < 0 || idx >= len(p.sizes) || p.sizes[idx] == unusedStream {
		return 0
	}
	return p.sizes[idx]
}

// Stream reassembles the contents of a stream from its blocks.
func (p *PDB) Stream(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(p.sizes) {
		return nil, errors.Wrapf(ErrBadStream, "%d", idx)
	}
	size := int(p.StreamSize(idx))
	out := make([]byte, 0, size)
	for _, b := range p.blocks[idx] {
		blk, err := p.block(b)
		if err != nil {
			return nil, err
		}
		n := size - len(out)
		if n > p.blockSize {
			n = p.blockSize
		}
		out = append(out, blk[:n]...)
	}
	return out, nil
}

// MatchesCodeView reports whether the PDB is the one a CodeView record
// refers to. RSDS records are matched on GUID and age, NB10 records on
// signature and age.
func (p *PDB) MatchesCodeView(cv *s.Structure) bool {
	if cv == nil {
		return false
	}
	switch cv.Name() {
	case codeview.PDB70.Name():
		return codeview.GUID(cv) == p.Info.GUID && cv.Uint32("Age") == p.Info.Age
	case codeview.PDB20.Name():
		return cv.Uint32("Signature") == p.Info.Signature && cv.Uint32("Age") == p.Info.Age
	}
	return false
}

func (p *PDB) block(n uint32) ([]byte, error) {
	start := int(n) * p.blockSize
	if n >= p.Header.Uint32("NumBlocks") || start+p.blockSize > len(p.data) {
		return nil, errors.Wrapf(ErrBlockOutOfFile, "block %d", n)
	}
	return p.data[start : start+p.blockSize], nil
}

// readDirectory loads the stream directory. The block map at BlockMapAddr
// lists the blocks the directory itself is stored in.
func (p *PDB) readDirectory() error {
	dirBytes := int(p.Header.Uint32("NumDirectoryBytes"))
	numDirBlocks := (dirBytes + p.blockSize - 1) / p.blockSize
	blockMap, err := p.block(p.Header.Uint32("BlockMapAddr"))
	if err != nil {
		return err
	}
	if numDirBlocks*4 > len(blockMap) {
		return errors.Errorf("directory needs %d blocks, block map holds %d", numDirBlocks, len(blockMap)/4)
	}

	dir := make([]byte, 0, numDirBlocks*p.blockSize)
	for i := 0; i < numDirBlocks; i++ {
		blk, err := p.block(binary.LittleEndian.Uint32(blockMap[i*4:]))
		if err != nil {
			return err
		}
		dir = append(dir, blk...)
	}
	dir = dir[:dirBytes]

	r := &reader{b: dir}
	numStreams := r.u32()
	if r.err != nil || int(numStreams) > len(dir)/4 {
		return errors.Errorf("invalid stream count %d", numStreams)
	}
	p.sizes = make([]uint32, numStreams)
	for i := range p.sizes {
		p.sizes[i] = r.u32()
	}
	p.blocks = make([][]uint32, numStreams)
	for i, size := range p.sizes {
		if size == unusedStream {
			continue
		}
		n := (int(size) + p.blockSize - 1) / p.blockSize
		if n > len(dir)/4 {
			return errors.Errorf("stream %d claims %d blocks", i, n)
		}
		p.blocks[i] = make([]uint32, n)
		for j := range p.blocks[i] {
			p.blocks[i][j] = r.u32()
		}
	}
	return errors.Wrap(r.err, "truncated stream directory")
}

// parseInfo decodes the info stream header and its named stream map. A
// missing or truncated map leaves NamedStreams empty.
func parseInfo(data []byte) (*Info, error) {
	hdr, err := InfoHeader.Unpack(data, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read PDB info header")
	}
	info := &Info{
		Version:      hdr.Uint32("Version"),
		Signature:    hdr.Uint32("Signature"),
		Age:          hdr.Uint32("Age"),
		NamedStreams: make(map[string]uint32),
	}
	copy(info.GUID[:], hdr.Bytes("GUID"))

	r := &reader{b: data, off: InfoHeader.Size()}
	names := r.bytes(int(r.u32()))
	r.u32() // number of entries
	capacity := r.u32()
	present := r.words()
	r.words() // deleted buckets
	if r.err != nil {
		return info, nil
	}

	for i := uint32(0); i < capacity; i++ {
		if !bitSet(present, i) {
			continue
		}
		key, idx := r.u32(), r.u32()
		if r.err != nil {
			break
		}
		if int(key) < len(names) {
			name := names[key:]
			if end := bytes.IndexByte(name, 0); end >= 0 {
				name = name[:end]
			}
			info.NamedStreams[string(name)] = idx
		}
	}
	return info, nil
}

func bitSet(words []uint32, n uint32) bool {
	w := n / 32
	return w < uint32(len(words)) && words[w]&(1<<(n%32)) != 0
}

// reader walks little-endian words and remembers the first overrun.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = s.ErrShortData
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) words() []uint32 {
	n := int(r.u32())
	if r.err != nil || n > (len(r.b)-r.off)/4 {
		if r.err == nil {
			r.err = s.ErrShortData
		}
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.u32()
	}
	return out
}
