package pe

import (
	"bytes"
	"encoding/binary"
)

const (
	richStart     = 0x80
	richSignature = 0x68636952 // "Rich"
	dansSignature = 0x536E6144 // "DanS"
)

// RichHeader is the decoded linker signature found between the DOS stub and
// the NT headers.
type RichHeader struct {
	Checksum uint32
	// Values holds (comp.id, count) pairs
	Values []uint32
}

func (f *File) parseRichHeader() *RichHeader {
	if f.OptionalHeader == nil {
		return nil
	}
	end := f.OptionalHeader.FileOffset()
	if end <= richStart {
		return nil
	}
	idx := bytes.Index(f.slice(richStart, end), []byte("Rich"))
	if idx < 0 {
		return nil
	}
	idx += richStart

	raw, err := f.GetData(richStart, idx+8)
	if err != nil {
		return nil
	}
	words := make([]uint32, len(raw)/4)
	found := false
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
		if words[i] == richSignature {
			found = true
		}
	}
	if !found || len(words) < 4 {
		return nil
	}

	// The key follows DanS three times
	key := words[1]
	if words[0]^key != dansSignature || words[2] != key || words[3] != key {
		return nil
	}

	rh := &RichHeader{Checksum: key}
	words = words[4:]
	for i := 0; i+1 < len(words); i += 2 {
		if words[i] == richSignature {
			if words[i+1] != key {
				f.warn("Rich Header is malformed")
			}
			break
		}
		rh.Values = append(rh.Values, words[i]^key, words[i+1]^key)
	}
	f.logger.Trace("parsed rich header", "entries", len(rh.Values)/2)
	return rh
}
