package codeview

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// POGO payload signatures.
const (
	POGOSignaturePGU  = 0x50475500 // instrumented build
	POGOSignaturePGO  = 0x50474F00 // profile-optimized build
	POGOSignatureLTCG = 0x4C544347 // link-time code generation only
)

// POGOEntry is one (RVA, size, section name) record of a POGO table.
type POGOEntry struct {
	RVA  uint32 `json:"rva"`
	Size uint32 `json:"size"`
	Name string `json:"name"`
}

// POGO represents a decoded IMAGE_DEBUG_TYPE_POGO payload.
type POGO struct {
	Signature uint32      `json:"signature"`
	Kind      string      `json:"kind"`
	Entries   []POGOEntry `json:"entries,omitempty"`
}

// ClassifyPGO maps the leading dword of a POGO payload to its build kind.
func ClassifyPGO(sig uint32) (string, bool) {
	switch sig {
	case POGOSignaturePGU:
		return "PGU", true
	case POGOSignaturePGO:
		return "PGO", true
	case POGOSignatureLTCG:
		return "LTCG", true
	}
	return "", false
}

// ParsePOGO decodes a POGO payload. Records that run past the end of the data
// end the walk; only a payload without a signature is an error.
func ParsePOGO(data []byte) (*POGO, error) {
	if len(data) < 4 {
		return nil, errors.New("POGO payload is too short")
	}

	p := &POGO{Signature: binary.LittleEndian.Uint32(data)}
	p.Kind, _ = ClassifyPGO(p.Signature)

	off := 4
	for off+8 < len(data) {
		rva := binary.LittleEndian.Uint32(data[off:])
		size := binary.LittleEndian.Uint32(data[off+4:])
		off += 8

		name := extractCString(data[off:])
		if rva == 0 && size == 0 && name == "" {
			break
		}
		p.Entries = append(p.Entries, POGOEntry{RVA: rva, Size: size, Name: name})

		// Names are NUL terminated and padded to a dword boundary
		off += (len(name) + 4) &^ 3
	}

	return p, nil
}
