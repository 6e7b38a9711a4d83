// Package codeview decodes the payloads referenced by PE debug directory
// entries: CodeView PDB references, MISC records and POGO tables.
package codeview

import (
	"bytes"
	"encoding/binary"
	"fmt"

	s "github.com/jtang613/gope/pkg/pe/structure"
)

// CodeView signatures
const (
	SignatureRSDS = "RSDS" // PDB 7.0
	SignatureNB10 = "NB10" // PDB 2.0
)

// Record layouts without their variable-length tails.
var (
	PDB70 = s.NewFormat("CV_INFO_PDB70",
		s.U32("CvSignature"),
		s.U32("Signature_Data1"),
		s.U16("Signature_Data2"),
		s.U16("Signature_Data3"),
		s.U16("Signature_Data4"),
		s.U16("Signature_Data5"),
		s.U32("Signature_Data6"),
		s.U32("Age"))

	PDB20 = s.NewFormat("CV_INFO_PDB20",
		s.U32("CvHeaderSignature"),
		s.U32("CvHeaderOffset"),
		s.U32("Signature"),
		s.U32("Age"))

	DebugMisc = s.NewFormat("IMAGE_DEBUG_MISC",
		s.U32("DataType"),
		s.U32("Length"),
		s.U8("Unicode"),
		s.U8("Reserved1"),
		s.U16("Reserved2"))
)

// withTail extends a layout with a trailing byte array when the declared
// payload size leaves room for one.
func withTail(f *s.Format, size int, name string) *s.Format {
	if n := size - f.Size(); n > 0 {
		return f.With(s.Arr(n, name))
	}
	return f
}

// DecodeCodeView decodes a CODEVIEW debug payload. Unknown signatures yield
// a nil structure and no error.
func DecodeCodeView(data []byte, fileOffset int) (*s.Structure, error) {
	if len(data) < 4 {
		return nil, nil
	}
	switch string(data[:4]) {
	case SignatureRSDS:
		return withTail(PDB70, len(data), "PdbFileName").Unpack(data, fileOffset)
	case SignatureNB10:
		return withTail(PDB20, len(data), "PdbFileName").Unpack(data, fileOffset)
	}
	return nil, nil
}

// DecodeMisc decodes an IMAGE_DEBUG_MISC payload. The trailing data is only
// trusted when the Unicode flag holds a boolean.
func DecodeMisc(data []byte, fileOffset int) (*s.Structure, error) {
	partial, err := DebugMisc.Unpack(data, fileOffset)
	if err != nil {
		return nil, err
	}
	if u := partial.Uint("Unicode"); u != 0 && u != 1 {
		return nil, nil
	}
	return withTail(DebugMisc, len(data), "Data").Unpack(data, fileOffset)
}

// GUID rebuilds the 16 raw GUID bytes of a CV_INFO_PDB70 record.
func GUID(cv *s.Structure) [16]byte {
	var g [16]byte
	binary.LittleEndian.PutUint32(g[0:4], cv.Uint32("Signature_Data1"))
	binary.LittleEndian.PutUint16(g[4:6], cv.Uint16("Signature_Data2"))
	binary.LittleEndian.PutUint16(g[6:8], cv.Uint16("Signature_Data3"))
	binary.LittleEndian.PutUint16(g[8:10], cv.Uint16("Signature_Data4"))
	binary.LittleEndian.PutUint16(g[10:12], cv.Uint16("Signature_Data5"))
	binary.LittleEndian.PutUint32(g[12:16], cv.Uint32("Signature_Data6"))
	return g
}

// GUIDString returns the GUID in the compact form symbol servers use.
func GUIDString(g [16]byte) string {
	return fmt.Sprintf("%08X%04X%04X%02X%02X%02X%02X%02X%02X%02X%02X",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8], g[9], g[10], g[11],
		g[12], g[13], g[14], g[15])
}

// SymbolKey returns the GUID followed by the age in hex, the directory name
// a symbol server stores the matching PDB under.
func SymbolKey(cv *s.Structure) string {
	return fmt.Sprintf("%s%X", GUIDString(GUID(cv)), cv.Uint32("Age"))
}

// PdbFileName returns the referenced PDB path, or "" when absent.
func PdbFileName(cv *s.Structure) string {
	return extractCString(cv.Bytes("PdbFileName"))
}

// extractCString extracts a null-terminated string from bytes.
func extractCString(data []byte) string {
	idx := bytes.IndexByte(data, 0)
	if idx == -1 {
		return string(data)
	}
	return string(data[:idx])
}
