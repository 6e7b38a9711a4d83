package pe

import (
	"os"

	"github.com/pkg/errors"
)

// Write returns the image bytes with every decoded structure packed back at
// its file offset and modified version strings re-encoded. An unmodified
// File writes back its input.
func (f *File) Write() []byte {
	out := append([]byte(nil), f.data...)
	for _, st := range f.structures {
		off := st.FileOffset()
		if off < 0 || off >= len(out) {
			continue
		}
		copy(out[off:], st.Pack())
	}
	f.writeVersionStrings(out)
	return out
}

// WriteFile writes the output of Write to path.
func (f *File) WriteFile(path string) error {
	if err := os.WriteFile(path, f.Write(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// MergeModifiedSectionData copies the data set through Section.SetData into
// the image bytes.
func (f *File) MergeModifiedSectionData() {
	for _, s := range f.Sections {
		if s.modified == nil {
			continue
		}
		start := int(s.adjustedPointer())
		end := start + int(s.SizeOfRawData())
		if start >= len(f.data) || end >= len(f.data) {
			continue
		}
		merged := make([]byte, 0, len(f.data)-(end-start)+len(s.modified))
		merged = append(merged, f.data[:start]...)
		merged = append(merged, s.modified...)
		merged = append(merged, f.data[end:]...)
		f.data = merged
		f.header = f.data[:len(f.header)]
		s.modified = nil
	}
}
