package pe

import "encoding/binary"

// checksumFieldOffset is the offset of CheckSum in both optional header
// layouts.
const checksumFieldOffset = 0x40

// GenerateChecksum computes the PE checksum of the image as Write would
// produce it.
func (f *File) GenerateChecksum() uint32 {
	data := f.Write()
	skip := (f.OptionalHeader.FileOffset() + checksumFieldOffset) / 4

	var sum uint64
	for i := 0; i*4 < len(data); i++ {
		if i == skip {
			continue
		}
		var word [4]byte
		copy(word[:], data[i*4:])
		sum += uint64(binary.LittleEndian.Uint32(word[:]))
		if sum >= 1<<32 {
			sum = sum&0xffffffff + sum>>32
		}
	}

	sum = sum&0xffff + sum>>16
	sum += sum >> 16
	sum &= 0xffff
	return uint32(sum + uint64(len(data)))
}

// VerifyChecksum reports whether the optional header CheckSum matches the
// computed one.
func (f *File) VerifyChecksum() bool {
	return f.OptionalHeader.Uint32("CheckSum") == f.GenerateChecksum()
}
