package pe

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

var imphashExtensions = map[string]bool{"ocx": true, "sys": true, "dll": true}

// ImpHash returns the import hash: the MD5 of the lower-cased "module.symbol"
// list. Symbols imported by ordinal appear as ord<N>. Images without imports
// hash to "".
func (f *File) ImpHash() string {
	if len(f.Imports) == 0 {
		return ""
	}
	var parts []string
	for _, d := range f.Imports {
		lib := strings.ToLower(d.DLL)
		if i := strings.LastIndexByte(lib, '.'); i >= 0 && imphashExtensions[lib[i+1:]] {
			lib = lib[:i]
		}
		for _, imp := range d.Imports {
			name := imp.Name
			if name == "" {
				if imp.Ordinal == nil {
					continue
				}
				name = fmt.Sprintf("ord%d", *imp.Ordinal)
			}
			parts = append(parts, lib+"."+strings.ToLower(name))
		}
	}
	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
