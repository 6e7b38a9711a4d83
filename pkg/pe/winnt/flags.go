package winnt

import "fmt"

// Flag is a named bit (or enumeration value) from a winnt.h table.
type Flag struct {
	Name  string
	Value uint64
}

// FlagNames returns, in table order, the names of every flag whose bits
// intersect v.
func FlagNames(table []Flag, v uint64) []string {
	var names []string
	for _, f := range table {
		if f.Value&v != 0 {
			names = append(names, f.Name)
		}
	}
	return names
}

// Lookup returns the first name in table whose value equals v.
func Lookup(table []Flag, v uint64) (string, bool) {
	for _, f := range table {
		if f.Value == v {
			return f.Name, true
		}
	}
	return "", false
}

// ImageCharacteristics are the FILE_HEADER Characteristics bits.
var ImageCharacteristics = []Flag{
	{"IMAGE_FILE_RELOCS_STRIPPED", 0x0001},
	{"IMAGE_FILE_EXECUTABLE_IMAGE", 0x0002},
	{"IMAGE_FILE_LINE_NUMS_STRIPPED", 0x0004},
	{"IMAGE_FILE_LOCAL_SYMS_STRIPPED", 0x0008},
	{"IMAGE_FILE_AGGRESIVE_WS_TRIM", 0x0010},
	{"IMAGE_FILE_LARGE_ADDRESS_AWARE", 0x0020},
	{"IMAGE_FILE_16BIT_MACHINE", 0x0040},
	{"IMAGE_FILE_BYTES_REVERSED_LO", 0x0080},
	{"IMAGE_FILE_32BIT_MACHINE", 0x0100},
	{"IMAGE_FILE_DEBUG_STRIPPED", 0x0200},
	{"IMAGE_FILE_REMOVABLE_RUN_FROM_SWAP", 0x0400},
	{"IMAGE_FILE_NET_RUN_FROM_SWAP", 0x0800},
	{"IMAGE_FILE_SYSTEM", 0x1000},
	{"IMAGE_FILE_DLL", 0x2000},
	{"IMAGE_FILE_UP_SYSTEM_ONLY", 0x4000},
	{"IMAGE_FILE_BYTES_REVERSED_HI", 0x8000},
}

// SectionCharacteristics are the section header Characteristics bits.
// The zero-valued and overlapping alignment entries are kept so names match
// the SDK, even though the zero entry never matches.
var SectionCharacteristics = []Flag{
	{"IMAGE_SCN_TYPE_REG", 0x00000000},
	{"IMAGE_SCN_TYPE_DSECT", 0x00000001},
	{"IMAGE_SCN_TYPE_NOLOAD", 0x00000002},
	{"IMAGE_SCN_TYPE_GROUP", 0x00000004},
	{"IMAGE_SCN_TYPE_NO_PAD", 0x00000008},
	{"IMAGE_SCN_TYPE_COPY", 0x00000010},
	{"IMAGE_SCN_CNT_CODE", 0x00000020},
	{"IMAGE_SCN_CNT_INITIALIZED_DATA", 0x00000040},
	{"IMAGE_SCN_CNT_UNINITIALIZED_DATA", 0x00000080},
	{"IMAGE_SCN_LNK_OTHER", 0x00000100},
	{"IMAGE_SCN_LNK_INFO", 0x00000200},
	{"IMAGE_SCN_LNK_OVER", 0x00000400},
	{"IMAGE_SCN_LNK_REMOVE", 0x00000800},
	{"IMAGE_SCN_LNK_COMDAT", 0x00001000},
	{"IMAGE_SCN_MEM_PROTECTED", 0x00004000},
	{"IMAGE_SCN_NO_DEFER_SPEC_EXC", 0x00004000},
	{"IMAGE_SCN_GPREL", 0x00008000},
	{"IMAGE_SCN_MEM_FARDATA", 0x00008000},
	{"IMAGE_SCN_MEM_SYSHEAP", 0x00010000},
	{"IMAGE_SCN_MEM_PURGEABLE", 0x00020000},
	{"IMAGE_SCN_MEM_16BIT", 0x00020000},
	{"IMAGE_SCN_MEM_LOCKED", 0x00040000},
	{"IMAGE_SCN_MEM_PRELOAD", 0x00080000},
	{"IMAGE_SCN_ALIGN_1BYTES", 0x00100000},
	{"IMAGE_SCN_ALIGN_2BYTES", 0x00200000},
	{"IMAGE_SCN_ALIGN_4BYTES", 0x00300000},
	{"IMAGE_SCN_ALIGN_8BYTES", 0x00400000},
	{"IMAGE_SCN_ALIGN_16BYTES", 0x00500000},
	{"IMAGE_SCN_ALIGN_32BYTES", 0x00600000},
	{"IMAGE_SCN_ALIGN_64BYTES", 0x00700000},
	{"IMAGE_SCN_ALIGN_128BYTES", 0x00800000},
	{"IMAGE_SCN_ALIGN_256BYTES", 0x00900000},
	{"IMAGE_SCN_ALIGN_512BYTES", 0x00A00000},
	{"IMAGE_SCN_ALIGN_1024BYTES", 0x00B00000},
	{"IMAGE_SCN_ALIGN_2048BYTES", 0x00C00000},
	{"IMAGE_SCN_ALIGN_4096BYTES", 0x00D00000},
	{"IMAGE_SCN_ALIGN_8192BYTES", 0x00E00000},
	{"IMAGE_SCN_ALIGN_MASK", 0x00F00000},
	{"IMAGE_SCN_LNK_NRELOC_OVFL", 0x01000000},
	{"IMAGE_SCN_MEM_DISCARDABLE", 0x02000000},
	{"IMAGE_SCN_MEM_NOT_CACHED", 0x04000000},
	{"IMAGE_SCN_MEM_NOT_PAGED", 0x08000000},
	{"IMAGE_SCN_MEM_SHARED", 0x10000000},
	{"IMAGE_SCN_MEM_EXECUTE", 0x20000000},
	{"IMAGE_SCN_MEM_READ", 0x40000000},
	{"IMAGE_SCN_MEM_WRITE", 0x80000000},
}

// DLLCharacteristics are the OPTIONAL_HEADER DllCharacteristics bits.
var DLLCharacteristics = []Flag{
	{"IMAGE_LIBRARY_PROCESS_INIT", 0x0001},
	{"IMAGE_LIBRARY_PROCESS_TERM", 0x0002},
	{"IMAGE_LIBRARY_THREAD_INIT", 0x0004},
	{"IMAGE_LIBRARY_THREAD_TERM", 0x0008},
	{"IMAGE_DLLCHARACTERISTICS_HIGH_ENTROPY_VA", 0x0020},
	{"IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE", 0x0040},
	{"IMAGE_DLLCHARACTERISTICS_FORCE_INTEGRITY", 0x0080},
	{"IMAGE_DLLCHARACTERISTICS_NX_COMPAT", 0x0100},
	{"IMAGE_DLLCHARACTERISTICS_NO_ISOLATION", 0x0200},
	{"IMAGE_DLLCHARACTERISTICS_NO_SEH", 0x0400},
	{"IMAGE_DLLCHARACTERISTICS_NO_BIND", 0x0800},
	{"IMAGE_DLLCHARACTERISTICS_APPCONTAINER", 0x1000},
	{"IMAGE_DLLCHARACTERISTICS_WDM_DRIVER", 0x2000},
	{"IMAGE_DLLCHARACTERISTICS_GUARD_CF", 0x4000},
	{"IMAGE_DLLCHARACTERISTICS_TERMINAL_SERVER_AWARE", 0x8000},
}

// DebugTypes names the debug directory entry types.
var DebugTypes = []Flag{
	{"IMAGE_DEBUG_TYPE_UNKNOWN", 0},
	{"IMAGE_DEBUG_TYPE_COFF", 1},
	{"IMAGE_DEBUG_TYPE_CODEVIEW", 2},
	{"IMAGE_DEBUG_TYPE_FPO", 3},
	{"IMAGE_DEBUG_TYPE_MISC", 4},
	{"IMAGE_DEBUG_TYPE_EXCEPTION", 5},
	{"IMAGE_DEBUG_TYPE_FIXUP", 6},
	{"IMAGE_DEBUG_TYPE_OMAP_TO_SRC", 7},
	{"IMAGE_DEBUG_TYPE_OMAP_FROM_SRC", 8},
	{"IMAGE_DEBUG_TYPE_BORLAND", 9},
	{"IMAGE_DEBUG_TYPE_RESERVED10", 10},
	{"IMAGE_DEBUG_TYPE_CLSID", 11},
	{"IMAGE_DEBUG_TYPE_VC_FEATURE", 12},
	{"IMAGE_DEBUG_TYPE_POGO", 13},
	{"IMAGE_DEBUG_TYPE_ILTCG", 14},
	{"IMAGE_DEBUG_TYPE_MPX", 15},
	{"IMAGE_DEBUG_TYPE_REPRO", 16},
	{"IMAGE_DEBUG_TYPE_EX_DLLCHARACTERISTICS", 20},
}

// SubsystemTypes names the OPTIONAL_HEADER Subsystem values.
var SubsystemTypes = []Flag{
	{"IMAGE_SUBSYSTEM_UNKNOWN", 0},
	{"IMAGE_SUBSYSTEM_NATIVE", 1},
	{"IMAGE_SUBSYSTEM_WINDOWS_GUI", 2},
	{"IMAGE_SUBSYSTEM_WINDOWS_CUI", 3},
	{"IMAGE_SUBSYSTEM_OS2_CUI", 5},
	{"IMAGE_SUBSYSTEM_POSIX_CUI", 7},
	{"IMAGE_SUBSYSTEM_NATIVE_WINDOWS", 8},
	{"IMAGE_SUBSYSTEM_WINDOWS_CE_GUI", 9},
	{"IMAGE_SUBSYSTEM_EFI_APPLICATION", 10},
	{"IMAGE_SUBSYSTEM_EFI_BOOT_SERVICE_DRIVER", 11},
	{"IMAGE_SUBSYSTEM_EFI_RUNTIME_DRIVER", 12},
	{"IMAGE_SUBSYSTEM_EFI_ROM", 13},
	{"IMAGE_SUBSYSTEM_XBOX", 14},
	{"IMAGE_SUBSYSTEM_WINDOWS_BOOT_APPLICATION", 16},
}

// MachineTypes names the FILE_HEADER Machine values.
var MachineTypes = []Flag{
	{"IMAGE_FILE_MACHINE_UNKNOWN", 0},
	{"IMAGE_FILE_MACHINE_I386", 0x014c},
	{"IMAGE_FILE_MACHINE_R3000", 0x0162},
	{"IMAGE_FILE_MACHINE_R4000", 0x0166},
	{"IMAGE_FILE_MACHINE_R10000", 0x0168},
	{"IMAGE_FILE_MACHINE_WCEMIPSV2", 0x0169},
	{"IMAGE_FILE_MACHINE_ALPHA", 0x0184},
	{"IMAGE_FILE_MACHINE_SH3", 0x01a2},
	{"IMAGE_FILE_MACHINE_SH3DSP", 0x01a3},
	{"IMAGE_FILE_MACHINE_SH3E", 0x01a4},
	{"IMAGE_FILE_MACHINE_SH4", 0x01a6},
	{"IMAGE_FILE_MACHINE_SH5", 0x01a8},
	{"IMAGE_FILE_MACHINE_ARM", 0x01c0},
	{"IMAGE_FILE_MACHINE_THUMB", 0x01c2},
	{"IMAGE_FILE_MACHINE_ARMNT", 0x01c4},
	{"IMAGE_FILE_MACHINE_AM33", 0x01d3},
	{"IMAGE_FILE_MACHINE_POWERPC", 0x01f0},
	{"IMAGE_FILE_MACHINE_POWERPCFP", 0x01f1},
	{"IMAGE_FILE_MACHINE_IA64", 0x0200},
	{"IMAGE_FILE_MACHINE_MIPS16", 0x0266},
	{"IMAGE_FILE_MACHINE_ALPHA64", 0x0284},
	{"IMAGE_FILE_MACHINE_AXP64", 0x0284},
	{"IMAGE_FILE_MACHINE_MIPSFPU", 0x0366},
	{"IMAGE_FILE_MACHINE_MIPSFPU16", 0x0466},
	{"IMAGE_FILE_MACHINE_TRICORE", 0x0520},
	{"IMAGE_FILE_MACHINE_CEF", 0x0cef},
	{"IMAGE_FILE_MACHINE_EBC", 0x0ebc},
	{"IMAGE_FILE_MACHINE_AMD64", 0x8664},
	{"IMAGE_FILE_MACHINE_M32R", 0x9041},
	{"IMAGE_FILE_MACHINE_ARM64", 0xaa64},
	{"IMAGE_FILE_MACHINE_CEE", 0xc0ee},
}

// RelocationTypes names the base relocation entry types.
var RelocationTypes = []Flag{
	{"IMAGE_REL_BASED_ABSOLUTE", 0},
	{"IMAGE_REL_BASED_HIGH", 1},
	{"IMAGE_REL_BASED_LOW", 2},
	{"IMAGE_REL_BASED_HIGHLOW", 3},
	{"IMAGE_REL_BASED_HIGHADJ", 4},
	{"IMAGE_REL_BASED_MIPS_JMPADDR", 5},
	{"IMAGE_REL_BASED_SECTION", 6},
	{"IMAGE_REL_BASED_REL", 7},
	{"IMAGE_REL_BASED_MIPS_JMPADDR16", 9},
	{"IMAGE_REL_BASED_IA64_IMM64", 9},
	{"IMAGE_REL_BASED_DIR64", 10},
	{"IMAGE_REL_BASED_HIGH3ADJ", 11},
}

// ResourceTypes names the predefined resource type ids.
var ResourceTypes = []Flag{
	{"RT_CURSOR", 1},
	{"RT_BITMAP", 2},
	{"RT_ICON", 3},
	{"RT_MENU", 4},
	{"RT_DIALOG", 5},
	{"RT_STRING", 6},
	{"RT_FONTDIR", 7},
	{"RT_FONT", 8},
	{"RT_ACCELERATOR", 9},
	{"RT_RCDATA", 10},
	{"RT_MESSAGETABLE", 11},
	{"RT_GROUP_CURSOR", 12},
	{"RT_GROUP_ICON", 14},
	{"RT_VERSION", 16},
	{"RT_DLGINCLUDE", 17},
	{"RT_PLUGPLAY", 19},
	{"RT_VXD", 20},
	{"RT_ANICURSOR", 21},
	{"RT_ANIICON", 22},
	{"RT_HTML", 23},
	{"RT_MANIFEST", 24},
}

// MachineTypeName returns the short human-readable name for a machine type.
func MachineTypeName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM, MachineARMNT:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	}
	if name, ok := Lookup(MachineTypes, uint64(machine)); ok {
		return name
	}
	return fmt.Sprintf("0x%04x", machine)
}

// DebugTypeName returns the name of a debug entry type.
func DebugTypeName(t uint32) string {
	if name, ok := Lookup(DebugTypes, uint64(t)); ok {
		return name
	}
	return fmt.Sprintf("IMAGE_DEBUG_TYPE_%d", t)
}

// RelocationTypeName returns the name of a base relocation type.
func RelocationTypeName(t uint8) string {
	if name, ok := Lookup(RelocationTypes, uint64(t)); ok {
		return name
	}
	return fmt.Sprintf("IMAGE_REL_BASED_%d", t)
}

// ResourceTypeName returns the name of a predefined resource type id.
func ResourceTypeName(id uint32) (string, bool) {
	return Lookup(ResourceTypes, uint64(id))
}

// SubsystemName returns the name of a subsystem value.
func SubsystemName(v uint16) string {
	if name, ok := Lookup(SubsystemTypes, uint64(v)); ok {
		return name
	}
	return fmt.Sprintf("0x%x", v)
}
