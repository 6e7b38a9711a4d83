// Package winnt holds the constants, flag tables and record layouts of the
// PE/COFF format as declared by the Windows SDK header winnt.h.
package winnt

// Header signatures
const (
	DOSSignature   = 0x5A4D // MZ
	DOSSignatureZM = 0x4D5A // ZM, not a PE file
	OS2Signature   = 0x454E // NE
	OS2SignatureLE = 0x454C // LE
	VXDSignature   = 0x454C
	LXSignature    = 0x584C
	TESignature    = 0x5A56 // VZ, terse executables
	NTSignature    = 0x00004550
)

// Optional header magic values
const (
	OptionalHeaderMagicPE     = 0x10b
	OptionalHeaderMagicPEPlus = 0x20b
)

// Import thunk ordinal flags
const (
	OrdinalFlag32 = 0x80000000
	OrdinalFlag64 = 0x8000000000000000
)

// NumberOfDirectoryEntries is the number of well-known data directories.
const NumberOfDirectoryEntries = 16

// Data directory indices
const (
	DirectoryEntryExport = iota
	DirectoryEntryImport
	DirectoryEntryResource
	DirectoryEntryException
	DirectoryEntrySecurity
	DirectoryEntryBaseReloc
	DirectoryEntryDebug
	DirectoryEntryCopyright
	DirectoryEntryGlobalPtr
	DirectoryEntryTLS
	DirectoryEntryLoadConfig
	DirectoryEntryBoundImport
	DirectoryEntryIAT
	DirectoryEntryDelayImport
	DirectoryEntryCOMDescriptor
	DirectoryEntryReserved
)

var directoryNames = [NumberOfDirectoryEntries]string{
	"IMAGE_DIRECTORY_ENTRY_EXPORT",
	"IMAGE_DIRECTORY_ENTRY_IMPORT",
	"IMAGE_DIRECTORY_ENTRY_RESOURCE",
	"IMAGE_DIRECTORY_ENTRY_EXCEPTION",
	"IMAGE_DIRECTORY_ENTRY_SECURITY",
	"IMAGE_DIRECTORY_ENTRY_BASERELOC",
	"IMAGE_DIRECTORY_ENTRY_DEBUG",
	"IMAGE_DIRECTORY_ENTRY_COPYRIGHT",
	"IMAGE_DIRECTORY_ENTRY_GLOBALPTR",
	"IMAGE_DIRECTORY_ENTRY_TLS",
	"IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG",
	"IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT",
	"IMAGE_DIRECTORY_ENTRY_IAT",
	"IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT",
	"IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR",
	"IMAGE_DIRECTORY_ENTRY_RESERVED",
}

// DirectoryName returns the name of a data directory index.
func DirectoryName(index int) (string, bool) {
	if index < 0 || index >= NumberOfDirectoryEntries {
		return "", false
	}
	return directoryNames[index], true
}

// DirectoryIndex returns the index of a data directory by name, accepting
// both "IMAGE_DIRECTORY_ENTRY_IMPORT" and the short form "IMPORT".
func DirectoryIndex(name string) (int, bool) {
	for i, n := range directoryNames {
		if n == name || n == "IMAGE_DIRECTORY_ENTRY_"+name {
			return i, true
		}
	}
	return -1, false
}

// Debug directory types
const (
	DebugTypeUnknown    = 0
	DebugTypeCOFF       = 1
	DebugTypeCodeView   = 2
	DebugTypeFPO        = 3
	DebugTypeMisc       = 4
	DebugTypeException  = 5
	DebugTypeFixup      = 6
	DebugTypeBorland    = 9
	DebugTypeCLSID      = 11
	DebugTypeVCFeature  = 12
	DebugTypePOGO       = 13
	DebugTypeILTCG      = 14
	DebugTypeMPX        = 15
	DebugTypeRepro      = 16
	DebugTypeExDllChars = 20
)

// Base relocation types
const (
	RelBasedAbsolute = 0
	RelBasedHigh     = 1
	RelBasedLow      = 2
	RelBasedHighLow  = 3
	RelBasedHighAdj  = 4
	RelBasedDir64    = 10
)

// Resource types
const (
	RTCursor       = 1
	RTBitmap       = 2
	RTIcon         = 3
	RTMenu         = 4
	RTDialog       = 5
	RTString       = 6
	RTFontDir      = 7
	RTFont         = 8
	RTAccelerator  = 9
	RTRCData       = 10
	RTMessageTable = 11
	RTGroupCursor  = 12
	RTGroupIcon    = 14
	RTVersion      = 16
	RTManifest     = 24
)

// Machine types
const (
	MachineUnknown = 0x0000
	MachineI386    = 0x014c
	MachineARM     = 0x01c0
	MachineARMNT   = 0x01c4
	MachineIA64    = 0x0200
	MachineAMD64   = 0x8664
	MachineARM64   = 0xaa64
)

// File header characteristics
const (
	FileRelocsStripped    = 0x0001
	FileExecutableImage   = 0x0002
	FileLargeAddressAware = 0x0020
	File32BitMachine      = 0x0100
	FileSystem            = 0x1000
	FileDLL               = 0x2000
)

// Section characteristics
const (
	SectionCntCode              = 0x00000020
	SectionCntInitializedData   = 0x00000040
	SectionCntUninitializedData = 0x00000080
	SectionMemDiscardable       = 0x02000000
	SectionMemShared            = 0x10000000
	SectionMemExecute           = 0x20000000
	SectionMemRead              = 0x40000000
	SectionMemWrite             = 0x80000000
)
