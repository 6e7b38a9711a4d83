package winnt

import (
	s "github.com/jtang613/gope/pkg/pe/structure"
)

// Record layouts, named after their winnt.h counterparts.
var (
	DOSHeader = s.NewFormat("IMAGE_DOS_HEADER",
		s.U16("e_magic"), s.U16("e_cblp"), s.U16("e_cp"),
		s.U16("e_crlc"), s.U16("e_cparhdr"), s.U16("e_minalloc"),
		s.U16("e_maxalloc"), s.U16("e_ss"), s.U16("e_sp"), s.U16("e_csum"),
		s.U16("e_ip"), s.U16("e_cs"), s.U16("e_lfarlc"), s.U16("e_ovno"), s.Arr(8, "e_res"),
		s.U16("e_oemid"), s.U16("e_oeminfo"), s.Arr(20, "e_res2"),
		s.U32("e_lfanew"))

	FileHeader = s.NewFormat("IMAGE_FILE_HEADER",
		s.U16("Machine"), s.U16("NumberOfSections"),
		s.U32("TimeDateStamp"), s.U32("PointerToSymbolTable"),
		s.U32("NumberOfSymbols"), s.U16("SizeOfOptionalHeader"),
		s.U16("Characteristics"))

	DataDirectory = s.NewFormat("IMAGE_DATA_DIRECTORY",
		s.U32("VirtualAddress"), s.U32("Size"))

	OptionalHeader32 = s.NewFormat("IMAGE_OPTIONAL_HEADER",
		s.U16("Magic"), s.U8("MajorLinkerVersion"),
		s.U8("MinorLinkerVersion"), s.U32("SizeOfCode"),
		s.U32("SizeOfInitializedData"), s.U32("SizeOfUninitializedData"),
		s.U32("AddressOfEntryPoint"), s.U32("BaseOfCode"), s.U32("BaseOfData"),
		s.U32("ImageBase"), s.U32("SectionAlignment"), s.U32("FileAlignment"),
		s.U16("MajorOperatingSystemVersion"), s.U16("MinorOperatingSystemVersion"),
		s.U16("MajorImageVersion"), s.U16("MinorImageVersion"),
		s.U16("MajorSubsystemVersion"), s.U16("MinorSubsystemVersion"),
		s.U32("Reserved1"), s.U32("SizeOfImage"), s.U32("SizeOfHeaders"),
		s.U32("CheckSum"), s.U16("Subsystem"), s.U16("DllCharacteristics"),
		s.U32("SizeOfStackReserve"), s.U32("SizeOfStackCommit"),
		s.U32("SizeOfHeapReserve"), s.U32("SizeOfHeapCommit"),
		s.U32("LoaderFlags"), s.U32("NumberOfRvaAndSizes"))

	OptionalHeader64 = s.NewFormat("IMAGE_OPTIONAL_HEADER64",
		s.U16("Magic"), s.U8("MajorLinkerVersion"),
		s.U8("MinorLinkerVersion"), s.U32("SizeOfCode"),
		s.U32("SizeOfInitializedData"), s.U32("SizeOfUninitializedData"),
		s.U32("AddressOfEntryPoint"), s.U32("BaseOfCode"),
		s.U64("ImageBase"), s.U32("SectionAlignment"), s.U32("FileAlignment"),
		s.U16("MajorOperatingSystemVersion"), s.U16("MinorOperatingSystemVersion"),
		s.U16("MajorImageVersion"), s.U16("MinorImageVersion"),
		s.U16("MajorSubsystemVersion"), s.U16("MinorSubsystemVersion"),
		s.U32("Reserved1"), s.U32("SizeOfImage"), s.U32("SizeOfHeaders"),
		s.U32("CheckSum"), s.U16("Subsystem"), s.U16("DllCharacteristics"),
		s.U64("SizeOfStackReserve"), s.U64("SizeOfStackCommit"),
		s.U64("SizeOfHeapReserve"), s.U64("SizeOfHeapCommit"),
		s.U32("LoaderFlags"), s.U32("NumberOfRvaAndSizes"))

	NTHeaders = s.NewFormat("IMAGE_NT_HEADERS", s.U32("Signature"))

	SectionHeader = s.NewFormat("IMAGE_SECTION_HEADER",
		s.Arr(8, "Name"), s.U32("Misc", "Misc_PhysicalAddress", "Misc_VirtualSize"),
		s.U32("VirtualAddress"), s.U32("SizeOfRawData"), s.U32("PointerToRawData"),
		s.U32("PointerToRelocations"), s.U32("PointerToLinenumbers"),
		s.U16("NumberOfRelocations"), s.U16("NumberOfLinenumbers"),
		s.U32("Characteristics"))

	DelayImportDescriptor = s.NewFormat("IMAGE_DELAY_IMPORT_DESCRIPTOR",
		s.U32("grAttrs"), s.U32("szName"), s.U32("phmod"), s.U32("pIAT"), s.U32("pINT"),
		s.U32("pBoundIAT"), s.U32("pUnloadIAT"), s.U32("dwTimeStamp"))

	ImportDescriptor = s.NewFormat("IMAGE_IMPORT_DESCRIPTOR",
		s.U32("OriginalFirstThunk", "Characteristics"),
		s.U32("TimeDateStamp"), s.U32("ForwarderChain"), s.U32("Name"), s.U32("FirstThunk"))

	ExportDirectory = s.NewFormat("IMAGE_EXPORT_DIRECTORY",
		s.U32("Characteristics"),
		s.U32("TimeDateStamp"), s.U16("MajorVersion"), s.U16("MinorVersion"), s.U32("Name"),
		s.U32("Base"), s.U32("NumberOfFunctions"), s.U32("NumberOfNames"),
		s.U32("AddressOfFunctions"), s.U32("AddressOfNames"), s.U32("AddressOfNameOrdinals"))

	ResourceDirectory = s.NewFormat("IMAGE_RESOURCE_DIRECTORY",
		s.U32("Characteristics"),
		s.U32("TimeDateStamp"), s.U16("MajorVersion"), s.U16("MinorVersion"),
		s.U16("NumberOfNamedEntries"), s.U16("NumberOfIdEntries"))

	ResourceDirectoryEntry = s.NewFormat("IMAGE_RESOURCE_DIRECTORY_ENTRY",
		s.U32("Name"), s.U32("OffsetToData"))

	ResourceDataEntry = s.NewFormat("IMAGE_RESOURCE_DATA_ENTRY",
		s.U32("OffsetToData"), s.U32("Size"), s.U32("CodePage"), s.U32("Reserved"))

	VSVersionInfo = s.NewFormat("VS_VERSIONINFO",
		s.U16("Length"), s.U16("ValueLength"), s.U16("Type"))

	VSFixedFileInfo = s.NewFormat("VS_FIXEDFILEINFO",
		s.U32("Signature"), s.U32("StrucVersion"), s.U32("FileVersionMS"), s.U32("FileVersionLS"),
		s.U32("ProductVersionMS"), s.U32("ProductVersionLS"), s.U32("FileFlagsMask"), s.U32("FileFlags"),
		s.U32("FileOS"), s.U32("FileType"), s.U32("FileSubtype"), s.U32("FileDateMS"), s.U32("FileDateLS"))

	StringFileInfo = s.NewFormat("StringFileInfo",
		s.U16("Length"), s.U16("ValueLength"), s.U16("Type"))

	StringTable = s.NewFormat("StringTable",
		s.U16("Length"), s.U16("ValueLength"), s.U16("Type"))

	String = s.NewFormat("String",
		s.U16("Length"), s.U16("ValueLength"), s.U16("Type"))

	Var = s.NewFormat("Var",
		s.U16("Length"), s.U16("ValueLength"), s.U16("Type"))

	ThunkData32 = s.NewFormat("IMAGE_THUNK_DATA",
		s.U32("ForwarderString", "Function", "Ordinal", "AddressOfData"))

	ThunkData64 = s.NewFormat("IMAGE_THUNK_DATA",
		s.U64("ForwarderString", "Function", "Ordinal", "AddressOfData"))

	DebugDirectory = s.NewFormat("IMAGE_DEBUG_DIRECTORY",
		s.U32("Characteristics"), s.U32("TimeDateStamp"), s.U16("MajorVersion"),
		s.U16("MinorVersion"), s.U32("Type"), s.U32("SizeOfData"), s.U32("AddressOfRawData"),
		s.U32("PointerToRawData"))

	BaseRelocation = s.NewFormat("IMAGE_BASE_RELOCATION",
		s.U32("VirtualAddress"), s.U32("SizeOfBlock"))

	BaseRelocationEntry = s.NewFormat("IMAGE_BASE_RELOCATION_ENTRY",
		s.U16("Data"))

	TLSDirectory32 = s.NewFormat("IMAGE_TLS_DIRECTORY",
		s.U32("StartAddressOfRawData"), s.U32("EndAddressOfRawData"),
		s.U32("AddressOfIndex"), s.U32("AddressOfCallBacks"),
		s.U32("SizeOfZeroFill"), s.U32("Characteristics"))

	TLSDirectory64 = s.NewFormat("IMAGE_TLS_DIRECTORY",
		s.U64("StartAddressOfRawData"), s.U64("EndAddressOfRawData"),
		s.U64("AddressOfIndex"), s.U64("AddressOfCallBacks"),
		s.U32("SizeOfZeroFill"), s.U32("Characteristics"))

	LoadConfigDirectory32 = s.NewFormat("IMAGE_LOAD_CONFIG_DIRECTORY",
		s.U32("Size"),
		s.U32("TimeDateStamp"),
		s.U16("MajorVersion"),
		s.U16("MinorVersion"),
		s.U32("GlobalFlagsClear"),
		s.U32("GlobalFlagsSet"),
		s.U32("CriticalSectionDefaultTimeout"),
		s.U32("DeCommitFreeBlockThreshold"),
		s.U32("DeCommitTotalFreeThreshold"),
		s.U32("LockPrefixTable"),
		s.U32("MaximumAllocationSize"),
		s.U32("VirtualMemoryThreshold"),
		s.U32("ProcessHeapFlags"),
		s.U32("ProcessAffinityMask"),
		s.U16("CSDVersion"),
		s.U16("Reserved1"),
		s.U32("EditList"),
		s.U32("SecurityCookie"),
		s.U32("SEHandlerTable"),
		s.U32("SEHandlerCount"),
		s.U32("GuardCFCheckFunctionPointer"),
		s.U32("Reserved2"),
		s.U32("GuardCFFunctionTable"),
		s.U32("GuardCFFunctionCount"),
		s.U32("GuardFlags"))

	LoadConfigDirectory64 = s.NewFormat("IMAGE_LOAD_CONFIG_DIRECTORY",
		s.U32("Size"),
		s.U32("TimeDateStamp"),
		s.U16("MajorVersion"),
		s.U16("MinorVersion"),
		s.U32("GlobalFlagsClear"),
		s.U32("GlobalFlagsSet"),
		s.U32("CriticalSectionDefaultTimeout"),
		s.U64("DeCommitFreeBlockThreshold"),
		s.U64("DeCommitTotalFreeThreshold"),
		s.U64("LockPrefixTable"),
		s.U64("MaximumAllocationSize"),
		s.U64("VirtualMemoryThreshold"),
		s.U64("ProcessAffinityMask"),
		s.U32("ProcessHeapFlags"),
		s.U16("CSDVersion"),
		s.U16("Reserved1"),
		s.U64("EditList"),
		s.U64("SecurityCookie"),
		s.U64("SEHandlerTable"),
		s.U64("SEHandlerCount"),
		s.U64("GuardCFCheckFunctionPointer"),
		s.U64("Reserved2"),
		s.U64("GuardCFFunctionTable"),
		s.U64("GuardCFFunctionCount"),
		s.U32("GuardFlags"))

	BoundImportDescriptor = s.NewFormat("IMAGE_BOUND_IMPORT_DESCRIPTOR",
		s.U32("TimeDateStamp"), s.U16("OffsetModuleName"), s.U16("NumberOfModuleForwarderRefs"))

	BoundForwarderRef = s.NewFormat("IMAGE_BOUND_FORWARDER_REF",
		s.U32("TimeDateStamp"), s.U16("OffsetModuleName"), s.U16("Reserved"))
)
