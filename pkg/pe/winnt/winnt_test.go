package winnt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jtang613/gope/pkg/pe/structure"
)

func TestFormatSizes(t *testing.T) {
	tests := []struct {
		format *structure.Format
		size   int
	}{
		{DOSHeader, 64},
		{FileHeader, 20},
		{DataDirectory, 8},
		{OptionalHeader32, 96},
		{OptionalHeader64, 112},
		{SectionHeader, 40},
		{ImportDescriptor, 20},
		{DelayImportDescriptor, 32},
		{ExportDirectory, 40},
		{ResourceDirectory, 16},
		{ResourceDirectoryEntry, 8},
		{ResourceDataEntry, 16},
		{VSFixedFileInfo, 52},
		{DebugDirectory, 28},
		{BaseRelocation, 8},
		{TLSDirectory32, 24},
		{TLSDirectory64, 40},
		{LoadConfigDirectory32, 92},
		{LoadConfigDirectory64, 148},
		{BoundImportDescriptor, 8},
		{BoundForwarderRef, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.format.Size(), tt.format.Name())
	}
}

func TestDirectoryNames(t *testing.T) {
	name, ok := DirectoryName(DirectoryEntryDebug)
	assert.True(t, ok)
	assert.Equal(t, "IMAGE_DIRECTORY_ENTRY_DEBUG", name)

	_, ok = DirectoryName(16)
	assert.False(t, ok)

	idx, ok := DirectoryIndex("BOUND_IMPORT")
	assert.True(t, ok)
	assert.Equal(t, DirectoryEntryBoundImport, idx)

	idx, ok = DirectoryIndex("IMAGE_DIRECTORY_ENTRY_TLS")
	assert.True(t, ok)
	assert.Equal(t, DirectoryEntryTLS, idx)
}

func TestFlagNames(t *testing.T) {
	names := FlagNames(ImageCharacteristics, FileExecutableImage|FileDLL)
	assert.Equal(t, []string{"IMAGE_FILE_EXECUTABLE_IMAGE", "IMAGE_FILE_DLL"}, names)

	names = FlagNames(SectionCharacteristics, SectionMemExecute|SectionMemRead)
	assert.Equal(t, []string{"IMAGE_SCN_MEM_EXECUTE", "IMAGE_SCN_MEM_READ"}, names)

	assert.Empty(t, FlagNames(DLLCharacteristics, 0))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "x86", MachineTypeName(MachineI386))
	assert.Equal(t, "x64", MachineTypeName(MachineAMD64))
	assert.Equal(t, "IMAGE_FILE_MACHINE_R4000", MachineTypeName(0x0166))
	assert.Equal(t, "0x1234", MachineTypeName(0x1234))

	assert.Equal(t, "IMAGE_DEBUG_TYPE_POGO", DebugTypeName(DebugTypePOGO))
	assert.Equal(t, "IMAGE_DEBUG_TYPE_99", DebugTypeName(99))
	assert.Equal(t, "IMAGE_REL_BASED_HIGHLOW", RelocationTypeName(RelBasedHighLow))
	assert.Equal(t, "IMAGE_SUBSYSTEM_WINDOWS_CUI", SubsystemName(3))

	name, ok := ResourceTypeName(RTVersion)
	assert.True(t, ok)
	assert.Equal(t, "RT_VERSION", name)
}
