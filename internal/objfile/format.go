// Package objfile serializes a compiled module (sections, symbols, patches,
// assertions, file-stack provenance) into the object file the linker
// consumes, and reads such files back for inspection tooling.
//
// All multi-byte integers are little-endian; strings are NUL-terminated.
// Cross references between tables are positional integer IDs, so the table
// order in write.go is part of the format.
package objfile

// Magic opens every object file. The trailing digit is the format version.
const Magic = "RGB9"

// Revision is bumped on compatible-reader format changes within a version.
const Revision uint32 = 5

// Symbol kind tags as stored in the symbol table.
const (
	SymLocal  uint8 = 0
	SymImport uint8 = 1
	SymExport uint8 = 2
)

// PatchType says how many bytes the linker pokes at the patch offset.
type PatchType uint8

const (
	PatchByte PatchType = iota
	PatchWord
	PatchLong
	PatchJr
)

func (t PatchType) String() string {
	switch t {
	case PatchByte:
		return "byte"
	case PatchWord:
		return "word"
	case PatchLong:
		return "long"
	case PatchJr:
		return "jr"
	default:
		return "invalid"
	}
}

// AssertKind is stored in the patch-type byte of assertion patches and
// selects the linker's reaction when the condition evaluates to zero.
type AssertKind uint8

const (
	AssertWarn AssertKind = iota
	AssertError
	AssertFatal
)

func (k AssertKind) String() string {
	switch k {
	case AssertWarn:
		return "warn"
	case AssertError:
		return "error"
	case AssertFatal:
		return "fatal"
	default:
		return "invalid"
	}
}
