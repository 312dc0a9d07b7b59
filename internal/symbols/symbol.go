// Package symbols holds the assembler's named values and the per-module
// table the object writer sweeps when emitting the symbol table.
package symbols

import (
	"rgbobj/internal/fstack"
	"rgbobj/internal/section"
)

// ID is a symbol's identifier inside the written object file.
type ID uint32

// NoID marks a symbol that has not been assigned an object-file ID.
// On the wire it also encodes the PC pseudo-symbol in RPN references.
const NoID ID = 0xFFFFFFFF

// IsValid reports whether the ID refers to a registered symbol.
func (id ID) IsValid() bool { return id != NoID }

// Kind classifies a symbol.
type Kind uint8

const (
	KindLabel Kind = iota
	KindConst
	KindImport
	KindPC
)

func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "label"
	case KindConst:
		return "const"
	case KindImport:
		return "import"
	case KindPC:
		return "pc"
	default:
		return "invalid"
	}
}

// Symbol is one named value. Value holds the numeric value for constants and
// the section-relative offset for labels; it is meaningless for imports.
type Symbol struct {
	Name     string
	Kind     Kind
	Exported bool
	Src      fstack.NodeID
	Line     uint32
	Section  *section.Section
	Value    int32

	objID uint32 // assigned ID plus one, so the zero value reads as unassigned
}

// IsDefined reports whether the symbol has a value in this module.
func (s *Symbol) IsDefined() bool {
	return s.Kind != KindImport
}

// IsPC reports whether this is the current-address pseudo-symbol.
func (s *Symbol) IsPC() bool {
	return s.Kind == KindPC
}

// IsConstant reports whether the value is known at compile time: true for
// numeric constants, and for labels only once their section has a fixed org.
func (s *Symbol) IsConstant() bool {
	switch s.Kind {
	case KindConst:
		return true
	case KindLabel, KindPC:
		return s.Section != nil && s.Section.HasFixedOrg()
	default:
		return false
	}
}

// ConstantValue returns the compile-time value; call only when IsConstant.
func (s *Symbol) ConstantValue() int32 {
	if s.Kind == KindConst {
		return s.Value
	}
	return s.Value + int32(s.Section.Org)
}

// ObjID returns the assigned object-file ID, or NoID.
func (s *Symbol) ObjID() ID {
	if s.objID == 0 {
		return NoID
	}
	return ID(s.objID - 1)
}

// SetObjID assigns the object-file ID; done once by the writer's allocator.
func (s *Symbol) SetObjID(id ID) { s.objID = uint32(id) + 1 }
