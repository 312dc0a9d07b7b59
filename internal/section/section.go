// Package section models the contiguous code/data regions of one module and
// the ordered list the object writer serializes them from.
package section

// Kind is a section's memory region. The values are wire tags.
type Kind uint8

const (
	KindWRAM0 Kind = iota
	KindVRAM
	KindROMX
	KindROM0
	KindHRAM
	KindWRAMX
	KindSRAM
	KindOAM
)

// HasData reports whether sections of this kind carry literal bytes in the
// object file. RAM-like kinds only reserve space.
func (k Kind) HasData() bool {
	return k == KindROM0 || k == KindROMX
}

func (k Kind) String() string {
	switch k {
	case KindWRAM0:
		return "WRAM0"
	case KindVRAM:
		return "VRAM"
	case KindROMX:
		return "ROMX"
	case KindROM0:
		return "ROM0"
	case KindHRAM:
		return "HRAM"
	case KindWRAMX:
		return "WRAMX"
	case KindSRAM:
		return "SRAM"
	case KindOAM:
		return "OAM"
	default:
		return "invalid"
	}
}

// Modifier controls how same-named sections combine at link time.
type Modifier uint8

const (
	ModifierNone Modifier = iota
	ModifierUnion
	ModifierFragment
)

func (m Modifier) String() string {
	switch m {
	case ModifierNone:
		return ""
	case ModifierUnion:
		return "union"
	case ModifierFragment:
		return "fragment"
	default:
		return "invalid"
	}
}

// NoOrg and NoBank mark floating placement: the linker decides.
const (
	NoOrg  uint32 = 0xFFFFFFFF
	NoBank uint32 = 0xFFFFFFFF
)

// Section is one named region accumulated by the front-end.
// Data is non-nil only for kinds with HasData; Size covers both cases.
type Section struct {
	Name     string
	Size     uint32
	Kind     Kind
	Modifier Modifier
	Org      uint32 // NoOrg if floating
	Bank     uint32 // NoBank if unconstrained
	Align    uint8  // alignment as a power of two
	AlignOfs uint32
	Data     []byte

	patches []*Patch
}

// HasFixedOrg reports whether the section's placement is pinned, which makes
// label addresses inside it compile-time constants.
func (s *Section) HasFixedOrg() bool {
	return s.Org != NoOrg
}
