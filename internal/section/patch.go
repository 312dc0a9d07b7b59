package section

import "rgbobj/internal/fstack"

// Patch is one deferred value the linker must compute and poke into the
// owning section's data. It is created together with its rewritten bytecode
// and never mutated afterwards.
type Patch struct {
	Src       fstack.NodeID
	Line      uint32
	Offset    uint32 // byte offset inside the owning section
	PCSection *Section
	PCOffset  uint32
	Type      uint8
	RPN       []byte
}

// Patches returns the section's patches in creation order.
func (s *Section) Patches() []*Patch {
	return s.patches
}

// AddPatch appends a patch. The writer emits patches most-recent-first, so
// creation order here is the reverse of wire order.
func (s *Section) AddPatch(p *Patch) {
	s.patches = append(s.patches, p)
}
