package section

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// NoID marks the absence of a section reference in the object file.
const NoID uint32 = 0xFFFFFFFF

// ErrUnknownSection reports a reference to a section that is not part of the
// module list. This is a programming-error class failure: it means a dangling
// or foreign reference, never bad user input.
var ErrUnknownSection = errors.New("unknown section")

// List owns every section of one compilation, in creation order. The object
// file identifies sections by their ordinal here, so order is load-bearing.
type List struct {
	sections []*Section
	current  *Section
}

// NewList creates an empty section list.
func NewList() *List {
	return &List{}
}

// Add appends a section and makes it current.
func (l *List) Add(sect *Section) {
	l.sections = append(l.sections, sect)
	l.current = sect
}

// Current returns the section being assembled into, or nil.
func (l *List) Current() *Section {
	return l.current
}

// SetCurrent switches the active section (SECTION directive re-entry).
func (l *List) SetCurrent(sect *Section) {
	l.current = sect
}

// Len returns the number of sections.
func (l *List) Len() int {
	return len(l.sections)
}

// Count returns the section count as the wire-format integer.
func (l *List) Count() uint32 {
	count, err := safecast.Conv[uint32](len(l.sections))
	if err != nil {
		panic(fmt.Errorf("section count overflow: %w", err))
	}
	return count
}

// All returns the sections in creation order. Callers must not modify it.
func (l *List) All() []*Section {
	return l.sections
}

// IndexOf resolves a section's ordinal by linear scan, so treat it as O(n).
func (l *List) IndexOf(sect *Section) (uint32, error) {
	for i, s := range l.sections {
		if s == sect {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSection, sect.Name)
}

// IDOf is IndexOf for optional references: a nil section maps to NoID.
func (l *List) IDOf(sect *Section) (uint32, error) {
	if sect == nil {
		return NoID, nil
	}
	return l.IndexOf(sect)
}
