package symbols

import (
	"fmt"

	"rgbobj/internal/fstack"
	"rgbobj/internal/section"
)

// PCName is the spelling of the current-address pseudo-symbol.
const PCName = "@"

// Table is the module-wide symbol table. Iteration order is definition
// order, which keeps the writer's export sweep deterministic.
type Table struct {
	syms   []*Symbol
	byName map[string]*Symbol
	pc     *Symbol
}

// NewTable creates an empty table with the PC pseudo-symbol preinstalled.
func NewTable() *Table {
	t := &Table{
		byName: make(map[string]*Symbol),
		pc:     &Symbol{Name: PCName, Kind: KindPC, Src: fstack.NoNodeID},
	}
	return t
}

func (t *Table) add(sym *Symbol) (*Symbol, error) {
	if _, ok := t.byName[sym.Name]; ok {
		return nil, fmt.Errorf("symbol %q already defined", sym.Name)
	}
	t.syms = append(t.syms, sym)
	t.byName[sym.Name] = sym
	return sym, nil
}

// AddLabel defines a label at the given offset inside sect.
func (t *Table) AddLabel(name string, sect *section.Section, offset int32, src fstack.NodeID, line uint32) (*Symbol, error) {
	return t.add(&Symbol{
		Name:    name,
		Kind:    KindLabel,
		Src:     src,
		Line:    line,
		Section: sect,
		Value:   offset,
	})
}

// AddConst defines a numeric constant.
func (t *Table) AddConst(name string, value int32, src fstack.NodeID, line uint32) (*Symbol, error) {
	return t.add(&Symbol{
		Name:  name,
		Kind:  KindConst,
		Src:   src,
		Line:  line,
		Value: value,
	})
}

// AddImport records a reference to a symbol defined in another module.
func (t *Table) AddImport(name string) (*Symbol, error) {
	return t.add(&Symbol{Name: name, Kind: KindImport, Src: fstack.NoNodeID})
}

// Find returns the symbol with the given name, or nil. PCName resolves to
// the pseudo-symbol.
func (t *Table) Find(name string) *Symbol {
	if name == PCName {
		return t.pc
	}
	return t.byName[name]
}

// PC returns the current-address pseudo-symbol.
func (t *Table) PC() *Symbol {
	return t.pc
}

// SetPC points the pseudo-symbol at the current emission position so that
// PC references fold to constants when the section's placement is fixed.
func (t *Table) SetPC(sect *section.Section, offset int32) {
	t.pc.Section = sect
	t.pc.Value = offset
}

// Export marks a defined symbol for export.
func (t *Table) Export(name string) error {
	sym := t.byName[name]
	if sym == nil {
		return fmt.Errorf("cannot export undefined symbol %q", name)
	}
	sym.Exported = true
	return nil
}

// ForEach visits every symbol in definition order. The PC pseudo-symbol is
// not part of the table and is never visited.
func (t *Table) ForEach(visit func(*Symbol)) {
	for _, sym := range t.syms {
		visit(sym)
	}
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.syms)
}
