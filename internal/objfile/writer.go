package objfile

import (
	"errors"
	"fmt"

	"rgbobj/internal/fstack"
	"rgbobj/internal/rpn"
	"rgbobj/internal/section"
	"rgbobj/internal/symbols"
)

// ErrTooManySymbols is returned when the symbol ID counter would reach the
// all-ones sentinel.
var ErrTooManySymbols = errors.New("registered too many symbols; try splitting up your files")

// errPatchSize guards the front-end's size bookkeeping: the rewritten
// bytecode must land exactly on the predicted patch size.
var errPatchSize = errors.New("internal error: rewritten expression size mismatch")

// Env is what the writer needs from the front-end at patch-creation time:
// the current compile location and the current instruction's address.
type Env interface {
	// Location returns the active file-stack context and line number.
	Location() (fstack.NodeID, uint32)
	// PC returns the section and offset of the instruction being emitted;
	// nil when emission happens outside any section.
	PC() (*section.Section, uint32)
}

// Assertion is a link-time-checked condition: its patch's bytecode must
// evaluate to non-zero, otherwise the linker reports Message.
type Assertion struct {
	Patch   *section.Patch
	Message string
}

// Writer owns all object-emission state for exactly one compilation:
// the provenance registry, the output symbol list, and the assertion list.
// It is not safe for concurrent use; ID allocation is strictly sequential.
type Writer struct {
	dest string

	tree     *fstack.Tree
	nodes    *fstack.Registry
	syms     *symbols.Table
	sections *section.List
	env      Env

	objSymbols []*symbols.Symbol // registration order = object-file ID order
	assertions []*Assertion      // creation order; emitted most-recent-first
}

// NewWriter creates a writer over the module's front-end state.
func NewWriter(tree *fstack.Tree, syms *symbols.Table, sections *section.List, env Env) *Writer {
	return &Writer{
		dest:     "-",
		tree:     tree,
		nodes:    fstack.NewRegistry(tree),
		syms:     syms,
		sections: sections,
		env:      env,
	}
}

// SetDest sets the output destination; "-" means standard output.
func (w *Writer) SetDest(path string) {
	w.dest = path
}

// Dest returns the configured destination.
func (w *Writer) Dest() string {
	return w.dest
}

// registerSymbol appends sym to the output list and assigns the next ID.
// The symbol's provenance node is registered along the way, since the
// symbol record will reference it.
func (w *Writer) registerSymbol(sym *symbols.Symbol) error {
	if err := w.nodes.Register(sym.Src); err != nil {
		return err
	}
	next := symbols.ID(len(w.objSymbols))
	if next == symbols.NoID {
		return ErrTooManySymbols
	}
	sym.SetObjID(next)
	w.objSymbols = append(w.objSymbols, sym)
	return nil
}

// symbolID returns sym's object-file ID, assigning one on first use.
// The PC pseudo-symbol never gets an ID; reaching it here is a caller bug.
func (w *Writer) symbolID(sym *symbols.Symbol) (symbols.ID, error) {
	if sym.IsPC() {
		return symbols.NoID, fmt.Errorf("internal error: ID requested for the PC pseudo-symbol")
	}
	if !sym.ObjID().IsValid() {
		if err := w.registerSymbol(sym); err != nil {
			return symbols.NoID, err
		}
	}
	return sym.ObjID(), nil
}

// newPatch builds the rewritten relocation record for expr. Every patch is
// assumed to end up in the file, so the source node is registered eagerly.
func (w *Writer) newPatch(typ uint8, expr *rpn.Expr, ofs uint32) (*section.Patch, error) {
	node, line := w.env.Location()
	if err := w.nodes.Register(node); err != nil {
		return nil, err
	}
	pcSect, pcOfs := w.env.PC()

	patch := &section.Patch{
		Src:       node,
		Line:      line,
		Offset:    ofs,
		PCSection: pcSect,
		PCOffset:  pcOfs,
		Type:      typ,
	}

	if expr.IsKnown() {
		// Known value: 5 bytes, no need to store the symbolic form.
		patch.RPN = constRPN(expr.Value())
	} else {
		code, err := w.rewriteRPN(expr.Code())
		if err != nil {
			return nil, err
		}
		if uint32(len(code)) != expr.PatchSize() {
			return nil, fmt.Errorf("%w: got %d bytes, expected %d",
				errPatchSize, len(code), expr.PatchSize())
		}
		patch.RPN = code
	}
	return patch, nil
}

// CreatePatch records a deferred value at ofs in the current section.
func (w *Writer) CreatePatch(typ PatchType, expr *rpn.Expr, ofs uint32) error {
	patch, err := w.newPatch(uint8(typ), expr, ofs)
	if err != nil {
		return err
	}
	w.sections.Current().AddPatch(patch)
	return nil
}

// CreateAssert records a link-time assertion. Unlike patches, a failure here
// is reported to the caller so the front-end can fail just the directive.
func (w *Writer) CreateAssert(kind AssertKind, expr *rpn.Expr, message string, ofs uint32) error {
	patch, err := w.newPatch(uint8(kind), expr, ofs)
	if err != nil {
		return err
	}
	w.assertions = append(w.assertions, &Assertion{Patch: patch, Message: message})
	return nil
}

// constRPN encodes a known scalar as the canonical 5-byte constant push.
func constRPN(value int32) []byte {
	v := uint32(value)
	return []byte{byte(rpn.OpConst), byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
