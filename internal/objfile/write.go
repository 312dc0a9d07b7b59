package objfile

import (
	"fmt"
	"io"
	"os"

	"fortio.org/safecast"

	"rgbobj/internal/fstack"
	"rgbobj/internal/section"
	"rgbobj/internal/symbols"
)

// Write emits the object file to the configured destination. Called exactly
// once per compilation, after the whole module has been assembled.
//
// The table order is load-bearing: the linker resolves node, symbol and
// section references purely by position.
func (w *Writer) Write() error {
	var out io.Writer
	if w.dest == "-" {
		out = os.Stdout
	} else {
		f, err := os.Create(w.dest)
		if err != nil {
			return fmt.Errorf("couldn't write file %q: %w", w.dest, err)
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}

	if err := w.writeTo(out); err != nil {
		return fmt.Errorf("writing %q: %w", w.dest, err)
	}
	if f, ok := out.(*os.File); ok && w.dest != "-" {
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %q: %w", w.dest, err)
		}
	}
	return nil
}

// writeTo serializes the module to an arbitrary stream (tests use buffers).
func (w *Writer) writeTo(out io.Writer) error {
	// Exported symbols must appear even when nothing referenced them.
	var sweepErr error
	w.syms.ForEach(func(sym *symbols.Symbol) {
		if sweepErr == nil && sym.Exported && !sym.ObjID().IsValid() {
			sweepErr = w.registerSymbol(sym)
		}
	})
	if sweepErr != nil {
		return sweepErr
	}

	enc := newEncoder(out)

	enc.raw([]byte(Magic))
	enc.long(Revision)

	nbSymbols, err := safecast.Conv[uint32](len(w.objSymbols))
	if err != nil {
		panic(fmt.Errorf("symbol count overflow: %w", err))
	}
	enc.long(nbSymbols)
	enc.long(w.sections.Count())

	enc.long(w.nodes.Count())
	if err := w.nodes.Walk(func(node *fstack.Node) error {
		w.writeNode(enc, node)
		return nil
	}); err != nil {
		return err
	}

	for _, sym := range w.objSymbols {
		if err := w.writeSymbol(enc, sym); err != nil {
			return err
		}
	}

	for _, sect := range w.sections.All() {
		if err := w.writeSection(enc, sect); err != nil {
			return err
		}
	}

	nbAsserts, err := safecast.Conv[uint32](len(w.assertions))
	if err != nil {
		panic(fmt.Errorf("assertion count overflow: %w", err))
	}
	enc.long(nbAsserts)
	for i := len(w.assertions) - 1; i >= 0; i-- {
		assert := w.assertions[i]
		if err := w.writePatch(enc, assert.Patch); err != nil {
			return err
		}
		enc.str(assert.Message)
	}

	return enc.flush()
}

func (w *Writer) writeNode(enc *encoder, node *fstack.Node) {
	if node.Parent.IsValid() {
		enc.long(uint32(w.tree.Node(node.Parent).ObjID()))
	} else {
		enc.long(uint32(fstack.NoObjID))
	}
	enc.long(node.Line)
	enc.byte(uint8(node.Kind))
	if node.Kind != fstack.NodeRept {
		enc.str(node.Name)
	} else {
		depth, err := safecast.Conv[uint32](len(node.Iters))
		if err != nil {
			panic(fmt.Errorf("rept depth overflow: %w", err))
		}
		enc.long(depth)
		// Iters are stored deepest level first; the file wants them the
		// other way around.
		for i := len(node.Iters); i > 0; i-- {
			enc.long(node.Iters[i-1])
		}
	}
}

func (w *Writer) writeSymbol(enc *encoder, sym *symbols.Symbol) error {
	enc.str(sym.Name)
	if !sym.IsDefined() {
		enc.byte(SymImport)
		return nil
	}

	srcID := fstack.NoObjID
	if sym.Src.IsValid() {
		srcID = w.tree.Node(sym.Src).ObjID()
	}
	if !srcID.IsValid() {
		return fmt.Errorf("internal error: symbol %q written with unregistered source node", sym.Name)
	}

	if sym.Exported {
		enc.byte(SymExport)
	} else {
		enc.byte(SymLocal)
	}
	enc.long(uint32(srcID))
	enc.long(sym.Line)
	sectID, err := w.sections.IDOf(sym.Section)
	if err != nil {
		return err
	}
	enc.long(sectID)
	enc.long(uint32(sym.Value))
	return nil
}

func (w *Writer) writeSection(enc *encoder, sect *section.Section) error {
	enc.str(sect.Name)
	enc.long(sect.Size)

	typ := uint8(sect.Kind)
	if sect.Modifier == section.ModifierUnion {
		typ |= 1 << 7
	}
	if sect.Modifier == section.ModifierFragment {
		typ |= 1 << 6
	}
	enc.byte(typ)

	enc.long(sect.Org)
	enc.long(sect.Bank)
	enc.byte(sect.Align)
	enc.long(sect.AlignOfs)

	if !sect.Kind.HasData() {
		return nil
	}

	if uint32(len(sect.Data)) != sect.Size {
		return fmt.Errorf("internal error: section %q has %d data bytes but size %d",
			sect.Name, len(sect.Data), sect.Size)
	}
	enc.raw(sect.Data)
	patches := sect.Patches()
	nbPatches, err := safecast.Conv[uint32](len(patches))
	if err != nil {
		panic(fmt.Errorf("patch count overflow: %w", err))
	}
	enc.long(nbPatches)
	for i := len(patches) - 1; i >= 0; i-- {
		if err := w.writePatch(enc, patches[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePatch(enc *encoder, patch *section.Patch) error {
	srcID := w.tree.Node(patch.Src).ObjID()
	if !srcID.IsValid() {
		return fmt.Errorf("internal error: patch written with unregistered source node")
	}

	enc.long(uint32(srcID))
	enc.long(patch.Line)
	enc.long(patch.Offset)
	pcID, err := w.sections.IDOf(patch.PCSection)
	if err != nil {
		return err
	}
	enc.long(pcID)
	enc.long(patch.PCOffset)
	enc.byte(patch.Type)
	rpnSize, err := safecast.Conv[uint32](len(patch.RPN))
	if err != nil {
		panic(fmt.Errorf("rpn size overflow: %w", err))
	}
	enc.long(rpnSize)
	enc.raw(patch.RPN)
	return nil
}
