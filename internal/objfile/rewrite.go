package objfile

import (
	"errors"
	"fmt"

	"rgbobj/internal/rpn"
	"rgbobj/internal/symbols"
)

// ErrBadRPN reports malformed expression bytecode: a truncated operand or a
// name without its NUL terminator. The front-end never produces either, so
// hitting this means the buffer was corrupted upstream.
var ErrBadRPN = errors.New("malformed rpn bytecode")

// rewriteRPN turns front-end bytecode into its self-contained object-file
// form: symbol names become IDs (or inlined constants), section names pass
// through for the linker to resolve.
func (w *Writer) rewriteRPN(code []byte) ([]byte, error) {
	out := make([]byte, 0, len(code))

	for ofs := 0; ofs < len(code); {
		op := rpn.Op(code[ofs])
		ofs++

		switch op {
		case rpn.OpConst:
			if ofs+4 > len(code) {
				return nil, fmt.Errorf("%w: truncated constant", ErrBadRPN)
			}
			out = append(out, byte(rpn.OpConst))
			out = append(out, code[ofs:ofs+4]...)
			ofs += 4

		case rpn.OpSymName:
			name, n, err := scanName(code[ofs:])
			if err != nil {
				return nil, err
			}
			ofs += n
			sym := w.syms.Find(name)
			if sym == nil {
				return nil, fmt.Errorf("internal error: expression references unknown symbol %q", name)
			}
			var value uint32
			if sym.IsConstant() {
				// Inline symbols whose value is already known.
				out = append(out, byte(rpn.OpConst))
				value = uint32(sym.ConstantValue())
			} else {
				out = append(out, byte(rpn.OpSymID))
				if sym.IsPC() {
					// The linker spells PC as the all-ones ID.
					value = uint32(symbols.NoID)
				} else {
					id, err := w.symbolID(sym)
					if err != nil {
						return nil, err
					}
					value = uint32(id)
				}
			}
			out = appendLong(out, value)

		case rpn.OpBankSymName:
			name, n, err := scanName(code[ofs:])
			if err != nil {
				return nil, err
			}
			ofs += n
			sym := w.syms.Find(name)
			if sym == nil {
				return nil, fmt.Errorf("internal error: expression references unknown symbol %q", name)
			}
			// Bank is a link-time property even for constant symbols,
			// so this form is never inlined.
			id, err := w.symbolID(sym)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(rpn.OpBankSymID))
			out = appendLong(out, uint32(id))

		case rpn.OpBankSect:
			name, n, err := scanName(code[ofs:])
			if err != nil {
				return nil, err
			}
			ofs += n
			// Section identity is the linker's to resolve; the name
			// travels as-is.
			out = append(out, byte(rpn.OpBankSect))
			out = append(out, name...)
			out = append(out, 0)

		default:
			out = append(out, byte(op))
		}
	}
	return out, nil
}

// scanName reads a NUL-terminated name embedded in bytecode and returns the
// name plus the number of bytes consumed (terminator included). A missing
// terminator fails closed instead of running off the buffer.
func scanName(code []byte) (string, int, error) {
	for i, b := range code {
		if b == 0 {
			return string(code[:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated name", ErrBadRPN)
}

func appendLong(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
