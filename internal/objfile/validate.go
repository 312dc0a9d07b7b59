package objfile

import (
	"errors"
	"fmt"

	"rgbobj/internal/fstack"
	"rgbobj/internal/rpn"
	"rgbobj/internal/section"
)

// ErrInvalid reports a decoded object whose cross references or bytecode do
// not hold together.
var ErrInvalid = errors.New("invalid object")

const noRef uint32 = 0xFFFFFFFF

// Validate checks every cross-referential ID and every patch's bytecode.
// Read guarantees structural well-formedness; this guards the semantic
// layer a linker would rely on.
func (o *Object) Validate() error {
	nbNodes := uint32(len(o.Nodes))
	nbSections := uint32(len(o.Sections))

	for id, node := range o.Nodes {
		if node.Parent != noRef && node.Parent >= nbNodes {
			return fmt.Errorf("%w: node #%d parent %d out of range", ErrInvalid, id, node.Parent)
		}
		if node.Kind > fstack.NodeMacro {
			return fmt.Errorf("%w: node #%d has unknown kind %d", ErrInvalid, id, node.Kind)
		}
	}

	for id, sym := range o.Symbols {
		if sym.Type > SymExport {
			return fmt.Errorf("%w: symbol %q has unknown type %d", ErrInvalid, sym.Name, sym.Type)
		}
		if sym.Type == SymImport {
			continue
		}
		if sym.Src >= nbNodes {
			return fmt.Errorf("%w: symbol #%d source node %d out of range", ErrInvalid, id, sym.Src)
		}
		if sym.SectionID != noRef && sym.SectionID >= nbSections {
			return fmt.Errorf("%w: symbol %q section %d out of range", ErrInvalid, sym.Name, sym.SectionID)
		}
	}

	for id, sect := range o.Sections {
		if sect.Kind > section.KindOAM {
			return fmt.Errorf("%w: section %q has unknown kind %d", ErrInvalid, sect.Name, sect.Kind)
		}
		for i := range sect.Patches {
			if err := o.validatePatch(&sect.Patches[i], fmt.Sprintf("section #%d patch #%d", id, i)); err != nil {
				return err
			}
		}
	}

	for i := range o.Assertions {
		assert := &o.Assertions[i]
		if AssertKind(assert.Patch.Type) > AssertFatal {
			return fmt.Errorf("%w: assertion #%d has unknown kind %d", ErrInvalid, i, assert.Patch.Type)
		}
		if err := o.validatePatchRefs(&assert.Patch, fmt.Sprintf("assertion #%d", i)); err != nil {
			return err
		}
	}

	return nil
}

func (o *Object) validatePatch(patch *PatchRec, what string) error {
	if PatchType(patch.Type) > PatchJr {
		return fmt.Errorf("%w: %s has unknown type %d", ErrInvalid, what, patch.Type)
	}
	return o.validatePatchRefs(patch, what)
}

func (o *Object) validatePatchRefs(patch *PatchRec, what string) error {
	if patch.Src >= uint32(len(o.Nodes)) {
		return fmt.Errorf("%w: %s source node %d out of range", ErrInvalid, what, patch.Src)
	}
	if patch.PCSectionID != noRef && patch.PCSectionID >= uint32(len(o.Sections)) {
		return fmt.Errorf("%w: %s pc section %d out of range", ErrInvalid, what, patch.PCSectionID)
	}
	return o.walkRPN(patch.RPN, what, nil)
}

// walkRPN steps through rewritten bytecode, bounds-checking operands and
// symbol IDs. visit, when non-nil, gets one rendered line per instruction.
func (o *Object) walkRPN(code []byte, what string, visit func(string)) error {
	for ofs := 0; ofs < len(code); {
		op := rpn.Op(code[ofs])
		ofs++

		switch op {
		case rpn.OpConst, rpn.OpSymID, rpn.OpBankSymID:
			if ofs+4 > len(code) {
				return fmt.Errorf("%w: %s rpn truncated after %v", ErrInvalid, what, op)
			}
			v := uint32(code[ofs]) | uint32(code[ofs+1])<<8 | uint32(code[ofs+2])<<16 | uint32(code[ofs+3])<<24
			ofs += 4
			switch op {
			case rpn.OpConst:
				if visit != nil {
					visit(fmt.Sprintf("const %d", int32(v)))
				}
			default:
				if v != noRef && v >= uint32(len(o.Symbols)) {
					return fmt.Errorf("%w: %s rpn references symbol %d out of range", ErrInvalid, what, v)
				}
				if visit != nil {
					visit(o.describeSymRef(op, v))
				}
			}

		case rpn.OpBankSect:
			name, n, err := scanName(code[ofs:])
			if err != nil {
				return fmt.Errorf("%w: %s rpn has unterminated section name", ErrInvalid, what)
			}
			ofs += n
			if visit != nil {
				visit(fmt.Sprintf("bank(%q)", name))
			}

		case rpn.OpAdd, rpn.OpSub, rpn.OpMul, rpn.OpDiv, rpn.OpMod, rpn.OpNeg,
			rpn.OpOr, rpn.OpAnd, rpn.OpXor, rpn.OpNot,
			rpn.OpLogicAnd, rpn.OpLogicOr, rpn.OpLogicNot,
			rpn.OpEq, rpn.OpNe, rpn.OpGt, rpn.OpLt, rpn.OpGe, rpn.OpLe,
			rpn.OpShl, rpn.OpShr, rpn.OpBankSelf, rpn.OpHramCheck, rpn.OpRstCheck:
			if visit != nil {
				visit(op.String())
			}

		default:
			return fmt.Errorf("%w: %s rpn has unknown opcode 0x%02X", ErrInvalid, what, byte(op))
		}
	}
	return nil
}

// describeSymRef renders a symbol reference, resolving the name when the ID
// is in range.
func (o *Object) describeSymRef(op rpn.Op, id uint32) string {
	name := "@"
	if id != noRef {
		name = o.Symbols[id].Name
	}
	if op == rpn.OpBankSymID {
		return fmt.Sprintf("bank(%s#%d)", name, id)
	}
	if id == noRef {
		return "sym @"
	}
	return fmt.Sprintf("sym %s#%d", name, id)
}

// DisasmRPN renders a patch's bytecode one instruction per line, for the
// inspection CLI. The bytecode is validated along the way.
func (o *Object) DisasmRPN(code []byte) ([]string, error) {
	var lines []string
	if err := o.walkRPN(code, "expression", func(line string) {
		lines = append(lines, line)
	}); err != nil {
		return nil, err
	}
	return lines, nil
}
