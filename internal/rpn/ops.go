// Package rpn models the deferred-expression bytecode recorded in patches.
// Expressions whose value depends on link-time layout are kept as RPN
// bytecode; the linker evaluates them with a small stack machine.
package rpn

// Op is one bytecode opcode. The values are wire tags shared with the linker.
type Op byte

const (
	OpAdd Op = 0x00
	OpSub Op = 0x01
	OpMul Op = 0x02
	OpDiv Op = 0x03
	OpMod Op = 0x04
	OpNeg Op = 0x05

	OpOr  Op = 0x10
	OpAnd Op = 0x11
	OpXor Op = 0x12
	OpNot Op = 0x13

	OpLogicAnd Op = 0x21
	OpLogicOr  Op = 0x22
	OpLogicNot Op = 0x23

	OpEq Op = 0x30
	OpNe Op = 0x31
	OpGt Op = 0x32
	OpLt Op = 0x33
	OpGe Op = 0x34
	OpLe Op = 0x35

	OpShl Op = 0x40
	OpShr Op = 0x41

	// Name-carrying opcodes: the operand is a NUL-terminated symbol or
	// section name, replaced by an integer form when the patch is built.
	OpBankSymName Op = 0x50
	OpBankSect    Op = 0x51
	OpBankSelf    Op = 0x52

	OpHramCheck Op = 0x60
	OpRstCheck  Op = 0x61

	// OpConst is followed by a 4-byte little-endian value.
	OpConst Op = 0x80
	// OpSymName is followed by a NUL-terminated symbol name; rewritten to
	// OpSymID (same tag, 4-byte ID operand) or inlined as OpConst.
	OpSymName Op = 0x81
)

// The rewritten forms reuse the source tags; the distinction is whether the
// bytecode has been through the patch builder yet.
const (
	OpSymID     = OpSymName
	OpBankSymID = OpBankSymName
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpNeg:
		return "neg"
	case OpOr:
		return "|"
	case OpAnd:
		return "&"
	case OpXor:
		return "^"
	case OpNot:
		return "~"
	case OpLogicAnd:
		return "&&"
	case OpLogicOr:
		return "||"
	case OpLogicNot:
		return "!"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGe:
		return ">="
	case OpLe:
		return "<="
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpBankSymName:
		return "bank(sym)"
	case OpBankSect:
		return "bank(sect)"
	case OpBankSelf:
		return "bank(@)"
	case OpHramCheck:
		return "hram"
	case OpRstCheck:
		return "rst"
	case OpConst:
		return "const"
	case OpSymName:
		return "sym"
	default:
		return "invalid"
	}
}
