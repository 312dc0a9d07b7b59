package rpn

import "encoding/binary"

// Expr is a finalized expression: either a compile-time-known 32-bit scalar,
// or bytecode whose value only the linker can compute. PatchSize is the size
// the bytecode will have after the patch builder resolves names to IDs; the
// front-end maintains it while building so patch buffers can be sized exactly.
type Expr struct {
	known bool
	value int32

	code      []byte
	patchSize uint32
}

// Const returns a known-scalar expression.
func Const(value int32) Expr {
	return Expr{known: true, value: value}
}

// IsKnown reports whether the value is known at compile time.
func (e *Expr) IsKnown() bool { return e.known }

// Value returns the known scalar; meaningful only when IsKnown.
func (e *Expr) Value() int32 { return e.value }

// Code returns the raw (pre-rewrite) bytecode.
func (e *Expr) Code() []byte { return e.code }

// PatchSize returns the predicted size of the rewritten bytecode.
func (e *Expr) PatchSize() uint32 { return e.patchSize }

// Builder accumulates RPN bytecode for an expression the front-end could not
// fold. Operands are pushed first, operators after, mirroring evaluation
// order on the linker's stack machine.
type Builder struct {
	code      []byte
	patchSize uint32
}

// PushConst appends a known operand.
func (b *Builder) PushConst(value int32) *Builder {
	b.code = append(b.code, byte(OpConst))
	b.code = binary.LittleEndian.AppendUint32(b.code, uint32(value))
	b.patchSize += 5
	return b
}

// PushSymbol appends a reference to a named symbol.
// Rewritten to a 5-byte ID or inlined constant, hence patchSize += 5.
func (b *Builder) PushSymbol(name string) *Builder {
	b.code = append(b.code, byte(OpSymName))
	b.code = append(b.code, name...)
	b.code = append(b.code, 0)
	b.patchSize += 5
	return b
}

// PushBankSymbol appends a bank-of-symbol reference.
func (b *Builder) PushBankSymbol(name string) *Builder {
	b.code = append(b.code, byte(OpBankSymName))
	b.code = append(b.code, name...)
	b.code = append(b.code, 0)
	b.patchSize += 5
	return b
}

// PushBankSection appends a bank-of-section reference. The section name
// travels to the linker as-is, so the rewritten size equals the source size.
func (b *Builder) PushBankSection(name string) *Builder {
	b.code = append(b.code, byte(OpBankSect))
	b.code = append(b.code, name...)
	b.code = append(b.code, 0)
	b.patchSize += uint32(1 + len(name) + 1)
	return b
}

// Op appends an operand-less opcode (operators, bank(@), range checks).
func (b *Builder) Op(op Op) *Builder {
	b.code = append(b.code, byte(op))
	b.patchSize++
	return b
}

// Expr finalizes the builder into a symbolic expression.
func (b *Builder) Expr() Expr {
	return Expr{code: b.code, patchSize: b.patchSize}
}
