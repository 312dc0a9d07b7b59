package objfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"rgbobj/internal/rpn"
)

// wire builds expected byte sequences in the object format's primitives.
type wire struct {
	bytes.Buffer
}

func (w *wire) long(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *wire) str(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

func TestGoldenSingleSectionLayout(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	expr := rpn.Const(42)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	var want wire
	want.WriteString(Magic)
	want.long(Revision)
	want.long(0) // symbols
	want.long(1) // sections
	want.long(1) // nodes
	want.long(0xFFFFFFFF)
	want.long(0)
	want.WriteByte(1) // file node
	want.str("main.asm")
	want.str("code")
	want.long(1)      // size
	want.WriteByte(3) // ROM0, no modifier bits
	want.long(0xFFFFFFFF)
	want.long(0xFFFFFFFF)
	want.WriteByte(0)
	want.long(0)
	want.WriteByte(0) // data
	want.long(1)      // patches
	want.long(0)      // src node
	want.long(1)      // line
	want.long(0)      // offset
	want.long(0)      // pc section
	want.long(0)      // pc offset
	want.WriteByte(0) // byte patch
	want.long(5)
	want.Write([]byte{byte(rpn.OpConst), 0x2A, 0x00, 0x00, 0x00})
	want.long(0) // assertions

	got := m.encode(t)
	if !bytes.Equal(got, want.Bytes()) {
		t.Errorf("wire layout mismatch\ngot  % X\nwant % X", got, want.Bytes())
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("ELF\x7f....")))
	if !errors.Is(err, ErrNotObjectFile) {
		t.Errorf("err = %v, want ErrNotObjectFile", err)
	}
}

func TestReadRejectsWrongRevision(t *testing.T) {
	var buf wire
	buf.WriteString(Magic)
	buf.long(Revision + 1)
	buf.long(0)
	buf.long(0)
	buf.long(0)
	buf.long(0)

	_, err := Read(bytes.NewReader(buf.Bytes()))
	if !errors.Is(err, ErrNotObjectFile) {
		t.Errorf("err = %v, want ErrNotObjectFile", err)
	}
}

func TestReadReportsTruncation(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)
	expr := rpn.Const(7)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	full := m.encode(t)

	// Любой префикс должен давать ErrTruncated, а не панику или мусор
	for cut := 0; cut < len(full); cut += 7 {
		_, err := Read(bytes.NewReader(full[:cut]))
		if err == nil {
			t.Fatalf("prefix of %d bytes decoded without error", cut)
		}
		if cut >= len(Magic)+4 && !errors.Is(err, ErrTruncated) {
			t.Errorf("prefix %d: err = %v, want ErrTruncated", cut, err)
		}
	}
}

func TestReadSurvivesHostileCounts(t *testing.T) {
	// Каждый буфер объявляет огромную таблицу, не подкрепляя её байтами;
	// декодер обязан вернуть ErrTruncated, а не выделить память под счётчик.
	header := func() *wire {
		var b wire
		b.WriteString(Magic)
		b.long(Revision)
		return &b
	}

	nodeCount := header()
	nodeCount.long(0) // symbols
	nodeCount.long(0) // sections
	nodeCount.long(0xFFFFFFFE)

	reptDepth := header()
	reptDepth.long(0)
	reptDepth.long(0)
	reptDepth.long(1)
	reptDepth.long(0xFFFFFFFF) // no parent
	reptDepth.long(0)          // line
	reptDepth.WriteByte(0)     // rept node
	reptDepth.long(0xFFFFFFFE) // depth

	dataSize := header()
	dataSize.long(0)
	dataSize.long(1)
	dataSize.long(0) // nodes
	dataSize.str("code")
	dataSize.long(0xFFFFFFF0) // size
	dataSize.WriteByte(3)     // ROM0
	dataSize.long(0xFFFFFFFF)
	dataSize.long(0xFFFFFFFF)
	dataSize.WriteByte(0)
	dataSize.long(0)

	for name, buf := range map[string]*wire{
		"node count": nodeCount,
		"rept depth": reptDepth,
		"data size":  dataSize,
	} {
		_, err := Read(bytes.NewReader(buf.Bytes()))
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("%s: err = %v, want ErrTruncated", name, err)
		}
	}
}

func TestValidateCatchesDanglingRefs(t *testing.T) {
	obj := &Object{
		Revision: Revision,
		Symbols: []SymbolRec{
			{Name: "x", Type: SymLocal, Src: 0, SectionID: noRef},
		},
	}
	if err := obj.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("symbol with out-of-range node validated: %v", err)
	}

	obj = &Object{
		Revision: Revision,
		Nodes:    []NodeRec{{Parent: noRef, Kind: 1, Name: "a.asm"}},
		Sections: []SectionRec{{
			Name: "code",
			Kind: 3,
			Patches: []PatchRec{{
				Src:         0,
				PCSectionID: noRef,
				RPN:         []byte{byte(rpn.OpSymID), 9, 0, 0, 0},
			}},
		}},
	}
	if err := obj.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("rpn with out-of-range symbol ID validated: %v", err)
	}
}

func TestValidateWalksUnknownOpcode(t *testing.T) {
	obj := &Object{
		Revision: Revision,
		Nodes:    []NodeRec{{Parent: noRef, Kind: 1, Name: "a.asm"}},
		Assertions: []AssertRec{{
			Patch:   PatchRec{Src: 0, PCSectionID: noRef, RPN: []byte{0x7F}},
			Message: "bad",
		}},
	}
	if err := obj.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown opcode validated: %v", err)
	}
}

func TestDisasmRPN(t *testing.T) {
	obj := &Object{
		Symbols: []SymbolRec{{Name: "Entry", Type: SymLocal}},
	}
	code := []byte{
		byte(rpn.OpSymID), 0, 0, 0, 0,
		byte(rpn.OpConst), 1, 0, 0, 0,
		byte(rpn.OpAdd),
	}
	lines, err := obj.DisasmRPN(code)
	if err != nil {
		t.Fatalf("DisasmRPN: %v", err)
	}
	want := []string{"sym Entry#0", "const 1", "+"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}
