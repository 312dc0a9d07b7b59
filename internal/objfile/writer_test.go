package objfile

import (
	"bytes"
	"testing"

	"rgbobj/internal/fstack"
	"rgbobj/internal/rpn"
	"rgbobj/internal/section"
	"rgbobj/internal/symbols"
)

// testEnv is a canned front-end: fixed compile location and PC.
type testEnv struct {
	node   fstack.NodeID
	line   uint32
	pcSect *section.Section
	pcOfs  uint32
}

func (e *testEnv) Location() (fstack.NodeID, uint32) { return e.node, e.line }
func (e *testEnv) PC() (*section.Section, uint32)    { return e.pcSect, e.pcOfs }

// module bundles the front-end state a writer needs; tests build on it.
type module struct {
	tree  *fstack.Tree
	syms  *symbols.Table
	sects *section.List
	env   *testEnv
	w     *Writer
}

func newModule(t *testing.T) *module {
	t.Helper()
	m := &module{
		tree:  fstack.NewTree(),
		syms:  symbols.NewTable(),
		sects: section.NewList(),
	}
	root := m.tree.AddFile("main.asm", fstack.NoNodeID, 0)
	m.env = &testEnv{node: root, line: 1}
	m.w = NewWriter(m.tree, m.syms, m.sects, m.env)
	return m
}

func (m *module) addCode(name string, size uint32) *section.Section {
	sect := &section.Section{
		Name: name,
		Size: size,
		Kind: section.KindROM0,
		Org:  section.NoOrg,
		Bank: section.NoBank,
		Data: make([]byte, size),
	}
	m.sects.Add(sect)
	m.env.pcSect = sect
	return sect
}

func (m *module) encode(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := m.w.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	return buf.Bytes()
}

func (m *module) roundTrip(t *testing.T) *Object {
	t.Helper()
	obj, err := Read(bytes.NewReader(m.encode(t)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := obj.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return obj
}

func TestEmptyModule(t *testing.T) {
	m := newModule(t)
	obj := m.roundTrip(t)

	if obj.Revision != Revision {
		t.Errorf("revision = %d, want %d", obj.Revision, Revision)
	}
	if len(obj.Nodes) != 0 || len(obj.Symbols) != 0 || len(obj.Sections) != 0 || len(obj.Assertions) != 0 {
		t.Errorf("empty module decoded as %d/%d/%d/%d records",
			len(obj.Nodes), len(obj.Symbols), len(obj.Sections), len(obj.Assertions))
	}
}

func TestKnownValuePatchIsFiveBytes(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	expr := rpn.Const(42)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	if len(obj.Sections) != 1 || len(obj.Sections[0].Patches) != 1 {
		t.Fatalf("expected 1 section with 1 patch")
	}
	got := obj.Sections[0].Patches[0].RPN
	want := []byte{byte(rpn.OpConst), 0x2A, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("rpn = % X, want % X", got, want)
	}
}

func TestConstantSymbolInlines(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 2)

	if _, err := m.syms.AddConst("SCREEN_WIDTH", 160, m.env.node, 2); err != nil {
		t.Fatal(err)
	}

	var b rpn.Builder
	expr := b.PushSymbol("SCREEN_WIDTH").Expr()
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	got := obj.Sections[0].Patches[0].RPN
	want := []byte{byte(rpn.OpConst), 160, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("rpn = % X, want % X", got, want)
	}
	// Инлайн константы не должен регистрировать символ
	if len(obj.Symbols) != 0 {
		t.Errorf("constant inlining registered %d symbols", len(obj.Symbols))
	}
}

func TestFloatingLabelGetsID(t *testing.T) {
	m := newModule(t)
	sect := m.addCode("code", 2)

	if _, err := m.syms.AddLabel("Entry", sect, 0, m.env.node, 3); err != nil {
		t.Fatal(err)
	}

	var b rpn.Builder
	expr := b.PushSymbol("Entry").Expr()
	if err := m.w.CreatePatch(PatchWord, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	if len(obj.Symbols) != 1 {
		t.Fatalf("expected 1 registered symbol, got %d", len(obj.Symbols))
	}
	sym := obj.Symbols[0]
	if sym.Name != "Entry" || sym.Type != SymLocal {
		t.Errorf("symbol = %q type %d, want \"Entry\" local", sym.Name, sym.Type)
	}
	got := obj.Sections[0].Patches[0].RPN
	want := []byte{byte(rpn.OpSymID), 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("rpn = % X, want % X", got, want)
	}
}

func TestBankOfSymbolNeverInlines(t *testing.T) {
	m := newModule(t)
	sect := m.addCode("code", 1)
	sect.Org = 0x0150 // метка становится константой

	if _, err := m.syms.AddLabel("Entry", sect, 0, m.env.node, 3); err != nil {
		t.Fatal(err)
	}

	var b rpn.Builder
	expr := b.PushBankSymbol("Entry").Expr()
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	if len(obj.Symbols) != 1 {
		t.Fatalf("bank reference must register the symbol, got %d symbols", len(obj.Symbols))
	}
	got := obj.Sections[0].Patches[0].RPN
	want := []byte{byte(rpn.OpBankSymID), 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("rpn = % X, want % X", got, want)
	}
}

func TestBankOfSectionPassesNameThrough(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	var b rpn.Builder
	expr := b.PushBankSection("gfx").Expr()
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	got := obj.Sections[0].Patches[0].RPN
	want := append([]byte{byte(rpn.OpBankSect)}, append([]byte("gfx"), 0)...)
	if !bytes.Equal(got, want) {
		t.Errorf("rpn = % X, want % X", got, want)
	}
}

func TestSymbolIDLaziness(t *testing.T) {
	m := newModule(t)
	sect := m.addCode("code", 1)

	// Ни ссылки, ни экспорта — символ не должен попасть в файл
	if _, err := m.syms.AddLabel("unused", sect, 0, m.env.node, 4); err != nil {
		t.Fatal(err)
	}
	// Экспортирован, но нигде не используется — должен попасть
	if _, err := m.syms.AddConst("VERSION", 1, m.env.node, 5); err != nil {
		t.Fatal(err)
	}
	if err := m.syms.Export("VERSION"); err != nil {
		t.Fatal(err)
	}

	obj := m.roundTrip(t)
	if len(obj.Symbols) != 1 {
		t.Fatalf("expected only the exported symbol, got %d", len(obj.Symbols))
	}
	if obj.Symbols[0].Name != "VERSION" || obj.Symbols[0].Type != SymExport {
		t.Errorf("symbol = %q type %d, want exported VERSION", obj.Symbols[0].Name, obj.Symbols[0].Type)
	}
}

func TestExportSweepRunsOnce(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	sym, err := m.syms.AddConst("VERSION", 1, m.env.node, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.syms.Export("VERSION"); err != nil {
		t.Fatal(err)
	}

	// Ссылка из выражения выделяет ID до свипа
	var b rpn.Builder
	expr := b.PushBankSymbol("VERSION").Expr()
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	preSweep := sym.ObjID()

	obj := m.roundTrip(t)
	if len(obj.Symbols) != 1 {
		t.Fatalf("sweep re-registered an already registered symbol: %d entries", len(obj.Symbols))
	}
	if sym.ObjID() != preSweep {
		t.Errorf("sweep changed ID: %d -> %d", preSweep, sym.ObjID())
	}
}

func TestImportedSymbolRecord(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 2)

	if _, err := m.syms.AddImport("ExternalFunc"); err != nil {
		t.Fatal(err)
	}
	var b rpn.Builder
	expr := b.PushSymbol("ExternalFunc").Expr()
	if err := m.w.CreatePatch(PatchWord, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	if len(obj.Symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(obj.Symbols))
	}
	if obj.Symbols[0].Type != SymImport {
		t.Errorf("type = %d, want import", obj.Symbols[0].Type)
	}
}

func TestNestedMacroProvenance(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	outer := m.tree.AddMacro("mOuter", m.env.node, 10)
	inner := m.tree.AddMacro("mInner", outer, 2)
	m.env.node = inner
	m.env.line = 3

	expr := rpn.Const(1)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	// main.asm не упоминается патчем напрямую, но является предком
	if len(obj.Nodes) != 3 {
		t.Fatalf("expected 3 provenance records, got %d", len(obj.Nodes))
	}
	innerRec := obj.Nodes[0]
	outerRec := obj.Nodes[1]
	rootRec := obj.Nodes[2]
	if innerRec.Name != "mInner" || innerRec.Parent != 1 {
		t.Errorf("inner = %q parent %d, want mInner parent 1", innerRec.Name, innerRec.Parent)
	}
	if outerRec.Name != "mOuter" || outerRec.Parent != 2 {
		t.Errorf("outer = %q parent %d, want mOuter parent 2", outerRec.Name, outerRec.Parent)
	}
	if rootRec.Name != "main.asm" || rootRec.Parent != noRef {
		t.Errorf("root = %q parent %#x, want main.asm with no parent", rootRec.Name, rootRec.Parent)
	}
}

func TestReptIterationCounters(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	rept := m.tree.AddRept([]uint32{5, 2}, m.env.node, 20)
	m.env.node = rept

	expr := rpn.Const(0)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	rec := obj.Nodes[0]
	if rec.Kind != fstack.NodeRept {
		t.Fatalf("kind = %v, want rept", rec.Kind)
	}
	if len(rec.Iters) != 2 || rec.Iters[0] != 5 || rec.Iters[1] != 2 {
		t.Errorf("iters = %v, want [5 2]", rec.Iters)
	}
}

func TestAssertionsEmitMostRecentFirst(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)

	first := rpn.Const(1)
	if err := m.w.CreateAssert(AssertError, &first, "first", 0); err != nil {
		t.Fatalf("CreateAssert: %v", err)
	}
	second := rpn.Const(2)
	if err := m.w.CreateAssert(AssertFatal, &second, "second", 0); err != nil {
		t.Fatalf("CreateAssert: %v", err)
	}

	obj := m.roundTrip(t)
	if len(obj.Assertions) != 2 {
		t.Fatalf("expected 2 assertions, got %d", len(obj.Assertions))
	}
	if obj.Assertions[0].Message != "second" || obj.Assertions[1].Message != "first" {
		t.Errorf("order = [%q %q], want most-recent-first",
			obj.Assertions[0].Message, obj.Assertions[1].Message)
	}
	if AssertKind(obj.Assertions[0].Patch.Type) != AssertFatal {
		t.Errorf("kind = %d, want fatal", obj.Assertions[0].Patch.Type)
	}
}

func TestRewriteIsDeterministic(t *testing.T) {
	m := newModule(t)
	sect := m.addCode("code", 4)

	if _, err := m.syms.AddLabel("Target", sect, 2, m.env.node, 7); err != nil {
		t.Fatal(err)
	}

	build := func() rpn.Expr {
		var b rpn.Builder
		return b.PushSymbol("Target").PushConst(1).Op(rpn.OpAdd).Expr()
	}
	expr1 := build()
	if err := m.w.CreatePatch(PatchWord, &expr1, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	expr2 := build()
	if err := m.w.CreatePatch(PatchWord, &expr2, 2); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	patches := obj.Sections[0].Patches
	if len(patches) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(patches))
	}
	if !bytes.Equal(patches[0].RPN, patches[1].RPN) {
		t.Errorf("same expression rewrote differently:\n% X\n% X", patches[0].RPN, patches[1].RPN)
	}
}

func TestPatchRecordsPC(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 3)
	m.env.pcOfs = 1
	m.env.line = 12

	var b rpn.Builder
	expr := b.PushSymbol("@").Expr()
	if err := m.w.CreatePatch(PatchJr, &expr, 2); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	obj := m.roundTrip(t)
	patch := obj.Sections[0].Patches[0]
	if patch.PCSectionID != 0 || patch.PCOffset != 1 {
		t.Errorf("pc = section %d offset %d, want 0/1", patch.PCSectionID, patch.PCOffset)
	}
	if patch.Offset != 2 || patch.Line != 12 {
		t.Errorf("offset/line = %d/%d, want 2/12", patch.Offset, patch.Line)
	}
	// Плавающий PC кодируется all-ones ID
	want := []byte{byte(rpn.OpSymID), 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(patch.RPN, want) {
		t.Errorf("rpn = % X, want % X", patch.RPN, want)
	}
}

func TestForeignPCSectionFails(t *testing.T) {
	m := newModule(t)
	m.addCode("code", 1)
	// Секция не из списка модуля
	m.env.pcSect = &section.Section{Name: "foreign", Kind: section.KindROM0}

	expr := rpn.Const(0)
	if err := m.w.CreatePatch(PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	var buf bytes.Buffer
	err := m.w.writeTo(&buf)
	if err == nil {
		t.Fatal("writeTo accepted a patch referencing a foreign section")
	}
}

func TestDataSizeMismatchFails(t *testing.T) {
	m := newModule(t)
	sect := m.addCode("code", 2)
	sect.Data = sect.Data[:1]

	var buf bytes.Buffer
	if err := m.w.writeTo(&buf); err == nil {
		t.Fatal("writeTo accepted a section whose data length disagrees with its size")
	}
}

func TestRAMSectionCarriesNoData(t *testing.T) {
	m := newModule(t)
	m.sects.Add(&section.Section{
		Name:  "vars",
		Size:  16,
		Kind:  section.KindWRAM0,
		Org:   section.NoOrg,
		Bank:  section.NoBank,
		Align: 3,
	})

	obj := m.roundTrip(t)
	sect := obj.Sections[0]
	if sect.Kind != section.KindWRAM0 || sect.Size != 16 {
		t.Errorf("section = %v/%d, want WRAM0/16", sect.Kind, sect.Size)
	}
	if sect.Data != nil || sect.Patches != nil {
		t.Error("size-only section decoded with data or patches")
	}
	if sect.Align != 3 {
		t.Errorf("align = %d, want 3", sect.Align)
	}
}

func TestSectionModifierBits(t *testing.T) {
	m := newModule(t)
	m.sects.Add(&section.Section{
		Name:     "shared",
		Size:     4,
		Kind:     section.KindWRAM0,
		Modifier: section.ModifierUnion,
		Org:      section.NoOrg,
		Bank:     section.NoBank,
	})
	m.sects.Add(&section.Section{
		Name:     "pieces",
		Size:     2,
		Kind:     section.KindROMX,
		Modifier: section.ModifierFragment,
		Org:      section.NoOrg,
		Bank:     section.NoBank,
		Data:     []byte{0xAF, 0xC9},
	})

	obj := m.roundTrip(t)
	if obj.Sections[0].Modifier != section.ModifierUnion {
		t.Errorf("modifier[0] = %v, want union", obj.Sections[0].Modifier)
	}
	if obj.Sections[1].Modifier != section.ModifierFragment {
		t.Errorf("modifier[1] = %v, want fragment", obj.Sections[1].Modifier)
	}
	if obj.Sections[1].Kind != section.KindROMX {
		t.Errorf("kind survived modifier bits wrong: %v", obj.Sections[1].Kind)
	}
}
