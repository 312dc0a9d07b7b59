package objfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"rgbobj/internal/fstack"
	"rgbobj/internal/section"
)

// ErrNotObjectFile reports a bad magic or an unsupported revision.
var ErrNotObjectFile = errors.New("not an object file")

// ErrTruncated reports an object file that ends mid-record.
var ErrTruncated = errors.New("truncated object file")

// Object is a decoded object file. Slice indices are the positional IDs the
// format cross-references with, except Nodes, which the writer emits in
// ID-descending order and the reader re-indexes so Nodes[i] has ID i.
type Object struct {
	Revision   uint32
	Nodes      []NodeRec
	Symbols    []SymbolRec
	Sections   []SectionRec
	Assertions []AssertRec
}

// NodeRec is one provenance record.
type NodeRec struct {
	Parent uint32 // all-ones if root
	Line   uint32
	Kind   fstack.NodeKind
	Name   string   // FILE/MACRO
	Iters  []uint32 // REPT, deepest level first (storage order)
}

// SymbolRec is one symbol record. The location fields are meaningless for
// imports, which carry only a name.
type SymbolRec struct {
	Name      string
	Type      uint8
	Src       uint32
	Line      uint32
	SectionID uint32
	Value     int32
}

// SectionRec is one section record with its patches.
type SectionRec struct {
	Name     string
	Size     uint32
	Kind     section.Kind
	Modifier section.Modifier
	Org      uint32
	Bank     uint32
	Align    uint8
	AlignOfs uint32
	Data     []byte
	Patches  []PatchRec
}

// PatchRec is one relocation record.
type PatchRec struct {
	Src         uint32
	Line        uint32
	Offset      uint32
	PCSectionID uint32
	PCOffset    uint32
	Type        uint8
	RPN         []byte
}

// AssertRec is one assertion record.
type AssertRec struct {
	Patch   PatchRec
	Message string
}

// ReadFile decodes the object file at path.
func ReadFile(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	obj, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj, nil
}

// Read decodes an object file from r.
func Read(r io.Reader) (*Object, error) {
	d := &decoder{r: bufio.NewReader(r)}

	magic := d.bytes(uint32(len(Magic)))
	if d.err == nil && string(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrNotObjectFile, magic)
	}
	obj := &Object{Revision: d.long()}
	if d.err == nil && obj.Revision != Revision {
		return nil, fmt.Errorf("%w: unsupported revision %d (expected %d)",
			ErrNotObjectFile, obj.Revision, Revision)
	}

	nbSymbols := d.long()
	nbSections := d.long()

	nbNodes := d.long()
	// Records arrive highest ID first. The count is untrusted until the
	// stream backs it up, so grow with append and flip into ID order after.
	for i := uint32(0); i < nbNodes && d.err == nil; i++ {
		obj.Nodes = append(obj.Nodes, d.node())
	}
	slices.Reverse(obj.Nodes)

	for i := uint32(0); i < nbSymbols && d.err == nil; i++ {
		obj.Symbols = append(obj.Symbols, d.symbol())
	}
	for i := uint32(0); i < nbSections && d.err == nil; i++ {
		obj.Sections = append(obj.Sections, d.section())
	}

	nbAsserts := d.long()
	for i := uint32(0); i < nbAsserts && d.err == nil; i++ {
		obj.Assertions = append(obj.Assertions, AssertRec{
			Patch:   d.patch(),
			Message: d.str(),
		})
	}

	if d.err != nil {
		return nil, d.err
	}
	return obj, nil
}

// decoder mirrors encoder: primitives over a buffered reader with a sticky
// error, so record readers stay linear.
type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncated
		}
		d.err = err
	}
}

func (d *decoder) byte() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(err)
		return 0
	}
	return b
}

func (d *decoder) long() uint32 {
	b := d.bytes(4)
	if d.err != nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// bytes reads exactly n bytes. n comes straight from the stream, so the
// buffer grows chunk by chunk instead of trusting the count up front.
func (d *decoder) bytes(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	const chunk = 1 << 16
	b := make([]byte, 0, min(n, chunk))
	for uint32(len(b)) < n {
		start := len(b)
		b = append(b, make([]byte, min(n-uint32(len(b)), chunk))...)
		if _, err := io.ReadFull(d.r, b[start:]); err != nil {
			d.fail(err)
			return nil
		}
	}
	return b
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	s, err := d.r.ReadString(0)
	if err != nil {
		d.fail(err)
		return ""
	}
	return s[:len(s)-1]
}

func (d *decoder) node() NodeRec {
	rec := NodeRec{
		Parent: d.long(),
		Line:   d.long(),
		Kind:   fstack.NodeKind(d.byte()),
	}
	if rec.Kind != fstack.NodeRept {
		rec.Name = d.str()
	} else {
		depth := d.long()
		for i := uint32(0); i < depth && d.err == nil; i++ {
			rec.Iters = append(rec.Iters, d.long())
		}
		// Back into storage order (deepest first).
		slices.Reverse(rec.Iters)
	}
	return rec
}

func (d *decoder) symbol() SymbolRec {
	rec := SymbolRec{
		Name: d.str(),
		Type: d.byte(),
	}
	if rec.Type != SymImport {
		rec.Src = d.long()
		rec.Line = d.long()
		rec.SectionID = d.long()
		rec.Value = int32(d.long())
	}
	return rec
}

func (d *decoder) section() SectionRec {
	rec := SectionRec{
		Name: d.str(),
		Size: d.long(),
	}
	typ := d.byte()
	rec.Kind = section.Kind(typ &^ (1<<7 | 1<<6))
	switch {
	case typ&(1<<7) != 0:
		rec.Modifier = section.ModifierUnion
	case typ&(1<<6) != 0:
		rec.Modifier = section.ModifierFragment
	}
	rec.Org = d.long()
	rec.Bank = d.long()
	rec.Align = d.byte()
	rec.AlignOfs = d.long()

	if !rec.Kind.HasData() {
		return rec
	}

	rec.Data = d.bytes(rec.Size)
	nbPatches := d.long()
	for i := uint32(0); i < nbPatches && d.err == nil; i++ {
		rec.Patches = append(rec.Patches, d.patch())
	}
	return rec
}

func (d *decoder) patch() PatchRec {
	rec := PatchRec{
		Src:         d.long(),
		Line:        d.long(),
		Offset:      d.long(),
		PCSectionID: d.long(),
		PCOffset:    d.long(),
		Type:        d.byte(),
	}
	rec.RPN = d.bytes(d.long())
	return rec
}
