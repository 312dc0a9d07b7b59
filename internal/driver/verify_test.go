package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rgbobj/internal/fstack"
	"rgbobj/internal/objcache"
	"rgbobj/internal/objfile"
	"rgbobj/internal/rpn"
	"rgbobj/internal/section"
	"rgbobj/internal/symbols"
)

type stubEnv struct {
	node fstack.NodeID
	sect *section.Section
}

func (e *stubEnv) Location() (fstack.NodeID, uint32) { return e.node, 1 }
func (e *stubEnv) PC() (*section.Section, uint32)    { return e.sect, 0 }

// writeTestObject assembles a minimal valid object file on disk.
func writeTestObject(t *testing.T, path string) {
	t.Helper()

	tree := fstack.NewTree()
	syms := symbols.NewTable()
	sects := section.NewList()
	root := tree.AddFile("main.asm", fstack.NoNodeID, 0)

	sect := &section.Section{
		Name: "code",
		Size: 1,
		Kind: section.KindROM0,
		Org:  section.NoOrg,
		Bank: section.NoBank,
		Data: []byte{0},
	}
	sects.Add(sect)

	w := objfile.NewWriter(tree, syms, sects, &stubEnv{node: root, sect: sect})
	expr := rpn.Const(42)
	if err := w.CreatePatch(objfile.PatchByte, &expr, 0); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	w.SetDest(path)
	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestVerifyValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.o")
	writeTestObject(t, path)

	res, err := Verify(context.Background(), &VerifyRequest{Files: []string{path}})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Ok() {
		t.Fatalf("valid file failed verification: %+v", res.Files[0])
	}
	s := res.Files[0].Summary
	if s.Sections != 1 || s.Patches != 1 {
		t.Errorf("summary = %d sections %d patches, want 1/1", s.Sections, s.Patches)
	}
}

func TestVerifyUsesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.o")
	writeTestObject(t, path)

	cache, err := objcache.OpenAt(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("OpenAt: %v", err)
	}

	req := &VerifyRequest{Files: []string{path}, Cache: cache}
	first, err := Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if first.Files[0].Cached {
		t.Error("first run must not be a cache hit")
	}

	second, err := Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if !second.Files[0].Cached {
		t.Error("second run must hit the cache")
	}
}

func TestVerifyReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.o")
	writeTestObject(t, good)
	bad := filepath.Join(dir, "bad.o")
	if err := os.WriteFile(bad, []byte("not an object"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Verify(context.Background(), &VerifyRequest{Files: []string{good, bad}, Jobs: 2})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Ok() {
		t.Error("result with a corrupt file reported Ok")
	}
	if res.Files[0].Err != nil {
		t.Errorf("good file errored: %v", res.Files[0].Err)
	}
	if res.Files[1].Err == nil {
		t.Error("corrupt file did not error")
	}
}

func TestVerifyEmitsProgress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.o")
	writeTestObject(t, path)

	events := make(chan Event, 64)
	_, err := Verify(context.Background(), &VerifyRequest{
		Files:    []string{path},
		Progress: ChannelSink{Ch: events},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	close(events)

	var sawDone bool
	for ev := range events {
		if ev.Status == StatusDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("no done event observed")
	}
}
