package assembler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lvbealr/gorent/internal/metainfo"
	"github.com/lvbealr/gorent/internal/piece"
)

func TestWriteSingleFile(t *testing.T) {
	dir := t.TempDir()
	mi := &metainfo.Metainfo{
		Name:        "movie.mp4",
		PieceLength: 4,
		TotalLength: 10,
		Files:       []metainfo.File{{Path: "movie.mp4", Length: 10, Offset: 0}},
	}

	w, err := Open(dir, mi)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.Write(piece.Result{Index: 0, Length: 4, Data: []byte("abcd")}); err != nil {
		t.Fatalf("Write piece 0: %v", err)
	}
	if err := w.Write(piece.Result{Index: 1, Length: 4, Data: []byte("efgh")}); err != nil {
		t.Fatalf("Write piece 1: %v", err)
	}
	if err := w.Write(piece.Result{Index: 2, Length: 2, Data: []byte("ij")}); err != nil {
		t.Fatalf("Write piece 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "movie.mp4"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "abcdefghij" {
		t.Fatalf("got %q; want %q", got, "abcdefghij")
	}
}

// TestWritePieceSpansFileBoundary exercises a piece whose bytes straddle two
// files in a multi-file torrent's virtual byte space.
func TestWritePieceSpansFileBoundary(t *testing.T) {
	dir := t.TempDir()
	mi := &metainfo.Metainfo{
		Name:        "pack",
		PieceLength: 6,
		TotalLength: 10,
		Files: []metainfo.File{
			{Path: filepath.Join("pack", "a.txt"), Length: 4, Offset: 0},
			{Path: filepath.Join("pack", "b.txt"), Length: 6, Offset: 4},
		},
	}

	w, err := Open(dir, mi)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Piece 0 covers bytes [0,6): all of a.txt (4 bytes) plus the first 2
	// bytes of b.txt.
	if err := w.Write(piece.Result{Index: 0, Length: 6, Data: []byte("AAAABB")}); err != nil {
		t.Fatalf("Write piece 0: %v", err)
	}
	// Piece 1 covers bytes [6,10): the remaining 4 bytes of b.txt.
	if err := w.Write(piece.Result{Index: 1, Length: 4, Data: []byte("BBBB")}); err != nil {
		t.Fatalf("Write piece 1: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a, err := os.ReadFile(filepath.Join(dir, "pack", "a.txt"))
	if err != nil {
		t.Fatalf("reading a.txt: %v", err)
	}
	if string(a) != "AAAA" {
		t.Fatalf("a.txt = %q; want %q", a, "AAAA")
	}

	b, err := os.ReadFile(filepath.Join(dir, "pack", "b.txt"))
	if err != nil {
		t.Fatalf("reading b.txt: %v", err)
	}
	if string(b) != "BBBBBB" {
		t.Fatalf("b.txt = %q; want %q", b, "BBBBBB")
	}
}
