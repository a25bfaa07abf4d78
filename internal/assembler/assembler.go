// Package assembler maps verified piece results into the output file(s) a
// torrent's metainfo describes, writing each piece's byte range at the
// correct offset the way the teacher's BuildFileInfo lays files out.
package assembler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lvbealr/gorent/internal/metainfo"
	"github.com/lvbealr/gorent/internal/piece"
)

// Writer owns the open output file handles for one download and knows how
// to route a piece's bytes across the (possibly many) files it spans.
type Writer struct {
	outputDir string
	mi        *metainfo.Metainfo
	files     []*os.File
}

// Open creates the output file tree rooted at outputDir (mi.Files' Path
// entries already carry the torrent's own name as a leading directory
// component for multi-file torrents, matching metainfo.buildFiles) and
// truncates every constituent file to its final length, ready for
// random-offset writes.
func Open(outputDir string, mi *metainfo.Metainfo) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("assembler: creating %s: %w", outputDir, err)
	}

	w := &Writer{outputDir: outputDir, mi: mi, files: make([]*os.File, len(mi.Files))}
	for i, f := range mi.Files {
		path := filepath.Join(outputDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			w.Close()
			return nil, fmt.Errorf("assembler: creating %s: %w", filepath.Dir(path), err)
		}
		fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("assembler: opening %s: %w", path, err)
		}
		if err := fh.Truncate(f.Length); err != nil {
			w.Close()
			return nil, fmt.Errorf("assembler: truncating %s: %w", path, err)
		}
		w.files[i] = fh
	}

	return w, nil
}

// Write places one verified piece result at its absolute offset in the
// torrent's virtual byte space, splitting the write across every file entry
// the piece's span touches.
func (w *Writer) Write(r piece.Result) error {
	pieceStart := int64(r.Index) * w.mi.PieceLength
	pieceEnd := pieceStart + int64(r.Length)

	for i, f := range w.mi.Files {
		fileStart := f.Offset
		fileEnd := f.Offset + f.Length

		overlapStart := max64(pieceStart, fileStart)
		overlapEnd := min64(pieceEnd, fileEnd)
		if overlapStart >= overlapEnd {
			continue
		}

		data := r.Data[overlapStart-pieceStart : overlapEnd-pieceStart]
		if _, err := w.files[i].WriteAt(data, overlapStart-fileStart); err != nil {
			return fmt.Errorf("assembler: writing piece %d into %s: %w", r.Index, f.Path, err)
		}
	}

	return nil
}

// Close flushes and closes every open output file. Safe to call more than
// once; later errors are ignored in favor of the first.
func (w *Writer) Close() error {
	var firstErr error
	for _, f := range w.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
