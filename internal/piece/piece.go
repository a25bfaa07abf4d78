// Package piece plans per-piece work units from a torrent's metainfo, and
// verifies assembled piece data against its expected SHA-1 hash.
package piece

import (
	"crypto/sha1"
	"fmt"

	"github.com/lvbealr/gorent/internal/metainfo"
)

// MaxInFlight bounds the number of outstanding REQUESTs a downloader may
// keep pipelined to one peer for a single piece.
const MaxInFlight = 5

// BlockSize is the standard block size requested per REQUEST message.
const BlockSize = 1 << 14 // 16384

// IntegrityError reports a SHA-1 mismatch between a downloaded piece's data
// and its expected hash.
type IntegrityError struct {
	Index int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("piece %d failed integrity check", e.Index)
}

// Work is a single piece's download state, owned by exactly one worker at a
// time. Non-nil only while that worker holds it.
type Work struct {
	Index            int
	ExpectedHash     [20]byte
	Length           int
	Data             []byte
	RequestsInFlight int
	RequestedBytes   int
	DownloadedBytes  int
}

// Result is an immutable, verified piece ready for assembly into the output
// file.
type Result struct {
	Index  int
	Length int
	Data   []byte
}

// Plan splits mi's total length into an ordered sequence of Work units, one
// per piece, each already carrying a freshly zeroed data buffer.
func Plan(mi *metainfo.Metainfo) ([]*Work, error) {
	numPieces := len(mi.PieceHashes)
	if numPieces == 0 {
		return nil, fmt.Errorf("piece plan: metainfo carries no piece hashes")
	}

	maxSpan := int64(numPieces) * mi.PieceLength
	minSpan := maxSpan - mi.PieceLength
	if mi.TotalLength > maxSpan || mi.TotalLength <= minSpan {
		return nil, fmt.Errorf(
			"piece plan: %d pieces of length %d cannot bound total length %d",
			numPieces, mi.PieceLength, mi.TotalLength)
	}

	plan := make([]*Work, numPieces)
	for i := 0; i < numPieces; i++ {
		length := mi.PieceLength
		if i == numPieces-1 {
			last := mi.TotalLength - int64(i)*mi.PieceLength
			if last > 0 {
				length = last
			}
		}
		plan[i] = &Work{
			Index:        i,
			ExpectedHash: mi.PieceHashes[i],
			Length:       int(length),
			Data:         make([]byte, length),
		}
	}
	return plan, nil
}

// ResetForDownload clears w's in-flight counters ahead of a fresh download
// attempt, leaving Index/ExpectedHash/Length/Data untouched.
func (w *Work) ResetForDownload() {
	w.RequestsInFlight = 0
	w.RequestedBytes = 0
	w.DownloadedBytes = 0
}

// Verify computes SHA-1 over w.Data and compares it to w.ExpectedHash,
// returning an *IntegrityError on mismatch.
func Verify(w *Work) error {
	sum := sha1.Sum(w.Data)
	if sum != w.ExpectedHash {
		return &IntegrityError{Index: w.Index}
	}
	return nil
}
