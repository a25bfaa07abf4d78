// Package metainfo loads and decodes .torrent files: the bencoded metainfo
// dictionary, the byte-exact info hash, and the per-piece hash list.
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	bencode "github.com/jackpal/bencode-go"
)

// rawFile mirrors one entry of the info dictionary's "files" list, used only
// for multi-file torrents.
type rawFile struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

type rawInfo struct {
	PieceLength int64     `bencode:"piece length"`
	Pieces      string    `bencode:"pieces"`
	Name        string    `bencode:"name"`
	Length      int64     `bencode:"length"`
	Files       []rawFile `bencode:"files"`
}

type rawTorrentFile struct {
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	Info         rawInfo    `bencode:"info"`
}

// File is one file's byte range within a (possibly multi-file) torrent's
// virtual, concatenated byte space.
type File struct {
	Path   string
	Length int64
	Offset int64
}

// Metainfo is the immutable, fully-resolved contract a .torrent file
// provides to the rest of the downloader.
type Metainfo struct {
	AnnounceURL  string
	AnnounceList [][]string
	InfoHash     [20]byte
	PieceHashes  [][20]byte
	PieceLength  int64
	TotalLength  int64
	Name         string
	Files        []File
}

// MetainfoError is a fatal, startup-time error: malformed .torrent file or
// an internally inconsistent piece layout.
type MetainfoError struct {
	Reason string
}

func (e *MetainfoError) Error() string {
	return fmt.Sprintf("metainfo: %s", e.Reason)
}

// Load reads and parses path, producing an immutable Metainfo.
func Load(path string) (*Metainfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	var raw rawTorrentFile
	if err := bencode.Unmarshal(bytes.NewReader(data), &raw); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}

	infoBytes, err := extractInfoBytes(data)
	if err != nil {
		return nil, fmt.Errorf("locating info dict in %q: %w", path, err)
	}
	infoHash := sha1.Sum(infoBytes)

	if len(raw.Info.Pieces)%20 != 0 {
		return nil, &MetainfoError{Reason: fmt.Sprintf("pieces string length %d is not a multiple of 20", len(raw.Info.Pieces))}
	}
	numPieces := len(raw.Info.Pieces) / 20
	pieceHashes := make([][20]byte, numPieces)
	for i := range pieceHashes {
		copy(pieceHashes[i][:], raw.Info.Pieces[i*20:(i+1)*20])
	}

	files, total := buildFiles(raw.Info)

	if raw.Info.PieceLength <= 0 {
		return nil, &MetainfoError{Reason: "piece length must be positive"}
	}
	maxSpan := int64(numPieces) * raw.Info.PieceLength
	minSpan := maxSpan - raw.Info.PieceLength
	if total > maxSpan || (numPieces > 0 && total <= minSpan) {
		return nil, &MetainfoError{Reason: fmt.Sprintf(
			"piece layout inconsistent: %d pieces * %d piece length does not bound total length %d",
			numPieces, raw.Info.PieceLength, total)}
	}

	return &Metainfo{
		AnnounceURL:  raw.Announce,
		AnnounceList: raw.AnnounceList,
		InfoHash:     infoHash,
		PieceHashes:  pieceHashes,
		PieceLength:  raw.Info.PieceLength,
		TotalLength:  total,
		Name:         raw.Info.Name,
		Files:        files,
	}, nil
}

// buildFiles lays out the File list and computes the total virtual length,
// for both single-file and multi-file torrents.
func buildFiles(info rawInfo) ([]File, int64) {
	if len(info.Files) == 0 {
		return []File{{Path: info.Name, Length: info.Length, Offset: 0}}, info.Length
	}

	files := make([]File, 0, len(info.Files))
	var offset int64
	for _, rf := range info.Files {
		parts := append([]string{info.Name}, rf.Path...)
		files = append(files, File{
			Path:   filepath.Join(parts...),
			Length: rf.Length,
			Offset: offset,
		})
		offset += rf.Length
	}
	return files, offset
}

// extractInfoBytes locates the exact bencoded bytes of the "info" dictionary
// inside the raw .torrent data, so the info hash is computed over the
// source's own encoding rather than a re-serialization that could drift from
// it (key ordering, integer formatting).
func extractInfoBytes(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte("4:info"))
	if idx < 0 {
		return nil, fmt.Errorf("no %q prefix found", "4:info")
	}
	start := idx + len("4:info")

	end, err := bencodeSpanEnd(data, start)
	if err != nil {
		return nil, fmt.Errorf("info dict at byte %d: %w", start, err)
	}
	return data[start:end], nil
}

// bencodeSpanEnd returns the index one past the end of the single bencoded
// value (dict, list, integer, or byte string) beginning at data[start],
// recursing into dict/list members so nested values never confuse the
// caller's notion of where the outer value ends.
func bencodeSpanEnd(data []byte, start int) (int, error) {
	if start >= len(data) {
		return 0, fmt.Errorf("value starts past end of input")
	}

	switch data[start] {
	case 'd', 'l':
		pos := start + 1
		for {
			if pos >= len(data) {
				return 0, fmt.Errorf("unterminated dict/list starting at byte %d", start)
			}
			if data[pos] == 'e' {
				return pos + 1, nil
			}
			next, err := bencodeSpanEnd(data, pos)
			if err != nil {
				return 0, err
			}
			pos = next
		}

	case 'i':
		pos := start + 1
		for pos < len(data) && data[pos] != 'e' {
			pos++
		}
		if pos >= len(data) {
			return 0, fmt.Errorf("unterminated integer at byte %d", start)
		}
		return pos + 1, nil

	default:
		if data[start] < '0' || data[start] > '9' {
			return 0, fmt.Errorf("unexpected byte %q at %d", data[start], start)
		}
		colon := start
		for colon < len(data) && data[colon] != ':' {
			colon++
		}
		if colon >= len(data) {
			return 0, fmt.Errorf("unterminated string length at byte %d", start)
		}
		length, err := strconv.Atoi(string(data[start:colon]))
		if err != nil {
			return 0, fmt.Errorf("invalid string length at byte %d: %w", start, err)
		}
		end := colon + 1 + length
		if length < 0 || end > len(data) {
			return 0, fmt.Errorf("string at byte %d overruns input", start)
		}
		return end, nil
	}
}
