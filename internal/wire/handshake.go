package wire

import (
	"fmt"
	"io"
)

const protocolString = "BitTorrent protocol"

// HandshakeError reports a failed or rejected protocol handshake.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake: %s", e.Reason)
}

// Handshake is the 68-byte v1 greeting exchanged before any framed message.
type Handshake struct {
	Pstr     string
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a handshake with the standard v1 protocol string.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{
		Pstr:     protocolString,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

// Serialize encodes the handshake to its wire form: pstrlen | pstr | 8 zero
// reserved bytes | info_hash | peer_id.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, len(h.Pstr)+49)
	buf[0] = byte(len(h.Pstr))
	curr := 1
	curr += copy(buf[curr:], h.Pstr)
	curr += copy(buf[curr:], make([]byte, 8))
	curr += copy(buf[curr:], h.InfoHash[:])
	copy(buf[curr:], h.PeerID[:])
	return buf
}

// ReadHandshake parses a handshake frame from r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("reading pstrlen: %w", err)
	}
	pstrlen := int(lenBuf[0])
	if pstrlen == 0 {
		return nil, &HandshakeError{Reason: "pstrlen is 0"}
	}

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("reading handshake body: %w", err)
	}

	var infoHash, peerID [20]byte
	copy(infoHash[:], rest[pstrlen+8:pstrlen+8+20])
	copy(peerID[:], rest[pstrlen+8+20:])

	return &Handshake{
		Pstr:     string(rest[:pstrlen]),
		InfoHash: infoHash,
		PeerID:   peerID,
	}, nil
}

// VerifyInfoHash returns a HandshakeError if h's info hash does not match
// the locally known one.
func (h *Handshake) VerifyInfoHash(want [20]byte) error {
	if h.InfoHash != want {
		return &HandshakeError{Reason: fmt.Sprintf("info hash mismatch: got %x want %x", h.InfoHash, want)}
	}
	return nil
}
