// Package session mints the process-local identity this client presents to
// trackers and peers, and the correlation id its log lines carry.
package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Session is immutable for the lifetime of one CLI run.
type Session struct {
	ID     uuid.UUID
	PeerID [20]byte
}

// New mints a Session. prefix is the client identification tag (the
// teacher's convention is "-GT0001-"); the remaining bytes are filled from a
// freshly generated UUID's random bits, keeping the peer id format the
// teacher used but sourcing entropy from the uuid package already in the
// dependency set rather than a second crypto/rand call.
func New(prefix string) (*Session, error) {
	if len(prefix) > 20 {
		return nil, fmt.Errorf("session: peer id prefix %q longer than 20 bytes", prefix)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("session: generating session id: %w", err)
	}

	var peerID [20]byte
	copy(peerID[:], prefix)
	suffix := id[:]
	for i := len(prefix); i < 20; i++ {
		peerID[i] = hexDigit(suffix[(i-len(prefix))%len(suffix)])
	}

	return &Session{ID: id, PeerID: peerID}, nil
}

// hexDigit maps an arbitrary byte onto a printable peer-id character, the
// same alphabet the teacher used for its random suffix.
func hexDigit(b byte) byte {
	const chars = "0123456789abcdefghijklmnopqrstuvxyz"
	return chars[int(b)%len(chars)]
}

// ShortID returns an 8-character prefix of the session id, the form used in
// log lines to correlate output from one run without the full UUID's width.
func (s *Session) ShortID() string {
	return s.ID.String()[:8]
}
