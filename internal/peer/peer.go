// Package peer decodes tracker compact peer lists and drives one peer's
// TCP wire-protocol session: handshake, bitfield install, and the choke/
// interest state a session owner consults while downloading.
package peer

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
)

const addrSize = 6 // 4 address bytes + 2 port bytes, big-endian

// Peer is one entry of a tracker's compact peer list, plus a session-local
// id useful for log correlation.
type Peer struct {
	ID   int
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Unmarshal decodes a compact peer list (a flat byte string of 6-byte
// records) into a Peer slice, numbering each with a session-local id.
func Unmarshal(compact []byte) ([]Peer, error) {
	if len(compact)%addrSize != 0 {
		return nil, fmt.Errorf("peer: compact list length %d is not a multiple of %d", len(compact), addrSize)
	}
	n := len(compact) / addrSize
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		offset := i * addrSize
		peers[i] = Peer{
			ID:   i,
			IP:   net.IP(compact[offset : offset+4]),
			Port: binary.BigEndian.Uint16(compact[offset+4 : offset+6]),
		}
	}
	return peers, nil
}
