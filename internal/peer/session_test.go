package peer

import (
	"net"
	"strconv"
	"testing"

	"github.com/lvbealr/gorent/internal/wire"
)

// fakePeerListener speaks just enough of the wire protocol to let Dial
// complete: it reads the handshake, replies in kind, then sends a BITFIELD.
func fakePeerListener(t *testing.T, infoHash [20]byte, bitfieldPayload []byte) (addr string, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done = make(chan struct{})

	go func() {
		defer close(done)
		defer ln.Close()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		hs, err := wire.ReadHandshake(conn)
		if err != nil {
			return
		}
		resp := wire.NewHandshake(hs.InfoHash, [20]byte{9, 9})
		conn.Write(resp.Serialize())

		bfMsg := &wire.Message{ID: wire.MsgBitfield, Payload: bitfieldPayload}
		conn.Write(bfMsg.Serialize())
	}()

	return ln.Addr().String(), done
}

func parsePeerAddr(t *testing.T, addr string) Peer {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}
	return Peer{IP: net.ParseIP(host).To4(), Port: uint16(port)}
}

func TestDialReachesReadyState(t *testing.T) {
	var infoHash [20]byte
	infoHash[0] = 0x42
	addr, done := fakePeerListener(t, infoHash, []byte{0b10000000})
	p := parsePeerAddr(t, addr)

	s, err := Dial(p, infoHash, [20]byte{1}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()
	<-done

	if !s.AmChoked {
		t.Fatalf("AmChoked = false; want true immediately after handshake")
	}
	if !s.HasPiece(0) {
		t.Fatalf("HasPiece(0) = false; want true from bitfield 10000000")
	}
	if s.HasPiece(1) {
		t.Fatalf("HasPiece(1) = true; want false")
	}
}

func TestDialRejectsInfoHashMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.ReadHandshake(conn)
		var wrongHash [20]byte
		wrongHash[0] = 0xFF
		resp := wire.NewHandshake(wrongHash, [20]byte{9})
		conn.Write(resp.Serialize())
	}()

	p := parsePeerAddr(t, ln.Addr().String())
	var infoHash [20]byte
	_, err = Dial(p, infoHash, [20]byte{1}, nil)
	if err == nil {
		t.Fatalf("expected info hash mismatch error")
	}
}

func TestOnHaveUpdatesBitfield(t *testing.T) {
	s := &Session{Bitfield: make([]byte, 1)}
	if s.HasPiece(3) {
		t.Fatalf("HasPiece(3) = true before HAVE")
	}
	if err := s.OnHave(wire.NewHave(3)); err != nil {
		t.Fatalf("OnHave: %v", err)
	}
	if !s.HasPiece(3) {
		t.Fatalf("HasPiece(3) = false after HAVE(3)")
	}
}

func TestChokeUnchokeToggles(t *testing.T) {
	s := &Session{AmChoked: true}
	s.OnUnchoke()
	if s.AmChoked {
		t.Fatalf("AmChoked = true after OnUnchoke")
	}
	s.OnChoke()
	if !s.AmChoked {
		t.Fatalf("AmChoked = false after OnChoke")
	}
}
