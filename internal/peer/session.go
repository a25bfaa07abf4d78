package peer

import (
	"fmt"
	"net"
	"time"

	"github.com/lvbealr/gorent/internal/bitfield"
	"github.com/lvbealr/gorent/internal/wire"
)

const (
	dialTimeout      = 15 * time.Second
	handshakeTimeout = 3 * time.Second
	downloadTimeout  = 120 * time.Second
)

// Logger is the minimal logging surface a Session needs to report its state
// transitions (DIAL, HANDSHAKING, AWAITING_BITFIELD, READY, DEAD; DOWNLOADING
// is logged by the scheduler). scheduler.Logger and *cliui.Logger both
// satisfy this structurally;
// kept as its own interface so this package doesn't depend on scheduler.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

// ConnectError reports a dial failure or dial timeout.
type ConnectError struct {
	Peer string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Peer, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IoError reports a read/write failure or timeout during an established
// session.
type IoError struct {
	Peer string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io with %s: %v", e.Peer, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// Session owns one peer's TCP connection and wire-protocol state. It is
// used by exactly one worker goroutine at a time; nothing here is
// synchronized because nothing shares it.
type Session struct {
	Peer     Peer
	conn     net.Conn
	infoHash [20]byte
	localID  [20]byte
	Bitfield bitfield.Bitfield
	AmChoked bool
	log      Logger
}

// Dial connects to p, performs the v1 handshake, and waits for the peer's
// initial BITFIELD message. On success the returned Session is READY: the
// caller should send UNCHOKE then INTERESTED next, per spec. Every state
// transition (DIAL, HANDSHAKING, AWAITING_BITFIELD, READY, DEAD) is reported
// to log, which may be nil.
func Dial(p Peer, infoHash, localID [20]byte, log Logger) (*Session, error) {
	if log == nil {
		log = nopLogger{}
	}

	log.Info("peer %s: DIAL", p)
	conn, err := net.DialTimeout("tcp", p.String(), dialTimeout)
	if err != nil {
		log.Warn("peer %s: DEAD: %v", p, err)
		return nil, &ConnectError{Peer: p.String(), Err: err}
	}

	s := &Session{
		Peer:     p,
		conn:     conn,
		infoHash: infoHash,
		localID:  localID,
		AmChoked: true,
		log:      log,
	}

	log.Info("peer %s: HANDSHAKING", p)
	if err := s.handshake(); err != nil {
		log.Warn("peer %s: DEAD: %v", p, err)
		conn.Close()
		return nil, err
	}

	log.Info("peer %s: AWAITING_BITFIELD", p)
	if err := s.readInitialBitfield(); err != nil {
		log.Warn("peer %s: DEAD: %v", p, err)
		conn.Close()
		return nil, err
	}

	log.Info("peer %s: READY", p)
	return s, nil
}

func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	req := wire.NewHandshake(s.infoHash, s.localID)
	if _, err := s.conn.Write(req.Serialize()); err != nil {
		return &IoError{Peer: s.Peer.String(), Err: err}
	}

	resp, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return &IoError{Peer: s.Peer.String(), Err: err}
	}

	if err := resp.VerifyInfoHash(s.infoHash); err != nil {
		return err
	}

	return nil
}

func (s *Session) readInitialBitfield() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	msg, err := wire.Read(s.conn)
	if err != nil {
		return &IoError{Peer: s.Peer.String(), Err: err}
	}
	if msg == nil || msg.ID != wire.MsgBitfield {
		return &wire.ProtocolError{Reason: fmt.Sprintf("expected BITFIELD as first message from %s", s.Peer)}
	}

	s.Bitfield = bitfield.Bitfield(msg.Payload)
	return nil
}

// HasPiece reports whether the peer's advertised bitfield claims index.
func (s *Session) HasPiece(index int) bool {
	return s.Bitfield.Has(index)
}

// OnChoke marks the peer as having choked us.
func (s *Session) OnChoke() { s.AmChoked = true }

// OnUnchoke marks the peer as having unchoked us.
func (s *Session) OnUnchoke() { s.AmChoked = false }

// OnHave applies a HAVE message's piece index to the peer's bitfield.
func (s *Session) OnHave(msg *wire.Message) error {
	index, err := msg.ParseHave()
	if err != nil {
		return err
	}
	s.Bitfield.Set(index)
	return nil
}

// SetDownloadDeadline raises the read/write deadline for the duration of a
// piece download, where a single read may legitimately block until a PIECE
// block arrives.
func (s *Session) SetDownloadDeadline() {
	s.conn.SetDeadline(time.Now().Add(downloadTimeout))
}

// ReadMessage blocks for one framed message. A keep-alive is returned as
// (nil, nil).
func (s *Session) ReadMessage() (*wire.Message, error) {
	msg, err := wire.Read(s.conn)
	if err != nil {
		return nil, &IoError{Peer: s.Peer.String(), Err: err}
	}
	return msg, nil
}

func (s *Session) send(msg *wire.Message) error {
	if _, err := s.conn.Write(msg.Serialize()); err != nil {
		return &IoError{Peer: s.Peer.String(), Err: err}
	}
	return nil
}

// SendUnchoke tells the peer we are willing to serve it (best-effort; this
// client never seeds, but the message is part of the standard interest
// handshake every reference client performs).
func (s *Session) SendUnchoke() error {
	return s.send(&wire.Message{ID: wire.MsgUnchoke})
}

// SendInterested declares interest in downloading from the peer.
func (s *Session) SendInterested() error {
	return s.send(&wire.Message{ID: wire.MsgInterested})
}

// SendRequest asks for one block of a piece.
func (s *Session) SendRequest(index, begin, length int) error {
	return s.send(wire.NewRequest(index, begin, length))
}

// SendHave announces that we finished downloading a piece. Best-effort:
// failure to notify the peer doesn't invalidate the already-verified piece.
func (s *Session) SendHave(index int) error {
	return s.send(wire.NewHave(index))
}

// Close tears down the underlying connection, reporting the session's final
// DEAD transition. Safe to call more than once.
func (s *Session) Close() error {
	if s.log != nil {
		s.log.Info("peer %s: DEAD", s.Peer)
	}
	return s.conn.Close()
}
