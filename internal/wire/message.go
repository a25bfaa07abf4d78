package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies the kind of a framed peer-wire message.
type MessageID uint8

// Message ids defined by the v1 wire protocol. Others are observed and
// logged, never treated as fatal.
const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
	MsgPort          MessageID = 9
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	case MsgPort:
		return "port"
	default:
		return fmt.Sprintf("unknown#%d", uint8(id))
	}
}

// ProtocolError reports a malformed frame or an unexpected message shape.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

// Message is a framed peer-wire message. A nil *Message, as returned by
// Read, represents a zero-length keep-alive.
type Message struct {
	ID      MessageID
	Payload []byte
}

// NewRequest builds a REQUEST message: index|begin|length, big-endian u32s.
func NewRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: MsgRequest, Payload: payload}
}

// NewHave builds a HAVE message: a single big-endian u32 piece index.
func NewHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{ID: MsgHave, Payload: payload}
}

// ParseHave extracts the piece index from a HAVE message.
func (m *Message) ParseHave() (int, error) {
	if m.ID != MsgHave {
		return 0, &ProtocolError{Reason: fmt.Sprintf("expected HAVE, got %s", m.ID)}
	}
	if len(m.Payload) != 4 {
		return 0, &ProtocolError{Reason: fmt.Sprintf("HAVE payload length %d, want 4", len(m.Payload))}
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// ParsePiece validates a PIECE message against expectedIndex and copies its
// block into buf at the offset the message carries. It returns the number of
// bytes copied.
func (m *Message) ParsePiece(expectedIndex int, buf []byte) (int, error) {
	if m.ID != MsgPiece {
		return 0, &ProtocolError{Reason: fmt.Sprintf("expected PIECE, got %s", m.ID)}
	}
	if len(m.Payload) < 8 {
		return 0, &ProtocolError{Reason: fmt.Sprintf("PIECE payload too short: %d bytes", len(m.Payload))}
	}
	index := int(binary.BigEndian.Uint32(m.Payload[0:4]))
	if index != expectedIndex {
		return 0, &ProtocolError{Reason: fmt.Sprintf("PIECE index %d, want %d", index, expectedIndex)}
	}
	begin := int(binary.BigEndian.Uint32(m.Payload[4:8]))
	if begin < 0 || begin > len(buf) {
		return 0, &ProtocolError{Reason: fmt.Sprintf("PIECE begin %d out of range [0,%d]", begin, len(buf))}
	}
	block := m.Payload[8:]
	if begin+len(block) > len(buf) {
		return 0, &ProtocolError{Reason: fmt.Sprintf("PIECE block of %d bytes at offset %d overruns piece of %d bytes", len(block), begin, len(buf))}
	}
	copy(buf[begin:], block)
	return len(block), nil
}

// Serialize encodes m to its wire form: length(u32) | id | payload. A nil
// Message serializes to a zero-length keep-alive frame.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// Read parses one framed message from r. It returns (nil, nil) for a
// keep-alive.
func Read(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return nil, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}

	return &Message{ID: MessageID(body[0]), Payload: body[1:]}, nil
}
