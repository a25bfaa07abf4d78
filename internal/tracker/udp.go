package tracker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/lvbealr/gorent/internal/metainfo"
)

// BEP 15 constants.
const (
	protocolMagic  = 0x41727101980
	actionConnect  = 0
	actionAnnounce = 1
	actionError    = 3
	eventStarted   = 2
)

func announceUDP(announceURL string, mi *metainfo.Metainfo, peerID [20]byte, port uint16) (*Response, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing UDP announce URL %q: %w", announceURL, err)
	}

	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", u.Host, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Host, err)
	}
	defer conn.Close()

	transactionID, err := randomUint32()
	if err != nil {
		return nil, err
	}

	connectionID, err := udpConnect(conn, transactionID)
	if err != nil {
		return nil, err
	}

	return udpAnnounce(conn, connectionID, transactionID, mi, peerID, port)
}

func udpConnect(conn *net.UDPConn, transactionID uint32) (uint64, error) {
	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], protocolMagic)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], transactionID)

	resp := make([]byte, 16)
	for attempt := 0; attempt < 3; attempt++ {
		conn.SetDeadline(time.Now().Add(time.Duration(5+attempt*2) * time.Second))

		if _, err := conn.Write(req); err != nil {
			continue
		}
		n, err := conn.Read(resp)
		if err != nil || n < 16 {
			continue
		}
		if binary.BigEndian.Uint32(resp[0:4]) != actionConnect {
			return 0, fmt.Errorf("udp tracker: unexpected connect action %d", binary.BigEndian.Uint32(resp[0:4]))
		}
		if binary.BigEndian.Uint32(resp[4:8]) != transactionID {
			return 0, fmt.Errorf("udp tracker: transaction id mismatch on connect")
		}
		return binary.BigEndian.Uint64(resp[8:16]), nil
	}
	return 0, fmt.Errorf("udp tracker: no connect response after 3 attempts")
}

func udpAnnounce(conn *net.UDPConn, connectionID uint64, transactionID uint32, mi *metainfo.Metainfo, peerID [20]byte, port uint16) (*Response, error) {
	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connectionID)
	binary.BigEndian.PutUint32(req[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], transactionID)
	copy(req[16:36], mi.InfoHash[:])
	copy(req[36:56], peerID[:])
	binary.BigEndian.PutUint64(req[56:64], 0) // downloaded
	binary.BigEndian.PutUint64(req[64:72], uint64(mi.TotalLength))
	binary.BigEndian.PutUint64(req[72:80], 0) // uploaded
	binary.BigEndian.PutUint32(req[80:84], eventStarted)
	binary.BigEndian.PutUint32(req[84:88], 0) // ip, 0 = default
	key, err := randomUint32()
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(req[88:92], key)
	binary.BigEndian.PutUint32(req[92:96], ^uint32(0)) // num_want = -1, default
	binary.BigEndian.PutUint16(req[96:98], port)

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("udp tracker: sending announce: %w", err)
	}

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("udp tracker: reading announce response: %w", err)
	}
	if n < 20 {
		return nil, fmt.Errorf("udp tracker: announce response too short: %d bytes", n)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	if action == actionError {
		return nil, fmt.Errorf("udp tracker error: %s", resp[8:n])
	}
	if action != actionAnnounce {
		return nil, fmt.Errorf("udp tracker: unexpected announce action %d", action)
	}
	if binary.BigEndian.Uint32(resp[4:8]) != transactionID {
		return nil, fmt.Errorf("udp tracker: transaction id mismatch on announce")
	}

	interval := int(binary.BigEndian.Uint32(resp[8:12]))
	peers := resp[20:n]
	if len(peers)%6 != 0 {
		return nil, fmt.Errorf("udp tracker: peers length %d not a multiple of 6", len(peers))
	}

	return &Response{Peers: peers, Interval: interval}, nil
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating random value: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
