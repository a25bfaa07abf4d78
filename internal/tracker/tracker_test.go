package tracker

import (
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	bencode "github.com/jackpal/bencode-go"

	"github.com/lvbealr/gorent/internal/metainfo"
)

func TestAnnounceHTTP(t *testing.T) {
	wantPeers := []byte{127, 0, 0, 1, 0x1a, 0xe1}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("compact"); got != "1" {
			t.Errorf("compact = %q; want %q", got, "1")
		}
		bencode.Marshal(w, httpResponse{Interval: 900, Peers: string(wantPeers)})
	}))
	defer srv.Close()

	mi := &metainfo.Metainfo{AnnounceURL: srv.URL, TotalLength: 1024}
	resp, err := announceHTTP(srv.URL, mi, [20]byte{1}, 6881)
	if err != nil {
		t.Fatalf("announceHTTP: %v", err)
	}
	if resp.Interval != 900 {
		t.Fatalf("Interval = %d; want 900", resp.Interval)
	}
	if string(resp.Peers) != string(wantPeers) {
		t.Fatalf("Peers = %v; want %v", resp.Peers, wantPeers)
	}
}

func TestAnnounceHTTPFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bencode.Marshal(w, httpResponse{Failure: "unregistered torrent"})
	}))
	defer srv.Close()

	mi := &metainfo.Metainfo{AnnounceURL: srv.URL}
	_, err := announceHTTP(srv.URL, mi, [20]byte{1}, 6881)
	if err == nil {
		t.Fatalf("expected an error for a tracker failure reason")
	}
}

// fakeUDPTracker answers exactly one connect and one announce request, the
// minimal BEP 15 exchange, over a loopback UDP socket.
func fakeUDPTracker(t *testing.T, peers []byte) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	go func() {
		defer conn.Close()
		buf := make([]byte, 2048)

		// Connect request.
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil || n < 16 {
			return
		}
		txID := binary.BigEndian.Uint32(buf[12:16])
		connResp := make([]byte, 16)
		binary.BigEndian.PutUint32(connResp[0:4], actionConnect)
		binary.BigEndian.PutUint32(connResp[4:8], txID)
		binary.BigEndian.PutUint64(connResp[8:16], 0xdeadbeef)
		if _, err := conn.WriteToUDP(connResp, addr); err != nil {
			return
		}

		// Announce request.
		n, addr, err = conn.ReadFromUDP(buf)
		if err != nil || n < 98 {
			return
		}
		annTxID := binary.BigEndian.Uint32(buf[12:16])
		resp := make([]byte, 20+len(peers))
		binary.BigEndian.PutUint32(resp[0:4], actionAnnounce)
		binary.BigEndian.PutUint32(resp[4:8], annTxID)
		binary.BigEndian.PutUint32(resp[8:12], 1800) // interval
		binary.BigEndian.PutUint32(resp[12:16], 0)   // leechers
		binary.BigEndian.PutUint32(resp[16:20], 1)   // seeders
		copy(resp[20:], peers)
		conn.WriteToUDP(resp, addr)
	}()

	return conn.LocalAddr().String()
}

func TestAnnounceUDPRoundTrip(t *testing.T) {
	wantPeers := []byte{10, 0, 0, 1, 0x1a, 0xe1}
	addr := fakeUDPTracker(t, wantPeers)

	mi := &metainfo.Metainfo{TotalLength: 2048}
	resp, err := announceUDP("udp://"+addr+"/announce", mi, [20]byte{2}, 6882)
	if err != nil {
		t.Fatalf("announceUDP: %v", err)
	}
	if resp.Interval != 1800 {
		t.Fatalf("Interval = %d; want 1800", resp.Interval)
	}
	if string(resp.Peers) != string(wantPeers) {
		t.Fatalf("Peers = %v; want %v", resp.Peers, wantPeers)
	}
}

func TestCollectTrackerURLsDedupesAndAppendsFallbacks(t *testing.T) {
	mi := &metainfo.Metainfo{
		AnnounceURL:  "http://tracker.example/announce",
		AnnounceList: [][]string{{"http://tracker.example/announce"}, {"udp://other.example/announce"}},
	}
	urls := collectTrackerURLs(mi)
	if urls[0] != "http://tracker.example/announce" {
		t.Fatalf("urls[0] = %q; want primary announce first", urls[0])
	}

	seen := make(map[string]int)
	for _, u := range urls {
		seen[u]++
	}
	for u, n := range seen {
		if n > 1 {
			t.Fatalf("url %q appears %d times; want deduped", u, n)
		}
	}
	if len(urls) <= 2 {
		t.Fatalf("expected public fallbacks appended, got only %d urls", len(urls))
	}
}
