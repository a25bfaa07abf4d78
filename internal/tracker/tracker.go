// Package tracker announces to a torrent's tracker(s) and returns the
// compact peer list the scheduler dials. HTTP trackers follow BEP 3; UDP
// trackers follow BEP 15. Both dialects are merged when a torrent lists
// more than one announce URL.
package tracker

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bencode "github.com/jackpal/bencode-go"

	"github.com/lvbealr/gorent/internal/metainfo"
)

// Response is the tracker's reply: a compact peer list and a suggested
// re-announce interval.
type Response struct {
	Peers    []byte
	Interval int
}

// publicFallbacks is consulted only when a torrent's own trackers yield no
// peers at all, widening the swarm search the way the teacher's
// SendTrackerResponse does.
var publicFallbacks = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://open.tracker.cl:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.tiny-vps.com:6969/announce",
}

// Announce contacts every tracker named by mi (its primary announce URL,
// every tier of announce-list, and the public fallbacks as a last resort),
// merging their compact peer lists and keeping the smallest announced
// interval.
func Announce(mi *metainfo.Metainfo, peerID [20]byte, port uint16) (*Response, error) {
	trackers := collectTrackerURLs(mi)
	if len(trackers) == 0 {
		return nil, fmt.Errorf("tracker: no announce URLs found in metainfo")
	}

	fallback := make(map[string]struct{}, len(publicFallbacks))
	for _, u := range publicFallbacks {
		fallback[u] = struct{}{}
	}

	merged := make(map[string]struct{})
	var interval int
	var lastErr error

	for _, announceURL := range trackers {
		if _, ok := fallback[announceURL]; ok && len(merged) > 0 {
			continue
		}

		var resp *Response
		var err error
		switch {
		case strings.HasPrefix(announceURL, "udp://"):
			resp, err = announceUDP(announceURL, mi, peerID, port)
		case strings.HasPrefix(announceURL, "http://"), strings.HasPrefix(announceURL, "https://"):
			resp, err = announceHTTP(announceURL, mi, peerID, port)
		default:
			continue
		}

		if err != nil {
			lastErr = err
			continue
		}

		for _, p := range splitCompact(resp.Peers) {
			merged[p] = struct{}{}
		}
		if interval == 0 || (resp.Interval > 0 && resp.Interval < interval) {
			interval = resp.Interval
		}
	}

	if len(merged) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("tracker: no peers from any tracker: %w", lastErr)
		}
		return nil, fmt.Errorf("tracker: no peers received from any tracker")
	}

	peers := make([]byte, 0, len(merged)*6)
	for p := range merged {
		peers = append(peers, p...)
	}

	return &Response{Peers: peers, Interval: interval}, nil
}

// collectTrackerURLs dedupes the torrent's own announce/announce-list
// entries and appends the public fallbacks, mirroring the teacher's
// multi-tracker fan-out.
func collectTrackerURLs(mi *metainfo.Metainfo) []string {
	seen := make(map[string]struct{})
	var urls []string

	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	add(mi.AnnounceURL)
	for _, tier := range mi.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	for _, u := range publicFallbacks {
		add(u)
	}

	return urls
}

func splitCompact(peers []byte) []string {
	out := make([]string, 0, len(peers)/6)
	for i := 0; i+6 <= len(peers); i += 6 {
		out = append(out, string(peers[i:i+6]))
	}
	return out
}

type httpResponse struct {
	Failure  string `bencode:"failure reason"`
	Interval int    `bencode:"interval"`
	Peers    string `bencode:"peers"`
}

func announceHTTP(announceURL string, mi *metainfo.Metainfo, peerID [20]byte, port uint16) (*Response, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing announce URL %q: %w", announceURL, err)
	}

	params := url.Values{}
	params.Set("info_hash", string(mi.InfoHash[:]))
	params.Set("peer_id", string(peerID[:]))
	params.Set("port", strconv.Itoa(int(port)))
	params.Set("uploaded", "0")
	params.Set("downloaded", "0")
	params.Set("compact", "1")
	params.Set("left", strconv.FormatInt(mi.TotalLength, 10))
	u.RawQuery = params.Encode()

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", announceURL, err)
	}
	defer resp.Body.Close()

	var tr httpResponse
	if err := bencode.Unmarshal(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("decoding tracker response from %s: %w", announceURL, err)
	}
	if tr.Failure != "" {
		return nil, fmt.Errorf("tracker %s: %s", announceURL, tr.Failure)
	}

	return &Response{Peers: []byte(tr.Peers), Interval: tr.Interval}, nil
}
