// Command gorent downloads a single torrent's content over the BitTorrent
// v1 peer wire protocol and exits. It is a one-shot leecher: no seeding, no
// resume, no DHT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/lvbealr/gorent/internal/assembler"
	"github.com/lvbealr/gorent/internal/cliui"
	"github.com/lvbealr/gorent/internal/metainfo"
	"github.com/lvbealr/gorent/internal/peer"
	"github.com/lvbealr/gorent/internal/piece"
	"github.com/lvbealr/gorent/internal/scheduler"
	"github.com/lvbealr/gorent/internal/session"
	"github.com/lvbealr/gorent/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gorent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	torrentPath := flag.String("torrent", "", "path to the .torrent file")
	outputPath := flag.String("file", "", "path the downloaded content is written to (directory for multi-file torrents)")
	port := flag.Uint("port", 6881, "listening port advertised to the tracker")
	peerIDPrefix := flag.String("peer-id-prefix", "-GT0001-", "client identification tag sent in the peer id")
	flag.Parse()

	if *torrentPath == "" || *outputPath == "" {
		return fmt.Errorf("usage: gorent --torrent <PATH> --file <PATH>")
	}

	sess, err := session.New(*peerIDPrefix)
	if err != nil {
		return err
	}
	log := cliui.NewLogger(sess.ShortID())

	mi, err := metainfo.Load(*torrentPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", *torrentPath, err)
	}
	log.Info("loaded %s: %d pieces, %d bytes total", mi.Name, len(mi.PieceHashes), mi.TotalLength)

	tr, err := tracker.Announce(mi, sess.PeerID, uint16(*port))
	if err != nil {
		return fmt.Errorf("announcing to tracker: %w", err)
	}

	peers, err := peer.Unmarshal(tr.Peers)
	if err != nil {
		return fmt.Errorf("parsing tracker peer list: %w", err)
	}
	log.Info("tracker returned %d peers", len(peers))

	plan, err := piece.Plan(mi)
	if err != nil {
		return fmt.Errorf("planning pieces: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	refreshPeers := make(chan []peer.Peer)
	go runRefresh(ctx, mi, sess.PeerID, uint16(*port), tr.Interval, refreshPeers, log)

	bar := cliui.NewProgressBar(mi.Name, len(plan))
	sc := &scheduler.Scheduler{
		InfoHash:     mi.InfoHash,
		LocalID:      sess.PeerID,
		Log:          log,
		RefreshPeers: refreshPeers,
		OnProgress: func(p scheduler.Progress) {
			bar.Add(1)
		},
	}

	results, err := sc.Run(ctx, peers, plan)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	bar.Finish()

	if len(mi.Files) == 1 {
		if err := writeSingleFile(*outputPath, mi.PieceLength, results); err != nil {
			return fmt.Errorf("writing %s: %w", *outputPath, err)
		}
		log.Info("done: wrote %d pieces to %s", len(results), *outputPath)
		return nil
	}

	w, err := assembler.Open(*outputPath, mi)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer w.Close()

	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}

	log.Info("done: wrote %d pieces to %s", len(results), *outputPath)
	return nil
}

// runRefresh re-announces to the tracker once per announced interval and
// forwards any newly discovered peers to the scheduler, the optional
// RefreshPeer carryover described in the component design for downloads that
// outlive one tracker interval. It exits (and closes out) when ctx is
// cancelled; a zero or negative interval disables refreshing entirely.
func runRefresh(ctx context.Context, mi *metainfo.Metainfo, peerID [20]byte, port uint16, intervalSeconds int, out chan<- []peer.Peer, log *cliui.Logger) {
	defer close(out)

	if intervalSeconds <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tr, err := tracker.Announce(mi, peerID, port)
			if err != nil {
				log.Warn("re-announce: %v", err)
				continue
			}
			peers, err := peer.Unmarshal(tr.Peers)
			if err != nil {
				log.Warn("re-announce: parsing peer list: %v", err)
				continue
			}
			select {
			case out <- peers:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writeSingleFile writes every piece result directly into outputPath at its
// piece-index-derived offset, used for the common single-file torrent case
// so the CLI's --file path names the output exactly, independent of the
// torrent's internal name field.
func writeSingleFile(outputPath string, pieceLength int64, results []piece.Result) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, r := range results {
		offset := int64(r.Index) * pieceLength
		if _, err := f.WriteAt(r.Data, offset); err != nil {
			return err
		}
	}
	return nil
}
