// Package scheduler runs the concurrent piece-dispatch engine: one worker
// per peer, a work queue seeded with one unit per piece, and a result queue
// the driver drains until every piece has arrived.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lvbealr/gorent/internal/peer"
	"github.com/lvbealr/gorent/internal/piece"
)

// Logger is the minimal logging surface the scheduler needs; satisfied by
// *cliui.Logger. Kept as an interface so the scheduler package doesn't
// depend on the CLI rendering package.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Progress is a point-in-time snapshot of a running download, sampled after
// every piece completion.
type Progress struct {
	PiecesDone  int
	PiecesTotal int
	BytesDone   int64
	RateBps     float64
}

// Scheduler owns the work and result queues for one download and spawns one
// worker goroutine per peer.
type Scheduler struct {
	InfoHash [20]byte
	LocalID  [20]byte
	Log      Logger

	// OnProgress, if set, is invoked from the driver goroutine after every
	// accepted PieceResult.
	OnProgress func(Progress)

	// RefreshPeers, if set, delivers additional peer batches discovered by a
	// later tracker re-announce (lvbealr's RefreshPeer). Run spawns one more
	// worker per newly seen peer; peers already dialed in this run are
	// skipped. The channel is drained until it is closed or the download
	// completes, whichever comes first.
	RefreshPeers <-chan []peer.Peer
}

// nopLogger discards everything; used when Log is left nil.
type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

func (sc *Scheduler) logger() Logger {
	if sc.Log == nil {
		return nopLogger{}
	}
	return sc.Log
}

// Run seeds the work queue from plan, spawns one worker per peer, and
// blocks until every piece has been received, ctx is cancelled, or every
// spawned worker has exited with pieces still outstanding (the last two
// return an error). On success it returns exactly len(plan) results, one per
// piece index (not necessarily in index order).
func (sc *Scheduler) Run(ctx context.Context, peers []peer.Peer, plan []*piece.Work) ([]piece.Result, error) {
	numPieces := len(plan)
	workQueue := make(chan *piece.Work, numPieces)
	resultQueue := make(chan piece.Result, numPieces)

	for _, w := range plan {
		workQueue <- w
	}

	seen := make(map[string]struct{}, len(peers))
	workerDone := make(chan struct{}, len(peers))
	spawn := func(p peer.Peer) {
		if _, ok := seen[p.String()]; ok {
			return
		}
		seen[p.String()] = struct{}{}
		go func(p peer.Peer) {
			defer func() { workerDone <- struct{}{} }()
			sc.runWorker(ctx, p, workQueue, resultQueue)
		}(p)
	}
	for _, p := range peers {
		spawn(p)
	}

	results := make([]piece.Result, 0, numPieces)
	var bytesDone int64
	window := newRateWindow(5 * time.Second)

	activeWorkers := len(seen)
	refreshPeers := sc.RefreshPeers
	for len(results) < numPieces {
		select {
		case <-ctx.Done():
			return results, fmt.Errorf("scheduler: %w", ctx.Err())
		case res := <-resultQueue:
			results = append(results, res)
			bytesDone += int64(res.Length)
			window.add(int64(res.Length))

			if sc.OnProgress != nil {
				sc.OnProgress(Progress{
					PiecesDone:  len(results),
					PiecesTotal: numPieces,
					BytesDone:   bytesDone,
					RateBps:     window.rate(),
				})
			}
		case <-workerDone:
			activeWorkers--
			if activeWorkers == 0 && len(results) < numPieces {
				return results, fmt.Errorf("scheduler: all %d peers exited with %d/%d pieces downloaded", len(seen), len(results), numPieces)
			}
		case batch, ok := <-refreshPeers:
			if !ok {
				refreshPeers = nil
				continue
			}
			for _, p := range batch {
				before := len(seen)
				spawn(p)
				if len(seen) > before {
					activeWorkers++
				}
			}
		}
	}

	return results, nil
}

// runWorker is the per-peer worker procedure of spec §4.7: dial, handshake,
// then loop pulling work, downloading, verifying, and re-enqueueing on any
// failure. It never returns an error to the caller; all faults are logged
// and isolated to this one peer, per spec §7's isolation policy.
func (sc *Scheduler) runWorker(ctx context.Context, p peer.Peer, workQueue chan *piece.Work, resultQueue chan<- piece.Result) {
	log := sc.logger()

	s, err := peer.Dial(p, sc.InfoHash, sc.LocalID, log)
	if err != nil {
		// Dial already logged the DEAD transition with the underlying error.
		return
	}
	defer s.Close()

	if err := s.SendUnchoke(); err != nil {
		log.Warn("peer %s: sending unchoke: %v", p, err)
		return
	}
	if err := s.SendInterested(); err != nil {
		log.Warn("peer %s: sending interested: %v", p, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-workQueue:
			if !ok {
				return
			}
			if !sc.handleWork(ctx, s, w, workQueue, resultQueue) {
				return
			}
		}
	}
}

// handleWork processes one dequeued piece for session s. It returns false
// when the session has died and the worker must exit (the work unit has
// already been re-enqueued in that case), true otherwise.
func (sc *Scheduler) handleWork(ctx context.Context, s *peer.Session, w *piece.Work, workQueue chan *piece.Work, resultQueue chan<- piece.Result) bool {
	log := sc.logger()

	if !s.HasPiece(w.Index) {
		workQueue <- w
		return true
	}

	if err := downloadPiece(s, w, log); err != nil {
		log.Warn("peer %s: downloading piece %d: %v", s.Peer, w.Index, err)
		workQueue <- w
		return false
	}

	if err := piece.Verify(w); err != nil {
		log.Warn("peer %s: piece %d: %v", s.Peer, w.Index, err)
		workQueue <- w
		return true
	}

	if err := s.SendHave(w.Index); err != nil {
		log.Warn("peer %s: sending have(%d): %v", s.Peer, w.Index, err)
	}

	select {
	case resultQueue <- piece.Result{Index: w.Index, Length: w.Length, Data: w.Data}:
	case <-ctx.Done():
		workQueue <- w
		return false
	}
	return true
}
