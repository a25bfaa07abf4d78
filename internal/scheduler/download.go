package scheduler

import (
	"encoding/binary"

	"github.com/lvbealr/gorent/internal/peer"
	"github.com/lvbealr/gorent/internal/piece"
	"github.com/lvbealr/gorent/internal/wire"
)

// downloadPiece runs the pipelined block request/response loop described in
// spec §4.5 over one READY session for one piece. It mutates w in place and
// returns once w.DownloadedBytes == w.Length, or an error if the session
// fails partway through. On error, w's partial buffer is the caller's to
// discard and re-enqueue. log reports the DOWNLOADING state transition and
// any observed-but-unacted-upon message ids (PORT among them); it may be nil.
func downloadPiece(s *peer.Session, w *piece.Work, log Logger) error {
	if log == nil {
		log = nopLogger{}
	}

	log.Info("peer %s: DOWNLOADING piece %d", s.Peer, w.Index)
	w.ResetForDownload()
	s.SetDownloadDeadline()

	for w.DownloadedBytes < w.Length {
		if !s.AmChoked {
			for w.RequestsInFlight < piece.MaxInFlight && w.RequestedBytes < w.Length {
				blockSize := piece.BlockSize
				if remaining := w.Length - w.RequestedBytes; remaining < blockSize {
					blockSize = remaining
				}

				if err := s.SendRequest(w.Index, w.RequestedBytes, blockSize); err != nil {
					return err
				}
				w.RequestsInFlight++
				w.RequestedBytes += blockSize
			}
		}

		msg, err := s.ReadMessage()
		if err != nil {
			return err
		}
		if msg == nil {
			continue // keep-alive: observed, not acted on
		}

		switch msg.ID {
		case wire.MsgChoke:
			s.OnChoke()
		case wire.MsgUnchoke:
			s.OnUnchoke()
		case wire.MsgHave:
			if err := s.OnHave(msg); err != nil {
				return err
			}
		case wire.MsgPiece:
			n, err := msg.ParsePiece(w.Index, w.Data)
			if err != nil {
				return err
			}
			w.DownloadedBytes += n
			w.RequestsInFlight--
		case wire.MsgPort:
			port := uint16(0)
			if len(msg.Payload) >= 2 {
				port = binary.BigEndian.Uint16(msg.Payload[0:2])
			}
			log.Info("peer %s: PORT %d (observed, not acted on)", s.Peer, port)
		default:
			// INTERESTED, NOT_INTERESTED, CANCEL, or a message id this
			// client doesn't define: observed and ignored, per spec §4.1.
			log.Info("peer %s: ignoring message id %d", s.Peer, msg.ID)
		}
	}

	return nil
}
