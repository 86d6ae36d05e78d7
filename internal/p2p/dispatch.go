package p2p

import (
	"log/slog"

	"lattice.dev/node/internal/nodeerrors"
)

// Handler processes one decoded frame's payload. Returning an error
// marks the peer misbehaving (PenaltyBadChecksum-scale); handlers
// decode the payload themselves via the matching DecodeX function so
// this package never has to type-switch on their behalf.
type Handler func(peerAddr string, payload []byte) error

// Router dispatches frames read off a Session to per-Kind handlers,
// ignoring frames of a Kind with no registered handler (spec.md §6's
// "unknown message kinds are ignored, not fatal" applies equally to
// known-but-unhandled kinds on a given peer role).
type Router struct {
	manager  *Manager
	handlers map[Kind]Handler
	log      *slog.Logger
}

func NewRouter(manager *Manager, log *slog.Logger) *Router {
	return &Router{manager: manager, handlers: make(map[Kind]Handler), log: log}
}

func (r *Router) Handle(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Serve reads frames from session in a loop until a read fails with an
// error it does not classify as an invalid frame (a closed connection or
// truncated read) or the peer ends up banned. An invalid frame (bad
// magic, oversized payload) or a bad checksum penalizes the peer and
// continues; neither tears down the connection by itself.
func (r *Router) Serve(peerAddr string, session *Session) error {
	for {
		frame, ok, err := session.ReadFrame()
		if err != nil {
			switch nodeerrors.KindOf(err) {
			case nodeerrors.KindIntegrity:
				if r.manager.Penalize(peerAddr, PenaltyBadChecksum, "bad checksum") {
					return err
				}
				continue
			case nodeerrors.KindInvalid:
				if r.manager.Penalize(peerAddr, PenaltyBadMagic, "bad magic or oversized payload") {
					return err
				}
				continue
			}
			return err
		}
		r.manager.recordRecv(peerAddr)
		if !ok {
			r.manager.Penalize(peerAddr, PenaltyUnknownKind, "unknown message kind")
			if r.log != nil {
				r.log.Debug("ignoring unknown frame kind", "peer", peerAddr, "kind", byte(frame.Kind))
			}
			continue
		}
		handler, registered := r.handlers[frame.Kind]
		if !registered {
			continue
		}
		if err := handler(peerAddr, frame.Payload); err != nil {
			if r.log != nil {
				r.log.Warn("handler rejected frame", "peer", peerAddr, "kind", frame.Kind.String(), "err", err)
			}
			if r.manager.Penalize(peerAddr, PenaltyBadChecksum, err.Error()) {
				return err
			}
		}
	}
}

// Send encodes and writes a typed message, stamping the manager's
// per-peer sent-frame counter the same way Serve stamps received ones.
func Send(manager *Manager, peerAddr string, session *Session, kind Kind, payload []byte) error {
	if err := session.WriteFrame(Frame{Kind: kind, Payload: payload}); err != nil {
		return err
	}
	manager.recordSent(peerAddr)
	return nil
}
