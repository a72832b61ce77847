package daemon

import (
	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/inventory"
)

// cleanup runs when serve's read loop ends, for any reason: orderly
// close, read error, or a terminal verb. It is the connection-drop
// guarantee the whole daemon exists for: the lifetime of every
// producer/consumer slot this connection reserved is bounded above by
// the lifetime of this TCP connection.
func (h *connectionHandler) cleanup() {
	h.conn.Close()
	for ring, clients := range h.reservations.byRing {
		for _, c := range clients {
			h.freeOne(ring, c)
		}
	}
}

// freeOne releases one reservation's slot in the ring file, ignoring
// failures: the ring may have been deleted, or the slot may already
// have been legitimately re-used by another connection.
func (h *connectionHandler) freeOne(ringName string, c inventory.Client) {
	ring, err := h.inv.Open(ringName)
	if err != nil {
		return
	}
	defer ring.Close()

	switch c.Kind {
	case inventory.Producer:
		ring.FreeProducer(c.Pid)
	case inventory.Consumer:
		ring.FreeConsumer(c.Slot, c.Pid)
	}
	if h.logger != nil {
		h.logger.Debug("released reservation", zap.String("ring", ringName), zap.Uint32("pid", c.Pid))
	}
}

// freeIfCurrentOccupant frees a slot that this connection never held a
// session reservation for, but only if the ring header's current
// occupant still matches client -- the tolerance the specification
// requires for DISCONNECT against bootstrap-derived, unmonitored
// clients.
func (h *connectionHandler) freeIfCurrentOccupant(ringName string, c inventory.Client) bool {
	ring, err := h.inv.Open(ringName)
	if err != nil {
		return false
	}
	defer ring.Close()

	switch c.Kind {
	case inventory.Producer:
		if ring.ProducerPid() != c.Pid {
			return false
		}
		ring.FreeProducer(c.Pid)
		return true
	case inventory.Consumer:
		current, err := ring.ConsumerPid(c.Slot)
		if err != nil || current != c.Pid {
			return false
		}
		ring.FreeConsumer(c.Slot, c.Pid)
		return true
	}
	return false
}
