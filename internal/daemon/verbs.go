package daemon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/inventory"
	"github.com/fribdaq/ringmaster/internal/tcllist"
)

// handleList renders every known ring's usage as the historical Tcl list
// encoding. LIST is allowed from any peer, local or remote, and is
// always terminal: the connection is closed after the reply.
func (h *connectionHandler) handleList() {
	snapshots := h.inv.ListSnapshot()

	top := tcllist.New()
	for _, snap := range snapshots {
		ring := tcllist.New().Add(snap.Name)

		data := tcllist.New()
		data.Add(fmt.Sprintf("%d", snap.DataBytes))
		data.Add(fmt.Sprintf("%d", snap.Status.FreeSpace))
		data.Add(fmt.Sprintf("%d", snap.MaxConsumers))
		data.Add(fmt.Sprintf("%d", int64(producerPidOrUnused(snap.Status.ProducerPid))))
		data.Add(fmt.Sprintf("%d", snap.Status.MaxQueued))

		minGet := uint64(0)
		if len(snap.Status.ConsumerUsage) > 0 {
			minGet = snap.Status.ConsumerUsage[0].Available
			for _, cu := range snap.Status.ConsumerUsage {
				if cu.Available < minGet {
					minGet = cu.Available
				}
			}
		}
		data.Add(fmt.Sprintf("%d", minGet))

		consumers := tcllist.New()
		for _, cu := range snap.Status.ConsumerUsage {
			one := tcllist.New().Add(fmt.Sprintf("%d", cu.Pid)).Add(fmt.Sprintf("%d", cu.Available))
			consumers.AddList(one)
		}
		data.AddList(consumers)

		ring.AddList(data)
		top.AddList(ring)
	}

	fmt.Fprint(h.conn, "OK\r\n")
	fmt.Fprintf(h.conn, "%s\r\n", tcllist.EncodeTopLevel(top))
}

func producerPidOrUnused(pid uint32) int64 {
	if pid == 0xFFFFFFFF {
		return -1
	}
	return int64(pid)
}

// handleRegister implements REGISTER ringname.
func (h *connectionHandler) handleRegister(args []string) bool {
	if !h.requireLocal() {
		return false
	}
	if len(args) != 1 {
		h.fail("REGISTER requires exactly one argument")
		return false
	}
	name := stripBraces(args[0])

	if err := h.inv.Register(name); err != nil {
		h.fail(fmt.Sprintf("cannot register %s: %s", name, err))
		return false
	}
	h.ok()
	return true
}

// handleUnregister implements UNREGISTER ringname. Unregistering a name
// the inventory never knew about is tolerated and still replies OK.
func (h *connectionHandler) handleUnregister(args []string) bool {
	if !h.requireLocal() {
		return false
	}
	if len(args) != 1 {
		h.fail("UNREGISTER requires exactly one argument")
		return false
	}
	name := stripBraces(args[0])
	h.inv.Unregister(name)
	h.ok()
	return true
}

// handleConnect implements CONNECT ringname role pid [comment...].
func (h *connectionHandler) handleConnect(args []string) bool {
	if !h.requireLocal() {
		return false
	}
	if len(args) < 3 {
		h.fail("CONNECT requires ringname role pid")
		return false
	}
	name := stripBraces(args[0])
	if !h.inv.Contains(name) {
		h.fail(fmt.Sprintf("no such ring %s", name))
		return false
	}

	kind, slot, err := parseRole(args[1])
	if err != nil {
		h.fail(err.Error())
		return false
	}

	pid, err := parsePid(args[2])
	if err != nil {
		h.fail("invalid pid")
		return false
	}

	if !h.claimPid(pid) {
		h.fail("PID spoof attempt")
		return false
	}

	ring, err := h.inv.Open(name)
	if err != nil {
		h.fail(fmt.Sprintf("ring %s is no longer available", name))
		return false
	}
	defer ring.Close()

	client := inventory.Client{Kind: kind, Pid: pid, Slot: slot}
	switch kind {
	case inventory.Producer:
		ring.SetProducer(pid)
	case inventory.Consumer:
		if slot >= ring.MaxConsumers() {
			h.fail(fmt.Sprintf("consumer slot %d does not exist", slot))
			return false
		}
		if err := ring.SetConsumer(slot, pid); err != nil {
			h.fail(err.Error())
			return false
		}
	}

	h.reservations.add(name, client)
	h.ok()
	if h.logger != nil {
		h.logger.Info("client connected",
			zap.String("ring", name), zap.Uint32("pid", pid), zap.String("role", args[1]))
	}
	return true
}

// handleDisconnect implements DISCONNECT ringname role pid. It must
// match an existing reservation on this connection, or (for bootstrap
// clients that never had one) the ring file's current occupant.
func (h *connectionHandler) handleDisconnect(args []string) bool {
	if !h.requireLocal() {
		return false
	}
	if len(args) < 3 {
		h.fail("DISCONNECT requires ringname role pid")
		return false
	}
	name := stripBraces(args[0])

	kind, slot, err := parseRole(args[1])
	if err != nil {
		h.fail(err.Error())
		return false
	}
	pid, err := parsePid(args[2])
	if err != nil {
		h.fail("invalid pid")
		return false
	}

	client := inventory.Client{Kind: kind, Pid: pid, Slot: slot}

	if h.reservations.remove(name, client) {
		h.freeOne(name, client)
		h.ok()
		return true
	}

	// No session reservation -- this may be a bootstrap-derived,
	// unmonitored client. Tolerate it if the ring header's current
	// occupant still matches.
	if h.freeIfCurrentOccupant(name, client) {
		h.ok()
		return true
	}

	h.fail("no matching reservation")
	return false
}

// handleRemote implements REMOTE ringname: validates the ring exists,
// sends the binary-follows preamble, and hands the connection off to a
// forked ring2stdout whose stdout is bound to a duplicate of this
// socket. REMOTE is always terminal.
func (h *connectionHandler) handleRemote(args []string) {
	if h.local {
		h.fail("REMOTE must come from a remote host")
		return
	}
	if len(args) != 1 {
		h.fail("REMOTE requires exactly one argument")
		return
	}
	name := stripBraces(args[0])
	if !h.inv.Contains(name) {
		h.fail(fmt.Sprintf("no such ring %s", name))
		return
	}

	fmt.Fprint(h.conn, "OK BINARY FOLLOWS\r\n")

	if err := h.hoister.Spawn(name, h.conn); err != nil && h.logger != nil {
		h.logger.Warn("failed to spawn hoister", zap.String("ring", name), zap.Error(err))
	}
	// The handler's own reference to the socket is dropped here (via the
	// deferred cleanup closing h.conn); once ring2stdout exits, the peer
	// observes end-of-stream.
}
