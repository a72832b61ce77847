package daemon

import (
	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/inventory"
	"github.com/fribdaq/ringmaster/internal/ringfile"
)

// Bootstrap re-derives, for every ring the inventory already knows
// about (from its initial directory scan), which producer/consumer
// slots are occupied. Those slots predate this process, so there is no
// control connection to offer a liveness guarantee for them; they are
// recorded as unmonitored clients, which CONNECT never creates but
// DISCONNECT is still tolerant of (see cleanup.go's
// freeIfCurrentOccupant).
func Bootstrap(inv *inventory.Inventory, logger *zap.Logger) {
	names := knownNames(inv)
	for _, name := range names {
		ring, err := inv.Open(name)
		if err != nil {
			inv.Unregister(name)
			if logger != nil {
				logger.Info("pruning ring that vanished before bootstrap", zap.String("ring", name))
			}
			continue
		}

		var clients []inventory.Client
		if pid := ring.ProducerPid(); pid != ringfile.UnusedEntry {
			clients = append(clients, inventory.Client{Kind: inventory.Producer, Pid: pid})
		}
		for slot := uint32(0); slot < ring.MaxConsumers(); slot++ {
			pid, err := ring.ConsumerPid(slot)
			if err != nil || pid == ringfile.UnusedEntry {
				continue
			}
			clients = append(clients, inventory.Client{Kind: inventory.Consumer, Pid: pid, Slot: slot})
		}
		ring.Close()

		if len(clients) > 0 {
			inv.SetUnmonitored(name, clients)
			if logger != nil {
				logger.Info("re-derived unmonitored clients", zap.String("ring", name), zap.Int("count", len(clients)))
			}
		}
	}
}

func knownNames(inv *inventory.Inventory) []string {
	// There is no direct accessor for "every known name" on Inventory
	// beyond ListSnapshot (which also re-reads usage, more than
	// bootstrap needs); reuse it anyway since bootstrap only runs once,
	// at startup, well before the accept loop and its concurrent load.
	snaps := inv.ListSnapshot()
	names := make([]string, 0, len(snaps))
	for _, s := range snaps {
		names = append(names, s.Name)
	}
	return names
}
