// Package inventory is the ring-master's in-memory index from ring name
// to what little bookkeeping the daemon itself keeps about a ring. The
// authoritative slot state always lives in the ring-file header; this
// package only tracks which names are known and, for rings discovered
// at startup, which clients were already attached before any control
// connection existed to monitor them.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/ringfile"
)

// ClientKind distinguishes a producer from a consumer attachment.
type ClientKind int

const (
	// Producer is the ring's single producer slot.
	Producer ClientKind = iota
	// Consumer is one of the ring's indexed consumer slots.
	Consumer
)

// Client is the tagged (pid, role) pair the specification calls the
// Client variant: Producer{pid} or Consumer{pid, slot}.
type Client struct {
	Kind ClientKind
	Pid  uint32
	Slot uint32 // only meaningful when Kind == Consumer
}

// RingRecord is what the inventory remembers about one ring. Unmonitored
// holds clients discovered by bootstrap re-derivation: slots that were
// occupied when the daemon started, before any control connection
// existed to hold a liveness reservation for them.
type RingRecord struct {
	Name        string
	Unmonitored []Client
}

// Ring is the narrow slice of ringfile.Ring's API the inventory and its
// callers depend on -- expressed as an interface so tests can substitute
// a fake ring without touching the filesystem.
type Ring interface {
	Close() error
	MaxConsumers() uint32
	ProducerPid() uint32
	ConsumerPid(slot uint32) (uint32, error)
	SetProducer(pid uint32)
	SetConsumer(slot, pid uint32) error
	FreeProducer(expectedPid uint32)
	FreeConsumer(slot, expectedPid uint32) error
	GetUsage() ringfile.Status
}

// OpenFunc opens the ring-buffer backing file at path, the same contract
// as ringfile.Open. Injected so tests can fake ring discovery.
type OpenFunc func(path string) (Ring, error)

// DefaultOpen opens a real ringfile.Ring.
func DefaultOpen(path string) (Ring, error) {
	return ringfile.Open(path)
}

// Inventory is the process-wide, lock-guarded ring name index described
// by the specification. Every method takes the lock for the duration of
// its critical section and never holds it across blocking I/O against a
// client socket.
type Inventory struct {
	mu     sync.Mutex
	dir    string
	rings  map[string]*RingRecord
	open   OpenFunc
	logger *zap.Logger
}

// New creates an empty Inventory rooted at dir.
func New(dir string, open OpenFunc, logger *zap.Logger) *Inventory {
	if open == nil {
		open = DefaultOpen
	}
	return &Inventory{
		dir:    dir,
		rings:  make(map[string]*RingRecord),
		open:   open,
		logger: logger,
	}
}

// Dir returns the directory this inventory scans.
func (inv *Inventory) Dir() string { return inv.dir }

func (inv *Inventory) path(name string) string {
	return filepath.Join(inv.dir, name)
}

// Scan walks the inventory's directory once, attempting to open every
// entry as a ring-buffer backing file. Entries that open successfully
// are inserted by basename; entries that don't are logged and skipped.
// Ring names are always basenames -- the directory itself is never part
// of a name.
func (inv *Inventory) Scan() error {
	entries, err := os.ReadDir(inv.dir)
	if err != nil {
		return fmt.Errorf("inventory: read dir %s: %w", inv.dir, err)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ring, err := inv.open(inv.path(name))
		if err != nil {
			if inv.logger != nil {
				inv.logger.Debug("skipping non-ring file", zap.String("file", name), zap.Error(err))
			}
			continue
		}
		ring.Close()
		inv.rings[name] = &RingRecord{Name: name}
		if inv.logger != nil {
			inv.logger.Info("discovered ring", zap.String("ring", name))
		}
	}
	return nil
}

// Contains reports whether name is currently known to the inventory.
func (inv *Inventory) Contains(name string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.rings[name]
	return ok
}

// Record returns a copy of the named ring's bookkeeping, if known.
func (inv *Inventory) Record(name string) (RingRecord, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	rec, ok := inv.rings[name]
	if !ok {
		return RingRecord{}, false
	}
	return *rec, true
}

// SetUnmonitored replaces the bootstrap-derived client list for name,
// used by bootstrap re-derivation right after Scan.
func (inv *Inventory) SetUnmonitored(name string, clients []Client) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if rec, ok := inv.rings[name]; ok {
		rec.Unmonitored = clients
	}
}

// Register implements the REGISTER verb: if name is already known this
// is an idempotent no-op success. Otherwise it attempts to open the
// backing file at dir/name; on success the ring is inserted, on failure
// an error is returned (translated by the caller into a FAIL reply).
func (inv *Inventory) Register(name string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, ok := inv.rings[name]; ok {
		return nil
	}
	ring, err := inv.open(inv.path(name))
	if err != nil {
		return err
	}
	ring.Close()
	inv.rings[name] = &RingRecord{Name: name}
	return nil
}

// Unregister implements the UNREGISTER verb: removing a name that isn't
// present is tolerated and is not an error. The daemon never removes the
// backing file itself -- that remains the client's responsibility.
func (inv *Inventory) Unregister(name string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.rings, name)
}

// Snapshot is one ring's rendering for the LIST reply: its name plus a
// freshly re-read usage status.
type Snapshot struct {
	Name         string
	DataBytes    uint64
	MaxConsumers uint32
	Status       ringfile.Status
}

// ListSnapshot builds a consistent view of every known ring's current
// usage for the LIST reply. Rings whose backing file has since vanished
// are collected while building the snapshot and pruned from the
// inventory afterwards -- the lock is never held across the re-opens,
// only across the initial name collection and the final prune.
func (inv *Inventory) ListSnapshot() []Snapshot {
	inv.mu.Lock()
	names := make([]string, 0, len(inv.rings))
	for name := range inv.rings {
		names = append(names, name)
	}
	inv.mu.Unlock()

	sort.Strings(names) // deterministic wire order; the spec leaves order unspecified.

	snapshots := make([]Snapshot, 0, len(names))
	var stale []string
	for _, name := range names {
		ring, err := inv.open(inv.path(name))
		if err != nil {
			stale = append(stale, name)
			continue
		}
		status := ring.GetUsage()
		maxConsumers := ring.MaxConsumers()
		dataBytes := status.FreeSpace
		ring.Close()
		snapshots = append(snapshots, Snapshot{
			Name:         name,
			DataBytes:    dataBytes,
			MaxConsumers: maxConsumers,
			Status:       status,
		})
	}

	if len(stale) > 0 {
		inv.mu.Lock()
		for _, name := range stale {
			delete(inv.rings, name)
		}
		inv.mu.Unlock()
	}
	return snapshots
}

// Open opens the backing file for name using the injected OpenFunc. It
// is used by connection-drop cleanup and by CONNECT/DISCONNECT handling,
// both of which need a fresh handle on the ring's current header state.
func (inv *Inventory) Open(name string) (Ring, error) {
	return inv.open(inv.path(name))
}
