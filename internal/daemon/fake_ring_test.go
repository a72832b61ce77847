package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fribdaq/ringmaster/internal/inventory"
	"github.com/fribdaq/ringmaster/internal/ringfile"
)

// fakeRingState is the shared backing store behind a fake ring name,
// standing in for the bytes an mmap'd header would hold. Each Open call
// returns a new *fakeRing wrapper over the same state, mirroring how
// ringfile.Open maps the same on-disk file fresh each time.
type fakeRingState struct {
	mu           sync.Mutex
	maxConsumers uint32
	producer     uint32
	consumers    []uint32
}

func newFakeRingState(maxConsumers uint32) *fakeRingState {
	st := &fakeRingState{maxConsumers: maxConsumers, producer: ringfile.UnusedEntry}
	st.consumers = make([]uint32, maxConsumers)
	for i := range st.consumers {
		st.consumers[i] = ringfile.UnusedEntry
	}
	return st
}

type fakeRing struct {
	state *fakeRingState
}

func (r *fakeRing) Close() error         { return nil }
func (r *fakeRing) MaxConsumers() uint32 { return r.state.maxConsumers }
func (r *fakeRing) ProducerPid() uint32 {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.producer
}
func (r *fakeRing) ConsumerPid(slot uint32) (uint32, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if slot >= r.state.maxConsumers {
		return 0, fmt.Errorf("slot out of range")
	}
	return r.state.consumers[slot], nil
}
func (r *fakeRing) SetProducer(pid uint32) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.producer = pid
}
func (r *fakeRing) SetConsumer(slot, pid uint32) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if slot >= r.state.maxConsumers {
		return fmt.Errorf("slot out of range")
	}
	r.state.consumers[slot] = pid
	return nil
}
func (r *fakeRing) FreeProducer(expectedPid uint32) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if r.state.producer == expectedPid {
		r.state.producer = ringfile.UnusedEntry
	}
}
func (r *fakeRing) FreeConsumer(slot, expectedPid uint32) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if slot >= r.state.maxConsumers {
		return fmt.Errorf("slot out of range")
	}
	if r.state.consumers[slot] == expectedPid {
		r.state.consumers[slot] = ringfile.UnusedEntry
	}
	return nil
}
func (r *fakeRing) GetUsage() ringfile.Status {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var usage []ringfile.ConsumerUsage
	for _, pid := range r.state.consumers {
		if pid != ringfile.UnusedEntry {
			usage = append(usage, ringfile.ConsumerUsage{Pid: pid})
		}
	}
	return ringfile.Status{ProducerPid: r.state.producer, ConsumerUsage: usage}
}

// fakeInventoryDir returns an inventory.OpenFunc backed by in-memory fake
// rings instead of real files. It looks rings up by the base name of the
// path it is given; dir is not used.
func fakeInventoryDir(dir string, rings map[string]*fakeRingState) inventory.OpenFunc {
	return func(path string) (inventory.Ring, error) {
		name := filepath.Base(path)
		st, ok := rings[name]
		if !ok {
			return nil, fmt.Errorf("no such fake ring %s", name)
		}
		return &fakeRing{state: st}, nil
	}
}
