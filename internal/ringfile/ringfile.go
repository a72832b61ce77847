// Package ringfile maps a ring-buffer backing file and gives access to
// its producer/consumer slot header. It plays the role the specification
// calls the RingMap collaborator: the ring-master's only window into the
// shared-memory accounting of unrelated producer/consumer processes.
//
// The mmap/munmap plumbing and the mutex-guarded access pattern are
// carried over from a disk-backed ring buffer library; unlike that
// library's byte-stream ring (which wraps reads and writes around a
// doubled virtual-memory mirror), this ring-master never reads or writes
// the data region, so there is no wrap-around to model. Only the
// fixed-offset header fields are ever touched.
package ringfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// UnusedEntry is the sentinel pid value that marks an empty producer or
// consumer slot. It is distinguishable from any live pid, including 0.
const UnusedEntry uint32 = 0xFFFFFFFF

// magic identifies a file as a ring-buffer backing file. It is written at
// the start of every ring created with Create.
var magic = [8]byte{'R', 'I', 'N', 'G', 'M', 'A', 'S', 'T'}

const (
	headerMagicLen  = 8
	headerFixedSize = headerMagicLen + 4 /* maxConsumers */ + 8 /* dataBytes */ + 4 /* producerPid */
	consumerSlotLen = 4 /* pid */ + 4 /* pad */ + 8 /* available */
)

// Status mirrors the specification's RingStatus: a snapshot of header
// occupancy suitable for the LIST reply and for bootstrap re-derivation.
type Status struct {
	FreeSpace     uint64
	ProducerPid   uint32
	MaxQueued     uint64
	ConsumerUsage []ConsumerUsage
}

// ConsumerUsage is one consumer slot's occupant and backlog.
type ConsumerUsage struct {
	Pid       uint32
	Available uint64
}

// Ring is a memory-mapped view of a ring-buffer backing file's header.
// All access is serialized by mu; the file is shared with unrelated
// processes, so mu only protects this process's view, not the header
// itself -- slot mutation is expected to be safe by construction because
// FreeProducer/FreeConsumer only ever clear a slot that still matches an
// expected occupant.
type Ring struct {
	mu           sync.Mutex
	file         *os.File
	buf          []byte
	maxConsumers uint32
	dataBytes    uint64
}

// Open opens and validates the ring-buffer backing file at path. A
// missing file, a file too small to hold a header, or a bad magic are
// all reported as an error -- the caller (typically Inventory.Scan or
// a REGISTER handler) is expected to treat that as "not a ring" rather
// than propagate a fatal error.
func Open(path string) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("ringfile: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ringfile: stat %s: %w", path, err)
	}
	if st.Size() < headerFixedSize {
		f.Close()
		return nil, fmt.Errorf("ringfile: %s too small to be a ring", path)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ringfile: mmap %s: %w", path, err)
	}

	r := &Ring{file: f, buf: buf}
	if !r.validateMagic() {
		unix.Munmap(buf)
		f.Close()
		return nil, fmt.Errorf("ringfile: %s has no ring magic", path)
	}
	r.maxConsumers = binary.LittleEndian.Uint32(buf[headerMagicLen:])
	r.dataBytes = binary.LittleEndian.Uint64(buf[headerMagicLen+4:])

	need := headerFixedSize + int(r.maxConsumers)*consumerSlotLen
	if len(buf) < need {
		unix.Munmap(buf)
		f.Close()
		return nil, fmt.Errorf("ringfile: %s header truncated", path)
	}
	return r, nil
}

func (r *Ring) validateMagic() bool {
	return string(r.buf[:headerMagicLen]) == string(magic[:])
}

// Close unmaps the header and closes the underlying file.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := unix.Munmap(r.buf); err != nil {
		return err
	}
	return r.file.Close()
}

// MaxConsumers returns the number of consumer slots this ring supports.
func (r *Ring) MaxConsumers() uint32 {
	return r.maxConsumers
}

// DataBytes returns the size, in bytes, of the ring's data region.
func (r *Ring) DataBytes() uint64 {
	return r.dataBytes
}

func (r *Ring) producerOffset() int { return headerMagicLen + 4 + 8 }

func (r *Ring) consumerOffset(slot uint32) int {
	return headerFixedSize + int(slot)*consumerSlotLen
}

// ProducerPid returns the pid currently occupying the producer slot, or
// UnusedEntry if the slot is empty.
func (r *Ring) ProducerPid() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return binary.LittleEndian.Uint32(r.buf[r.producerOffset():])
}

// ConsumerPid returns the pid occupying the given consumer slot, or
// UnusedEntry if it is empty. An out-of-range slot is reported as an
// error, matching the specification's "detected lazily on first slot
// access" CONNECT edge case.
func (r *Ring) ConsumerPid(slot uint32) (uint32, error) {
	if slot >= r.maxConsumers {
		return 0, fmt.Errorf("ringfile: consumer slot %d out of range (max %d)", slot, r.maxConsumers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	off := r.consumerOffset(slot)
	return binary.LittleEndian.Uint32(r.buf[off:]), nil
}

func (r *Ring) consumerAvailable(slot uint32) uint64 {
	off := r.consumerOffset(slot) + 8
	return binary.LittleEndian.Uint64(r.buf[off:])
}

// SetProducer claims the producer slot for pid unconditionally. It is
// used by CONNECT; ring-master semantics
// never require displacing an existing producer, so no CAS is needed
// here -- the caller has already checked preconditions.
func (r *Ring) SetProducer(pid uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binary.LittleEndian.PutUint32(r.buf[r.producerOffset():], pid)
}

// SetConsumer claims a consumer slot for pid.
func (r *Ring) SetConsumer(slot, pid uint32) error {
	if slot >= r.maxConsumers {
		return fmt.Errorf("ringfile: consumer slot %d out of range (max %d)", slot, r.maxConsumers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	off := r.consumerOffset(slot)
	binary.LittleEndian.PutUint32(r.buf[off:], pid)
	return nil
}

// FreeProducer clears the producer slot if, and only if, it is currently
// held by expectedPid. It is a silent no-op if the occupant differs --
// the slot may have been legitimately re-used by another connection.
func (r *Ring) FreeProducer(expectedPid uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ptr := (*uint32)(unsafe.Pointer(&r.buf[r.producerOffset()]))
	atomic.CompareAndSwapUint32(ptr, expectedPid, UnusedEntry)
}

// FreeConsumer clears the given consumer slot if it is currently held by
// expectedPid; otherwise it is a silent no-op.
func (r *Ring) FreeConsumer(slot, expectedPid uint32) error {
	if slot >= r.maxConsumers {
		return fmt.Errorf("ringfile: consumer slot %d out of range (max %d)", slot, r.maxConsumers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	off := r.consumerOffset(slot)
	ptr := (*uint32)(unsafe.Pointer(&r.buf[off]))
	atomic.CompareAndSwapUint32(ptr, expectedPid, UnusedEntry)
	return nil
}

// GetUsage builds a Status snapshot of the whole ring header, used by
// LIST encoding and by bootstrap re-derivation.
func (r *Ring) GetUsage() Status {
	r.mu.Lock()
	producer := binary.LittleEndian.Uint32(r.buf[r.producerOffset():])
	var usage []ConsumerUsage
	var maxQueued uint64
	for slot := uint32(0); slot < r.maxConsumers; slot++ {
		off := r.consumerOffset(slot)
		pid := binary.LittleEndian.Uint32(r.buf[off:])
		if pid == UnusedEntry {
			continue
		}
		avail := r.consumerAvailable(slot)
		usage = append(usage, ConsumerUsage{Pid: pid, Available: avail})
		if avail > maxQueued {
			maxQueued = avail
		}
	}
	data := r.dataBytes
	r.mu.Unlock()

	return Status{
		FreeSpace:     data,
		ProducerPid:   producer,
		MaxQueued:     maxQueued,
		ConsumerUsage: usage,
	}
}
