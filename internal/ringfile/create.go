package ringfile

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Create synthesizes a valid ring-buffer backing file at path with the
// given consumer-slot count and data-region size, with every slot
// initialized to UnusedEntry.
//
// The real ring-buffer backing files this daemon manages are created by
// a separate NSCLDAQ tool, external to this repository's scope; Create
// exists only so tests can synthesize realistic fixtures without that
// external tool.
func Create(path string, maxConsumers uint32, dataBytes uint64) error {
	size := headerFixedSize + int(maxConsumers)*consumerSlotLen + int(dataBytes)
	buf := make([]byte, size)

	copy(buf[:headerMagicLen], magic[:])
	binary.LittleEndian.PutUint32(buf[headerMagicLen:], maxConsumers)
	binary.LittleEndian.PutUint64(buf[headerMagicLen+4:], dataBytes)
	binary.LittleEndian.PutUint32(buf[headerMagicLen+4+8:], UnusedEntry) // producer slot

	for slot := uint32(0); slot < maxConsumers; slot++ {
		off := headerFixedSize + int(slot)*consumerSlotLen
		binary.LittleEndian.PutUint32(buf[off:], UnusedEntry)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("ringfile: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("ringfile: write %s: %w", path, err)
	}
	return nil
}
