package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/ringfile"
)

func newTestInventory(t *testing.T) *Inventory {
	t.Helper()
	return New(t.TempDir(), DefaultOpen, zap.NewNop())
}

func makeRing(t *testing.T, dir, name string, maxConsumers uint32) {
	t.Helper()
	require.NoError(t, ringfile.Create(filepath.Join(dir, name), maxConsumers, 4096))
}

func TestScanDiscoversRingsAndSkipsJunk(t *testing.T) {
	inv := newTestInventory(t)
	makeRing(t, inv.Dir(), "ringA", 2)
	require.NoError(t, os.WriteFile(filepath.Join(inv.Dir(), "notes.txt"), []byte("hi"), 0644))

	require.NoError(t, inv.Scan())

	assert.True(t, inv.Contains("ringA"))
	assert.False(t, inv.Contains("notes.txt"))
}

func TestRegisterIsIdempotent(t *testing.T) {
	inv := newTestInventory(t)
	makeRing(t, inv.Dir(), "ringA", 2)

	require.NoError(t, inv.Register("ringA"))
	require.NoError(t, inv.Register("ringA"))
	assert.True(t, inv.Contains("ringA"))
}

func TestRegisterMissingFileFails(t *testing.T) {
	inv := newTestInventory(t)
	assert.Error(t, inv.Register("nosuchring"))
	assert.False(t, inv.Contains("nosuchring"))
}

func TestUnregisterUnknownIsTolerated(t *testing.T) {
	inv := newTestInventory(t)
	inv.Unregister("nosuchring")
	assert.False(t, inv.Contains("nosuchring"))
}

func TestListSnapshotPrunesVanishedRing(t *testing.T) {
	inv := newTestInventory(t)
	makeRing(t, inv.Dir(), "ringA", 2)
	require.NoError(t, inv.Register("ringA"))

	require.NoError(t, os.Remove(filepath.Join(inv.Dir(), "ringA")))

	snaps := inv.ListSnapshot()
	assert.Empty(t, snaps)
	assert.False(t, inv.Contains("ringA"))
}

func TestListSnapshotReportsUsage(t *testing.T) {
	inv := newTestInventory(t)
	makeRing(t, inv.Dir(), "ringA", 2)
	require.NoError(t, inv.Register("ringA"))

	ring, err := inv.Open("ringA")
	require.NoError(t, err)
	ring.SetProducer(555)
	ring.Close()

	snaps := inv.ListSnapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "ringA", snaps[0].Name)
	assert.Equal(t, uint32(2), snaps[0].MaxConsumers)
	assert.Equal(t, uint32(555), snaps[0].Status.ProducerPid)
}

func TestSetUnmonitoredOnlyAffectsKnownRing(t *testing.T) {
	inv := newTestInventory(t)
	makeRing(t, inv.Dir(), "ringA", 2)
	require.NoError(t, inv.Register("ringA"))

	clients := []Client{{Kind: Producer, Pid: 42}}
	inv.SetUnmonitored("ringA", clients)
	inv.SetUnmonitored("unknown", clients) // silently ignored

	rec, ok := inv.Record("ringA")
	require.True(t, ok)
	assert.Equal(t, clients, rec.Unmonitored)

	_, ok = inv.Record("unknown")
	assert.False(t, ok)
}
