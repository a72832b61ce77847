package daemon

import (
	"fmt"
	"net"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Hoister spawns the ring2stdout subordinate that actually streams a
// ring's bytes to a remote peer. The ring-master's own involvement ends
// the moment the subprocess is started: its standard output is bound to
// a duplicate of the client socket, so once ring2stdout registers with
// the ring-master as an ordinary consumer and starts writing, the data
// plane is entirely between ring2stdout and the peer.
type Hoister struct {
	binary      string
	directory   string
	portmanPort uint16
	logger      *zap.Logger
}

// NewHoister builds a Hoister that spawns binary (resolved against
// $PATH) with the given ring directory and port-manager port baked into
// every invocation.
func NewHoister(binary, directory string, portmanPort uint16, logger *zap.Logger) *Hoister {
	return &Hoister{binary: binary, directory: directory, portmanPort: portmanPort, logger: logger}
}

// Spawn forks ring2stdout for ring name, with its standard output bound
// to a duplicate of conn's underlying file descriptor. conn must be a
// *net.TCPConn for the descriptor duplication to be possible; any other
// net.Conn implementation is rejected, since there is no portable way to
// get at its file descriptor.
func (h *Hoister) Spawn(name string, conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("hoist: connection is not a TCP socket")
	}

	// File() returns a *os.File wrapping a dup of the socket's
	// descriptor, in blocking mode. On platforms where the Go runtime
	// cannot duplicate a socket (Windows), File returns an error and
	// Spawn fails.
	sockFile, err := tcpConn.File()
	if err != nil {
		return fmt.Errorf("hoist: duplicate socket: %w", err)
	}
	defer sockFile.Close() // exec.Cmd dups this again into the child; our copy is no longer needed once Start returns.

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("hoist: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(h.binary,
		"--directory", h.directory,
		"--ring", name,
		"--port", fmt.Sprintf("%d", h.portmanPort),
		"--comment", fmt.Sprintf("Hoisting to %s", conn.RemoteAddr()),
	)
	cmd.Stdin = devNull
	cmd.Stdout = sockFile
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("hoist: spawn %s: %w", h.binary, err)
	}
	if h.logger != nil {
		h.logger.Info("spawned hoister", zap.String("ring", name), zap.Int("pid", cmd.Process.Pid), zap.Stringer("peer", conn.RemoteAddr()))
	}

	// Release the child without waiting for it: ring-master's
	// involvement ends here, and a zombie is avoided by reaping it in
	// the background instead of blocking this connection's handler.
	go func() {
		if err := cmd.Wait(); err != nil && h.logger != nil {
			h.logger.Debug("hoister exited", zap.String("ring", name), zap.Error(err))
		}
	}()
	return nil
}
