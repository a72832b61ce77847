// Package ringmaster is a local control-plane daemon for POSIX
// shared-memory ring buffers used to stream data between cooperating
// processes on one host.
//
// It does not touch the ring buffer data plane itself (clients read and
// write ring contents directly via an mmap'd backing file). Instead it:
//
//   - discovers ring-buffer backing files in a directory at startup and
//     on REGISTER/UNREGISTER requests (internal/inventory)
//   - holds a TCP control connection open for the life of each attached
//     producer/consumer, freeing the corresponding header slot the
//     instant that connection drops (internal/daemon)
//   - forks a subprocess that inherits a remote peer's socket as its
//     standard output, to hoist ring data across hosts (internal/daemon)
//
// See cmd/ringmaster for the executable entry point.
package ringmaster
