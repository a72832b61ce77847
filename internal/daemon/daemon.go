// Package daemon implements the ring-master's accept loop, connection
// protocol state machine, and remote-hoist handoff.
package daemon

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/inventory"
	"github.com/fribdaq/ringmaster/internal/portman"
)

// ServiceName is the name the ring-master advertises itself under with
// the port manager, and the name used for the single-instance check.
const ServiceName = "RingMaster"

// Config collects the daemon's startup options.
type Config struct {
	PortmanPort      uint16
	Directory        string
	RingToStdoutPath string // binary name or path for the hoister subprocess; defaults to "ring2stdout" on PATH.
}

// Daemon owns the shared Inventory and the accept loop. There is exactly
// one Daemon per process.
type Daemon struct {
	cfg     Config
	inv     *inventory.Inventory
	portman *portman.Client
	logger  *zap.Logger
	hoister *Hoister
}

// New builds a Daemon. inv should already have had Scan and Bootstrap
// run against it by the caller before Run is called.
func New(cfg Config, inv *inventory.Inventory, pm *portman.Client, logger *zap.Logger) *Daemon {
	bin := cfg.RingToStdoutPath
	if bin == "" {
		bin = "ring2stdout"
	}
	return &Daemon{
		cfg:     cfg,
		inv:     inv,
		portman: pm,
		logger:  logger,
		hoister: NewHoister(bin, cfg.Directory, cfg.PortmanPort, logger),
	}
}

// Run performs the single-instance gate, binds the listener, and serves
// connections until the listener errors (which is always treated as
// fatal, per the specification -- there is no graceful shutdown path).
func (d *Daemon) Run() error {
	existing, err := d.portman.FindByService(ServiceName)
	if err != nil {
		return fmt.Errorf("daemon: contacting port manager: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("daemon: %s is already advertised (pid owner %s) -- only one ring-master may run per port manager", ServiceName, existing[0].User)
	}

	port, err := d.portman.Get(ServiceName)
	if err != nil {
		return fmt.Errorf("daemon: allocating listen port: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("daemon: bind listener: %w", err)
	}
	defer ln.Close()

	d.logger.Info("ring-master listening", zap.Uint16("port", port), zap.String("directory", d.cfg.Directory))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("daemon: accept: %w", err)
		}
		h := newConnectionHandler(conn, d.inv, d.hoister, d.logger)
		go h.serve()
	}
}
