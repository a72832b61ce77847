// Command ringmaster runs the ring-master control-plane daemon.
package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fribdaq/ringmaster/internal/config"
	"github.com/fribdaq/ringmaster/internal/daemon"
	"github.com/fribdaq/ringmaster/internal/inventory"
	"github.com/fribdaq/ringmaster/internal/logging"
	"github.com/fribdaq/ringmaster/internal/portman"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ringmaster: %v\n", err)
		os.Exit(1)
	}

	logger, fallbackNote := logging.Open(cfg.LogFile)
	defer logger.Sync()
	if fallbackNote != "" {
		logger.Warn(fallbackNote)
	}

	inv := inventory.New(cfg.Directory, inventory.DefaultOpen, logger)
	if err := inv.Scan(); err != nil {
		logger.Fatal("scanning ring directory", zap.String("directory", cfg.Directory), zap.Error(err))
	}
	daemon.Bootstrap(inv, logger)

	pm := portman.NewWithTimeout(cfg.PortmanPort, 5*time.Second)
	defer pm.Close()

	d := daemon.New(daemon.Config{
		PortmanPort: cfg.PortmanPort,
		Directory:   cfg.Directory,
	}, inv, pm, logger)

	if err := d.Run(); err != nil {
		logger.Fatal("ring-master exiting", zap.Error(err))
	}
}
