// Package config parses and validates the ring-master's three
// command-line options.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Defaults, per the specification's CLI surface.
const (
	DefaultPortmanPort = uint16(30000)
	DefaultDirectory   = "/dev/shm"
)

// Config is the validated, ready-to-use result of flag parsing.
type Config struct {
	PortmanPort uint16
	Directory   string
	LogFile     string
}

// Parse reads args (typically os.Args[1:]) into a Config, applying
// defaults and validating that Directory exists and is readable. A
// missing or unreadable directory is the one fatal startup condition
// this package enforces itself -- everything else about a bad directory
// only surfaces later, as an empty inventory.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("ringmaster", pflag.ContinueOnError)

	portmanPort := fs.Uint16("portman-port", DefaultPortmanPort, "port where the port manager listens")
	directory := fs.String("directory", DefaultDirectory, "directory of ring-buffer backing files")
	logFile := fs.String("log-file", "", "path to the ring-master's log file (default /var/log/nscldaq/ringmaster.log)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PortmanPort: *portmanPort,
		Directory:   *directory,
		LogFile:     *logFile,
	}

	if err := checkDirectory(cfg.Directory); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("config: ring directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: ring directory %s is not a directory", dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("config: ring directory %s is not readable: %w", dir, err)
	}
	f.Close()
	return nil
}
