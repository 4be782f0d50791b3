package main

import (
	"flag"

	"github.com/banshee-data/gyrohook/internal/config"
)

type flags struct {
	configPath   string
	dataDir      string
	prefsName    string
	dbPath       string
	listenHost   string
	port         int
	pollInterval string
	adminListen  string
	serialPort   string
	serialBaud   int
	version      bool

	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "Path to a JSON service config")
	fs.StringVar(&f.dataDir, "data-dir", "", "Application data directory holding the calibration snapshot")
	fs.StringVar(&f.prefsName, "prefs-name", "", "Preferences name of the calibration snapshot")
	fs.StringVar(&f.dbPath, "db-path", "", "Path to the update journal database")
	fs.StringVar(&f.listenHost, "listen-host", "", "Interface for the ingest server")
	fs.IntVar(&f.port, "port", 0, "Ingest TCP port (default: the stored port)")
	fs.StringVar(&f.pollInterval, "poll-interval", "", "How often connection handlers check for shutdown")
	fs.StringVar(&f.adminListen, "admin-listen", "", "Listen address for the admin routes")
	fs.StringVar(&f.serialPort, "serial-port", "", "Serial device carrying calibration frames (disabled when empty)")
	fs.IntVar(&f.serialBaud, "serial-baud", 0, "Serial baud rate")
	fs.BoolVar(&f.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// serviceConfig loads the config file, if any, and overrides it with every
// flag given on the command line.
func (f *flags) serviceConfig() (*config.ServiceConfig, error) {
	cfg := config.EmptyServiceConfig()
	if f.configPath != "" {
		loaded, err := config.LoadServiceConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.set["data-dir"] {
		cfg.DataDir = &f.dataDir
	}
	if f.set["prefs-name"] {
		cfg.PrefsName = &f.prefsName
	}
	if f.set["db-path"] {
		cfg.DBPath = &f.dbPath
	}
	if f.set["listen-host"] {
		cfg.ListenHost = &f.listenHost
	}
	if f.set["port"] {
		cfg.ListenPort = &f.port
	}
	if f.set["poll-interval"] {
		cfg.PollInterval = &f.pollInterval
	}
	if f.set["admin-listen"] {
		cfg.AdminListen = &f.adminListen
	}
	if f.set["serial-port"] {
		cfg.SerialPort = &f.serialPort
	}
	if f.set["serial-baud"] {
		cfg.SerialBaudRate = &f.serialBaud
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
