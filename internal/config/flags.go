package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile = flag.String("log-file", "", "Write logs to this file")
	flagWorkers = flag.Int("workers", 0, "Concurrent lattice checks")
	flagBudget  = flag.Int("budget", 0, "Solver iteration budget per check")
	flagSeed    = flag.Uint64("seed", 0, "Random seed for breakable grids")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagWorkers > 0 {
		cfg.World.Workers = *flagWorkers
	}
	if *flagBudget > 0 {
		cfg.Solver.IterationBudget = *flagBudget
	}
	if *flagSeed != 0 {
		cfg.Breakable.Seed = *flagSeed
	}
}
