package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagTerrain      = flag.String("terrain", "", "Terrain store root")
	flagStore        = flag.String("store", "", "Node store backend (file, badger, memory)")
	flagPreprocess   = flag.Bool("preprocess", false, "Preprocess source tiles before streaming")
	flagAtlasSize    = flag.Int("atlas-size", 0, "Node atlas slots per attachment")
	flagViewDistance = flag.Float64("view-distance", 0, "Split distance of a level 0 node")
	flagWorkers      = flag.Int("workers", 0, "Concurrent atlas loads per attachment")
	flagMetrics      = flag.String("metrics", "", "Prometheus listen address")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ParseArgs parses flags from args instead of os.Args, for subcommands.
func ParseArgs(args []string) error {
	return flag.CommandLine.Parse(args)
}

// Args returns the non-flag arguments left after parsing.
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
	if *flagTerrain != "" {
		cfg.Terrain.Path = *flagTerrain
	}
	if *flagStore != "" {
		cfg.Runtime.Store = *flagStore
	}
	if *flagPreprocess {
		cfg.Runtime.Preprocess = true
	}
	if *flagAtlasSize > 0 {
		cfg.Terrain.NodeAtlasSize = *flagAtlasSize
	}
	if *flagViewDistance > 0 {
		cfg.View.ViewDistance = *flagViewDistance
	}
	if *flagWorkers > 0 {
		cfg.Runtime.LoadWorkers = *flagWorkers
	}
	if *flagMetrics != "" {
		cfg.Runtime.MetricsAddr = *flagMetrics
	}
}
