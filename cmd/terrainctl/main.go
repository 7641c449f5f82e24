// terrainctl is a CLI utility for preparing and inspecting streamed terrain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/store"
)

type command func(ctx context.Context, cfg *config.Config, args []string) error

var commands = map[string]command{
	"preprocess": cmdPreprocess,
	"info":       cmdInfo,
	"inspect":    cmdInspect,
	"synth":      cmdSynth,
	"simulate":   cmdSimulate,
	"init":       cmdInit,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := config.ParseArgs(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, cfg, config.Args()); err != nil {
		logger.Error("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terrainctl - terrain node streaming utility

Usage:
  terrainctl <command> [flags] [args]

Commands:
  init [file]                   Write the effective config (default: user config dir)
  synth                         Write synthetic source tiles for every attachment
  preprocess                    Build node artifacts from source tiles
  info                          Show stored attachments and nodes per level
  inspect <attachment> <L/X/Y>  Decode one node artifact and print mip stats
  simulate [steps]              Fly a viewer across the terrain and report residency

Flags:
  -config <file>       Config file (default ./terrain.yaml)
  -terrain <dir>       Node store root
  -store <kind>        Node store backend: file, badger or memory
  -preprocess          Preprocess source tiles before simulating
  -atlas-size <n>      Atlas slots per attachment
  -view-distance <d>   Split distance of a level 0 node
  -workers <n>         Concurrent loads per attachment
  -metrics <addr>      Serve Prometheus metrics while simulating
  -debug               Debug logging

Examples:
  terrainctl synth -config terrain.yaml
  terrainctl preprocess -config terrain.yaml -store badger
  terrainctl inspect -config terrain.yaml dtm 0/3/2
  terrainctl simulate -config terrain.yaml -atlas-size 64 200
  terrainctl simulate -config terrain.yaml -store memory -preprocess`)
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(cfg.Runtime.Store, cfg.Terrain.Path, logger.Named("store"))
}
