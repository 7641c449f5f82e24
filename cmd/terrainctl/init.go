package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Faultbox/midgard-terrain/internal/config"
)

// cmdInit writes the effective config, defaults merged with the config file
// and flags, so it can be edited and passed back with -config.
func cmdInit(_ context.Context, cfg *config.Config, args []string) error {
	path := config.UserConfigPath()
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if len(args) > 0 {
		if err := cfg.SaveTo(path); err != nil {
			return err
		}
	} else if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}
