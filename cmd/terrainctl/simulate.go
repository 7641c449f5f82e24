package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/outofforest/parallel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

const (
	defaultSteps  = 120
	frameInterval = 16 * time.Millisecond
	reportEvery   = 10
)

// cmdSimulate flies one viewer diagonally across the terrain at a fixed
// altitude and reports how much of its desired set is resident.
func cmdSimulate(ctx context.Context, cfg *config.Config, args []string) error {
	steps := defaultSteps
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		steps = n
	}

	st, err := openTerrainStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := terrain.New(cfg.Terrain, st,
		terrain.WithLogger(logger.Named("terrain")),
		terrain.WithLoadWorkers(cfg.Runtime.LoadWorkers))
	if err != nil {
		return err
	}
	registry := terrain.NewRegistry()
	if err := registry.AddTerrain(tr); err != nil {
		return err
	}
	view, err := registry.View(tr.ID(), uuid.New(), cfg.View)
	if err != nil {
		return err
	}
	defer registry.RemoveViewer(view.Key().Viewer)

	err = parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("terrain", parallel.Fail, tr.Run)
		if cfg.Runtime.MetricsAddr != "" {
			spawn("metrics", parallel.Fail, func(ctx context.Context) error {
				return serveMetrics(ctx, cfg.Runtime.MetricsAddr)
			})
		}
		spawn("viewer", parallel.Exit, func(ctx context.Context) error {
			return fly(ctx, registry, view, cfg, steps)
		})
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openTerrainStore opens the node store and, when runtime.preprocess is set,
// fills it from source tiles first.
func openTerrainStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Runtime.Preprocess {
		return st, nil
	}
	if err := preprocessInto(ctx, cfg, st); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func fly(ctx context.Context, registry *terrain.Registry, view *terrain.View, cfg *config.Config, steps int) error {
	extent := float64(cfg.Terrain.Size)
	altitude := cfg.Terrain.Height
	from := math.Vec3{X: 0, Y: altitude, Z: 0}
	to := math.Vec3{X: extent, Y: altitude, Z: extent}
	names := make([]string, 0, len(cfg.Terrain.Attachments))
	for _, a := range cfg.Terrain.Attachments {
		names = append(names, a.Name)
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	failures := 0
	for step := 0; step <= steps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pos := from.Lerp(to, float64(step)/float64(steps))
		for _, err := range registry.Frame(view.Key(), pos) {
			failures++
			logger.Debug("load failed", zap.Error(err))
		}

		if step%reportEvery != 0 && step != steps {
			continue
		}
		fmt.Printf("step %4d  pos (%7.0f, %7.0f)", step, pos.X, pos.Z)
		for _, name := range names {
			ready, desired := view.Ready(name)
			fmt.Printf("  %s %3d/%-3d", name, ready, desired)
		}
		fmt.Println()
	}

	qs := view.Stats()
	fmt.Printf("\nTraversals: %d, finest LOD %d, load failures %d\n", qs.Traversals, qs.FinestLOD, failures)
	for name, s := range view.Terrain().Stats() {
		fmt.Printf("%s: %d loads, %d evictions, %d failures, %d pending, %d/%d slots used\n",
			name, s.Loads, s.Evictions, s.Failures, s.Pending, s.Loading+s.Loaded+s.Evictable, s.Capacity)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
