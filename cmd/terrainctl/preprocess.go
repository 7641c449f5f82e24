package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/preprocess"
	"github.com/Faultbox/midgard-terrain/internal/store"
	"github.com/Faultbox/midgard-terrain/pkg/node"
)

func cmdPreprocess(ctx context.Context, cfg *config.Config, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return preprocessInto(ctx, cfg, st)
}

// preprocessInto builds every configured attachment into st and prints the result.
func preprocessInto(ctx context.Context, cfg *config.Config, st store.Store) error {
	p, err := preprocess.FromConfig(st, cfg.Terrain,
		preprocess.WithLogger(logger.Named("preprocess")),
		preprocess.WithWorkers(cfg.Runtime.PreprocessWorkers))
	if err != nil {
		return err
	}

	logger.Info("preprocessing", zap.String("store", cfg.Runtime.Store), zap.String("path", cfg.Terrain.Path))
	res, runErr := p.Preprocess(ctx, cfg.Terrain)
	if res != nil {
		printResult(res)
	}
	return runErr
}

func printResult(res *preprocess.Result) {
	names := lo.Keys(res.Attachments)
	slices.Sort(names)

	for _, name := range names {
		a := res.Attachments[name]
		fmt.Printf("Attachment: %s\n", name)
		fmt.Printf("  Nodes:   %d\n", len(a.Index))
		fmt.Printf("  Tiles:   %d read, %d missing\n", a.TilesRead, a.TilesMissing)
		if a.Pruned > 0 {
			fmt.Printf("  Pruned:  %d stale nodes\n", a.Pruned)
		}
		fmt.Printf("  Time:    %v\n", a.Duration)
		for lod, n := range a.PerLevel {
			fmt.Printf("  LOD %-3d %d\n", lod, n)
		}
	}
	fmt.Printf("Total time: %v\n", res.Duration)
}

func cmdInfo(_ context.Context, cfg *config.Config, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := st.Attachments()
	if err != nil {
		return err
	}

	fmt.Printf("Store:       %s (%s)\n", cfg.Terrain.Path, cfg.Runtime.Store)
	fmt.Printf("Terrain:     %d units, %d levels, leaf %d units\n", cfg.Terrain.Size, cfg.Terrain.LODCount, cfg.Terrain.LeafSize())
	fmt.Printf("Attachments: %d\n", len(names))

	for _, name := range names {
		ids, err := st.Index(name)
		if err != nil {
			return fmt.Errorf("reading index of %s: %w", name, err)
		}
		counts := lo.CountValuesBy(ids, func(id node.NodeID) uint8 { return id.LOD })
		missing, err := missingArtifacts(st, name, ids)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Printf("%s: %d nodes\n", name, len(ids))
		if len(missing) > 0 {
			fmt.Printf("  Missing: %d indexed nodes have no artifact, first %s\n", len(missing), missing[0])
		}
		if a, ok := cfg.Terrain.Attachment(name); ok {
			layout := a.Layout()
			fmt.Printf("  Layout:  %dpx %s, %d mips, border %d, %d bytes per node\n",
				a.TextureSize, a.Format, a.MipLevelCount, a.BorderSize(), layout.ArtifactSize())
		} else {
			fmt.Println("  Layout:  not in config")
		}
		lods := lo.Keys(counts)
		slices.Sort(lods)
		for _, lod := range lods {
			fmt.Printf("  LOD %-3d %d / %d\n", lod, counts[lod], nodesAt(cfg.Terrain, lod))
		}
	}
	return nil
}

// missingArtifacts returns the indexed nodes whose artifact is gone.
func missingArtifacts(st store.Store, attachment string, ids []node.NodeID) ([]node.NodeID, error) {
	var missing []node.NodeID
	for _, id := range ids {
		ok, err := st.Has(attachment, id)
		if err != nil {
			return nil, fmt.Errorf("checking %s %s: %w", attachment, id, err)
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// nodesAt counts the nodes of a level that intersect the terrain.
func nodesAt(t config.TerrainConfig, lod uint8) int {
	size := t.NodeSize(lod)
	side := int((float64(t.Size) + size - 1) / size)
	side = min(side, int(node.NodesPerSide(t.LODCount, lod)))
	return side * side
}
