package provider

import (
	"context"
	"fmt"
)

// TileFetcher retrieves one tile payload by name. exists is false when
// the provider has no such tile, which terminates that branch without
// error.
type TileFetcher func(ctx context.Context, name string) (payload []byte, exists bool, err error)

// DefaultMaxTileDepth bounds quadtree descent. Outage map tile sets
// are shallow; anything deeper is a malformed or adversarial tree.
const DefaultMaxTileDepth = 10

const tileBranchingFactor = 4

// WalkTiles discovers a quadtree tile set by naming convention:
// children of tile "t" are "t0".."t3". A visited set keyed by tile
// name guarantees termination; a name seen twice is treated as a
// terminal branch, not an error. Payloads are returned in discovery
// order.
func WalkTiles(ctx context.Context, fetch TileFetcher, roots []string, maxDepth int) ([][]byte, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTileDepth
	}

	visited := make(map[string]bool)
	var payloads [][]byte

	var walk func(name string, depth int) error
	walk = func(name string, depth int) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if depth > maxDepth || visited[name] {
			return nil
		}
		visited[name] = true

		payload, exists, err := fetch(ctx, name)
		if err != nil {
			return fmt.Errorf("tile %s: %w", name, err)
		}
		if !exists {
			return nil
		}
		payloads = append(payloads, payload)

		for k := 0; k < tileBranchingFactor; k++ {
			if err := walk(fmt.Sprintf("%s%d", name, k), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, 1); err != nil {
			return nil, err
		}
	}

	return payloads, nil
}
