// Package export writes priced datasets to files and databases. Every sink
// follows aggregator.Columns.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sink persists one chain's dataset.
type Sink interface {
	Name() string
	Write(ctx context.Context, chain chains.Config, ds *aggregator.PricedDataset) error
}

// RawSink stores an arbitrary value read at one block, such as a whole
// snapshot or a per-account listing.
type RawSink interface {
	WriteRaw(ctx context.Context, chain chains.Config, name string, block uint64, v any) error
}

// fileName returns {dir}/{chain}_pool_rewards_{block}.{ext}.
func fileName(dir string, chain chains.Config, ds *aggregator.PricedDataset, ext string) string {
	return chainFileName(dir, chain, "pool_rewards", ds.BlockNumber, ext)
}

func chainFileName(dir string, chain chains.Config, name string, block uint64, ext string) string {
	file := fmt.Sprintf("%s_%s_%d.%s", strings.ReplaceAll(strings.ToLower(chain.Name), " ", "-"), name, block, ext)
	return filepath.Join(dir, file)
}

// writeFile writes data to path through a temporary file so readers never
// see a partial export.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
