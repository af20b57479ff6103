package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
)

type CSVConfig struct {
	Dir    string
	Logger Logger
}

func (c *CSVConfig) validate() error {
	if c.Dir == "" {
		return errors.New("config: Dir is required")
	}
	return nil
}

// CSVSink writes one CSV file per chain and block. Decimal columns keep
// their exact value.
type CSVSink struct {
	dir    string
	logger Logger
}

func NewCSVSink(cfg CSVConfig) (*CSVSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &CSVSink{dir: cfg.Dir, logger: cfg.Logger}, nil
}

func (s *CSVSink) Name() string {
	return "csv"
}

func (s *CSVSink) Write(ctx context.Context, chain chains.Config, ds *aggregator.PricedDataset) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(aggregator.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Write(ds.Record(i)); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	path := fileName(s.dir, chain, ds, "csv")
	if err := writeFile(path, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Info("Exported dataset", "sink", s.Name(), "chain", chain.Name, "rows", len(ds.Rows), "path", path)
	return nil
}
