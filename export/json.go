package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
)

type JSONConfig struct {
	Dir    string
	Logger Logger
}

func (c *JSONConfig) validate() error {
	if c.Dir == "" {
		return errors.New("config: Dir is required")
	}
	return nil
}

// JSONSink writes a dataset as an indented array of records, one object per
// row with the keys in column order. Values are the column strings, so
// decimals keep their exact value. It also stores raw values as JSON.
type JSONSink struct {
	dir    string
	logger Logger
}

func NewJSONSink(cfg JSONConfig) (*JSONSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &JSONSink{dir: cfg.Dir, logger: cfg.Logger}, nil
}

func (s *JSONSink) Name() string {
	return "json"
}

// record marshals as an object whose keys keep the column order.
type record struct {
	columns []string
	values  []string
}

func (r record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *JSONSink) Write(ctx context.Context, chain chains.Config, ds *aggregator.PricedDataset) error {
	records := make([]record, 0, len(ds.Rows))
	for i := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		records = append(records, record{columns: aggregator.Columns, values: ds.Record(i)})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json records: %w", err)
	}

	path := fileName(s.dir, chain, ds, "json")
	if err := writeFile(path, data); err != nil {
		return err
	}
	s.logger.Info("Exported dataset", "sink", s.Name(), "chain", chain.Name, "rows", len(ds.Rows), "path", path)
	return nil
}

// WriteRaw stores v as {dir}/{chain}_{name}_{block}.json.
func (s *JSONSink) WriteRaw(ctx context.Context, chain chains.Config, name string, block uint64, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	path := chainFileName(s.dir, chain, name, block, "json")
	if err := writeFile(path, data); err != nil {
		return err
	}
	s.logger.Debug("Saved raw data", "sink", s.Name(), "chain", chain.Name, "name", name, "path", path)
	return nil
}
