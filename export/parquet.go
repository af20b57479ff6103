package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRow mirrors aggregator.Columns.
type parquetRow struct {
	ChainID            int64   `parquet:"name=chain_id, type=INT64"`
	BlockNumber        int64   `parquet:"name=block_number, type=INT64"`
	LP                 string  `parquet:"name=lp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol             string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	PoolType           int64   `parquet:"name=pool_type, type=INT64"`
	Token0             string  `parquet:"name=token0, type=BYTE_ARRAY, convertedtype=UTF8"`
	Token1             string  `parquet:"name=token1, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reserve0           float64 `parquet:"name=reserve0, type=DOUBLE"`
	Reserve1           float64 `parquet:"name=reserve1, type=DOUBLE"`
	Token0USD          float64 `parquet:"name=token0_usd, type=DOUBLE"`
	Token1USD          float64 `parquet:"name=token1_usd, type=DOUBLE"`
	Reserve0USD        float64 `parquet:"name=reserve0_usd, type=DOUBLE"`
	Reserve1USD        float64 `parquet:"name=reserve1_usd, type=DOUBLE"`
	TVLUSD             float64 `parquet:"name=tvl_usd, type=DOUBLE"`
	Token0FeesUSD      float64 `parquet:"name=token0_fees_usd, type=DOUBLE"`
	Token1FeesUSD      float64 `parquet:"name=token1_fees_usd, type=DOUBLE"`
	GaugeAlive         bool    `parquet:"name=gauge_alive, type=BOOLEAN"`
	HasEpoch           bool    `parquet:"name=has_epoch, type=BOOLEAN"`
	EpochTimestamp     int64   `parquet:"name=epoch_ts, type=INT64"`
	Votes              float64 `parquet:"name=votes, type=DOUBLE"`
	Emissions          float64 `parquet:"name=emissions, type=DOUBLE"`
	BribesUSD          float64 `parquet:"name=bribes_usd, type=DOUBLE"`
	FeesUSD            float64 `parquet:"name=fees_usd, type=DOUBLE"`
	TotalIncentivesUSD float64 `parquet:"name=total_incentives_usd, type=DOUBLE"`
	BribeTokenPrices   string  `parquet:"name=bribe_token_prices, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func newParquetRow(v []any) parquetRow {
	return parquetRow{
		ChainID:            v[0].(int64),
		BlockNumber:        v[1].(int64),
		LP:                 v[2].(string),
		Symbol:             v[3].(string),
		PoolType:           v[4].(int64),
		Token0:             v[5].(string),
		Token1:             v[6].(string),
		Reserve0:           v[7].(float64),
		Reserve1:           v[8].(float64),
		Token0USD:          v[9].(float64),
		Token1USD:          v[10].(float64),
		Reserve0USD:        v[11].(float64),
		Reserve1USD:        v[12].(float64),
		TVLUSD:             v[13].(float64),
		Token0FeesUSD:      v[14].(float64),
		Token1FeesUSD:      v[15].(float64),
		GaugeAlive:         v[16].(bool),
		HasEpoch:           v[17].(bool),
		EpochTimestamp:     v[18].(int64),
		Votes:              v[19].(float64),
		Emissions:          v[20].(float64),
		BribesUSD:          v[21].(float64),
		FeesUSD:            v[22].(float64),
		TotalIncentivesUSD: v[23].(float64),
		BribeTokenPrices:   v[24].(string),
	}
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

type ParquetConfig struct {
	Dir string
	// Compression is snappy, gzip or none. Default snappy.
	Compression string
	Logger      Logger
}

func (c *ParquetConfig) validate() error {
	if c.Dir == "" {
		return errors.New("config: Dir is required")
	}
	switch strings.ToLower(c.Compression) {
	case "", "snappy", "gzip", "none":
		return nil
	default:
		return fmt.Errorf("config: unknown parquet compression %q", c.Compression)
	}
}

// ParquetSink writes one parquet file per chain and block. Decimal columns
// are stored as doubles.
type ParquetSink struct {
	dir         string
	compression parquet.CompressionCodec
	logger      Logger
}

func NewParquetSink(cfg ParquetConfig) (*ParquetSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &ParquetSink{dir: cfg.Dir, logger: cfg.Logger}
	switch strings.ToLower(cfg.Compression) {
	case "gzip":
		s.compression = parquet.CompressionCodec_GZIP
	case "none":
		s.compression = parquet.CompressionCodec_UNCOMPRESSED
	default:
		s.compression = parquet.CompressionCodec_SNAPPY
	}
	return s, nil
}

func (s *ParquetSink) Name() string {
	return "parquet"
}

func (s *ParquetSink) Write(ctx context.Context, chain chains.Config, ds *aggregator.PricedDataset) error {
	data, err := s.encode(ctx, ds)
	if err != nil {
		return err
	}
	path := fileName(s.dir, chain, ds, "parquet")
	if err := writeFile(path, data); err != nil {
		return err
	}
	s.logger.Info("Exported dataset", "sink", s.Name(), "chain", chain.Name, "rows", len(ds.Rows), "bytes", len(data), "path", path)
	return nil
}

func (s *ParquetSink) encode(ctx context.Context, ds *aggregator.PricedDataset) ([]byte, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(parquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = s.compression

	for i := range ds.Rows {
		if err := ctx.Err(); err != nil {
			pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(newParquetRow(ds.Values(i))); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}
