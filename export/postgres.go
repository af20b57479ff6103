package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defistate/sugar-client-go/aggregator"
	"github.com/defistate/sugar-client-go/chains"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const poolRewardsTable = "pool_rewards"

// NewPool creates a Postgres connection pool and verifies it.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type PostgresConfig struct {
	Pool   *pgxpool.Pool
	Logger Logger
}

func (c *PostgresConfig) validate() error {
	if c.Pool == nil {
		return errors.New("config: Pool is required")
	}
	return nil
}

// PostgresSink copies datasets into the pool_rewards table. Writing the
// same chain and block again replaces the earlier rows.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger Logger
}

func NewPostgresSink(cfg PostgresConfig) (*PostgresSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresSink{pool: cfg.Pool, logger: cfg.Logger}, nil
}

func (s *PostgresSink) Name() string {
	return "postgres"
}

func (s *PostgresSink) Write(ctx context.Context, chain chains.Config, ds *aggregator.PricedDataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM pool_rewards WHERE chain_id = $1 AND block_number = $2`,
		int64(ds.ChainID), int64(ds.BlockNumber),
	)
	if err != nil {
		return fmt.Errorf("delete previous rows: %w", err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{poolRewardsTable},
		aggregator.Columns,
		pgx.CopyFromSlice(len(ds.Rows), func(i int) ([]any, error) {
			return ds.Values(i), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy pool rewards: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Info("Exported dataset", "sink", s.Name(), "chain", chain.Name, "rows", n, "block", ds.BlockNumber)
	return nil
}
