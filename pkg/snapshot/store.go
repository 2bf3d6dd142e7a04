package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is the append-only snapshot fact store. It owns a single SQLite
// handle; writes are serialized through mu so a concurrent reader never
// observes a partial upsert.
type Store struct {
	Logger *zap.Logger
	Path   string

	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the snapshot database at path and applies
// the schema. The handle must be released with Close on all exit paths.
func Open(ctx context.Context, logger *zap.Logger, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("snapshot db path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot db: %w", err)
	}

	s := &Store{
		Logger: logger.With(zap.String("component", "snapshot_store"), zap.String("db", cleanPath)),
		Path:   cleanPath,
		db:     db,
	}

	if err := s.InitializeDB(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.Logger.Info("Snapshot store ready")
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the underlying handle is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InitializeDB creates all tables and indexes and seeds the strategy
// reference set.
func (s *Store) InitializeDB(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "init schema", Err: err}
		}
	}
	if err := s.seedStrategies(ctx); err != nil {
		return err
	}
	return nil
}

// Reset drops all snapshot data. Metadata and the strategy reference set are
// re-seeded. Irreversible; used only by the explicit admin data-reset.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.wipe(ctx); err != nil {
		return err
	}

	s.Logger.Warn("Snapshot store reset")
	return s.seedStrategies(ctx)
}

func (s *Store) wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "reset begin", Err: err}
	}
	for _, table := range []string{"snapshot_facts", "registrations", "operators", "avs", "strategies"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			_ = tx.Rollback()
			return &StorageError{Op: "reset " + table, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "reset commit", Err: err}
	}
	return nil
}

// seedStrategies upserts the strategy reference set so price lookups and the
// distribution join always have token metadata to work with.
func (s *Store) seedStrategies(ctx context.Context) error {
	for _, st := range seedStrategies {
		if err := s.UpsertStrategy(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// seedStrategies is the reference set of mainnet strategies.
var seedStrategies = []Strategy{
	{
		Address:         "0x93c4b944d05dfe6df7645a86cd2206016c51564d",
		Symbol:          "stETH",
		Name:            "Lido Staked ETH",
		UnderlyingToken: "0xae7ab96520de3a18e5e111b5eaab095312d7fe84",
		CoingeckoID:     "staked-ether",
		Decimals:        18,
	},
	{
		Address:         "0x1bee69b7dfffa4e2d53c2a2df135c388ad25dcd2",
		Symbol:          "rETH",
		Name:            "Rocket Pool ETH",
		UnderlyingToken: "0xae78736cd615f374d3085123a210448e74fc6393",
		CoingeckoID:     "rocket-pool-eth",
		Decimals:        18,
	},
	{
		Address:         "0x54945180db7943c0ed0fee7edab2bd24620256bc",
		Symbol:          "cbETH",
		Name:            "Coinbase Wrapped ETH",
		UnderlyingToken: "0xbe9895146f7af43049ca1c1ae358b0541ea49704",
		CoingeckoID:     "coinbase-wrapped-staked-eth",
		Decimals:        18,
	},
	{
		Address:         "0xacb55c530acdb2849e6d4f36992cd8c9d50ed8f7",
		Symbol:          "EIGEN",
		Name:            "Eigen",
		UnderlyingToken: "0xec53bf9167f50cdeb3ae105f56099aaab9061f83",
		CoingeckoID:     "eigenlayer",
		Decimals:        18,
	},
	{
		Address:         "0xbeac0eeeeeeeeeeeeeeeeeeeeeeeeeeeeeebeac0",
		Symbol:          "beaconETH",
		Name:            "Beacon ETH",
		UnderlyingToken: "0xbeac0eeeeeeeeeeeeeeeeeeeeeeeeeeeeeebeac0",
		CoingeckoID:     "ethereum",
		Decimals:        18,
	},
}
