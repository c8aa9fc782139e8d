package calibration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/database"
)

// SQLiteStore keeps records in the calibration_records table.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store over a migrated calibration database.
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "calibration_store").Str("store", "sqlite").Logger(),
	}
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Record, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM calibration_records WHERE cache_key = ?", key.String(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read calibration %s: %w", key, err)
	}

	record, err := Decode(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("Ignoring corrupt calibration record")
		return nil, false, nil
	}
	return record, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, record *Record) error {
	payload, err := Encode(record)
	if err != nil {
		return err
	}
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO calibration_records
				(cache_key, backend, width, height, experiment_id, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.String(), key.Backend, key.Dims.Width, key.Dims.Height,
			record.ExperimentID, payload, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to store calibration %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM calibration_records WHERE cache_key = ?", key.String()); err != nil {
		return fmt.Errorf("failed to delete calibration %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT backend, width, height FROM calibration_records")
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Backend, &k.Dims.Width, &k.Dims.Height); err != nil {
			return nil, fmt.Errorf("failed to scan calibration key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	sortKeys(keys)
	return keys, nil
}
