package calibration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const fileExt = ".msgpack"

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
	log zerolog.Logger
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create calibration directory: %w", err)
	}
	return &FileStore{
		dir: dir,
		log: log.With().Str("component", "calibration_store").Str("store", "file").Logger(),
	}, nil
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, key.String()+fileExt)
}

func (s *FileStore) Get(ctx context.Context, key Key) (*Record, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read calibration %s: %w", key, err)
	}

	record, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("Ignoring corrupt calibration record")
		return nil, false, nil
	}
	return record, true, nil
}

// Put writes to a temporary file, syncs it and renames it over the target,
// so a crash leaves either the old record or the new one.
func (s *FileStore) Put(ctx context.Context, key Key, record *Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key.String()+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write calibration %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync calibration %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close calibration %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("failed to commit calibration %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key Key) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete calibration %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Keys(ctx context.Context) ([]Key, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}

	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		k, err := ParseKey(strings.TrimSuffix(name, fileExt))
		if err != nil {
			s.log.Warn().Str("file", name).Msg("Skipping unrecognized calibration file")
			continue
		}
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}
