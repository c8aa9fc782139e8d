// Package calibration persists readout calibration experiments so that
// repeated runs against the same backend and lattice size skip the
// calibration circuits.
package calibration

import (
	"context"
	"sort"
)

// Store is a key/value cache of calibration records.
//
// Get reports a missing or undecodable record as absent (nil, false, nil);
// only infrastructure failures are returned as errors. Put replaces the record
// for a key atomically. Deleting an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key Key) (*Record, bool, error)
	Put(ctx context.Context, key Key, record *Record) error
	Delete(ctx context.Context, key Key) error
	Keys(ctx context.Context) ([]Key, error)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
