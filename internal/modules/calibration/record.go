package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/qlbm/internal/domain"
)

// ErrCorruptRecord is returned when stored bytes do not decode to a valid record.
var ErrCorruptRecord = errors.New("corrupt calibration record")

// RawCalibration is the raw output of a correlated readout calibration
// experiment: one histogram per prepared basis state.
type RawCalibration struct {
	Qubits []int `msgpack:"qubits"`
	Shots  int   `msgpack:"shots"`
	// Counts maps the prepared basis state to the histogram measured for it.
	Counts map[string]domain.Histogram `msgpack:"counts"`
}

// Record is the persisted (raw result, experiment id) pair.
type Record struct {
	Payload      RawCalibration `msgpack:"payload"`
	ExperimentID string         `msgpack:"experiment_id"`
	CreatedAt    time.Time      `msgpack:"created_at"`
}

// SameQubits reports whether the record was measured on exactly qubits, in order.
func (r *Record) SameQubits(qubits []int) bool {
	if len(r.Payload.Qubits) != len(qubits) {
		return false
	}
	for i, q := range qubits {
		if r.Payload.Qubits[i] != q {
			return false
		}
	}
	return true
}

// Validate checks the payload shape.
func (r *Record) Validate() error {
	k := len(r.Payload.Qubits)
	if k == 0 {
		return fmt.Errorf("%w: no qubits", ErrCorruptRecord)
	}
	if r.Payload.Shots <= 0 {
		return fmt.Errorf("%w: shots %d", ErrCorruptRecord, r.Payload.Shots)
	}
	if len(r.Payload.Counts) != 1<<k {
		return fmt.Errorf("%w: %d prepared states for %d qubits", ErrCorruptRecord, len(r.Payload.Counts), k)
	}
	for _, prepared := range domain.Outcomes(k) {
		h, ok := r.Payload.Counts[prepared]
		if !ok {
			return fmt.Errorf("%w: missing prepared state %s", ErrCorruptRecord, prepared)
		}
		for bits, c := range h {
			if len(bits) != k || c < 0 {
				return fmt.Errorf("%w: bad outcome %q=%d for state %s", ErrCorruptRecord, bits, c, prepared)
			}
		}
	}
	return nil
}

// Encode serializes a record with msgpack.
func Encode(r *Record) ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calibration record: %w", err)
	}
	return data, nil
}

// Decode parses and validates a record. Any failure wraps ErrCorruptRecord.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
