// Package domain holds the data types shared by every mitigation stage:
// measurement histograms, quasi-probability distributions, lattices and the
// circuit contract consumed from the circuit builder.
package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Histogram maps a fixed-width bitstring to the number of times it was measured.
// The rightmost character is the first measured qubit, so the integer value of
// a bitstring is its index in the outcome space.
type Histogram map[string]int

// ErrNoCounts is returned when a distribution is requested from a histogram
// without a single count.
var ErrNoCounts = errors.New("histogram has no counts")

// Total returns the sum of all counts.
func (h Histogram) Total() int {
	total := 0
	for _, c := range h {
		total += c
	}
	return total
}

// IsZero reports whether no outcome was counted. Stages pass such histograms
// through as empty instead of normalizing them.
func (h Histogram) IsZero() bool {
	for _, c := range h {
		if c != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (h Histogram) Clone() Histogram {
	out := make(Histogram, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Width returns the bitstring width shared by every key.
func (h Histogram) Width() (int, error) {
	width := -1
	for k := range h {
		if width == -1 {
			width = len(k)
			continue
		}
		if len(k) != width {
			return 0, fmt.Errorf("inconsistent bitstring widths: %d and %d", width, len(k))
		}
	}
	if width == -1 {
		return 0, fmt.Errorf("histogram is empty")
	}
	return width, nil
}

// Keys returns the bitstrings in ascending order.
func (h Histogram) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Vector returns the normalized probability vector over the full 2^width
// outcome space, indexed by bitstring value. A histogram without counts has no
// distribution and yields ErrNoCounts.
func (h Histogram) Vector(width int) ([]float64, error) {
	total := h.Total()
	if total <= 0 {
		return nil, ErrNoCounts
	}
	vec := make([]float64, 1<<width)
	for k, c := range h {
		if c < 0 {
			return nil, fmt.Errorf("negative count %d for outcome %s", c, k)
		}
		idx, err := OutcomeIndex(k, width)
		if err != nil {
			return nil, err
		}
		vec[idx] = float64(c) / float64(total)
	}
	return vec, nil
}

// Copies clones every histogram in the slice.
func Copies(hs []Histogram) []Histogram {
	out := make([]Histogram, len(hs))
	for i, h := range hs {
		out[i] = h.Clone()
	}
	return out
}

// CountsFromProbabilities converts a probability vector to counts by scaling
// with shots and truncating toward zero. Zero counts are omitted.
func CountsFromProbabilities(probs []float64, width, shots int) Histogram {
	out := make(Histogram)
	for i, p := range probs {
		c := TruncCount(p, shots)
		if c > 0 {
			out[Bitstring(i, width)] = c
		}
	}
	return out
}

// TruncCount converts a probability to an integer count, truncating toward
// zero and clamping negatives to zero.
func TruncCount(p float64, shots int) int {
	v := p * float64(shots)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Trunc(v))
}

// Bitstring renders an outcome index as a zero-padded binary string.
func Bitstring(index, width int) string {
	s := strconv.FormatInt(int64(index), 2)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// OutcomeIndex parses a bitstring of the given width into its index.
func OutcomeIndex(bits string, width int) (int, error) {
	if len(bits) != width {
		return 0, fmt.Errorf("bitstring %q has width %d, expected %d", bits, len(bits), width)
	}
	idx, err := strconv.ParseUint(bits, 2, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid bitstring %q: %w", bits, err)
	}
	return int(idx), nil
}

// Outcomes enumerates every bitstring of the given width in index order.
func Outcomes(width int) []string {
	out := make([]string, 1<<width)
	for i := range out {
		out[i] = Bitstring(i, width)
	}
	return out
}
