// Package equalization snaps extrapolated histograms onto a two-level shape:
// outcomes in the lower half of the sorted outcome space become zero and the
// rest take the uniform count of a half-filled domain.
package equalization

import (
	"math"
	"sort"

	"github.com/aristath/qlbm/internal/domain"
)

// UniformCount is the count each populated outcome gets: shots / (0.5·w·h).
func UniformCount(shots int, dims domain.Dims) int {
	return int(math.Trunc(float64(shots) / (0.5 * float64(dims.Product()))))
}

// Equalize returns equalized copies of histograms. Each histogram is padded
// to its full 2^k outcome space; the cutoff is the count at index 2^(k-1) of
// the ascending counts. Empty histograms and histograms over zero-width
// bitstrings are returned empty.
func Equalize(histograms []domain.Histogram, shots int, dims domain.Dims) []domain.Histogram {
	uniform := UniformCount(shots, dims)
	out := make([]domain.Histogram, len(histograms))
	for i, h := range histograms {
		out[i] = equalizeOne(h, uniform)
	}
	return out
}

func equalizeOne(h domain.Histogram, uniform int) domain.Histogram {
	k, err := h.Width()
	if err != nil || k < 1 {
		return domain.Histogram{}
	}

	outcomes := domain.Outcomes(k)
	values := make([]int, len(outcomes))
	for j, bits := range outcomes {
		values[j] = h[bits]
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	cutoff := sorted[1<<(k-1)]

	out := make(domain.Histogram, len(outcomes))
	for j, bits := range outcomes {
		if values[j] < cutoff {
			out[bits] = 0
		} else {
			out[bits] = uniform
		}
	}
	return out
}
