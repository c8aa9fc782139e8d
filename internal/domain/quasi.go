package domain

import "sort"

// QuasiDistribution is a correction output whose entries sum to one but may be
// negative. It never leaves the readout stage without being projected.
type QuasiDistribution map[string]float64

// NearestProbabilityDistribution returns the probability distribution closest
// in L2 distance to q, using the sorted accumulation scheme of Smolin,
// Gambetta and Smith (PRL 108, 070502). The second return value is the squared
// distance to the projection.
func (q QuasiDistribution) NearestProbabilityDistribution() (map[string]float64, float64) {
	type entry struct {
		key string
		val float64
	}
	sorted := make([]entry, 0, len(q))
	for k, v := range q {
		sorted = append(sorted, entry{k, v})
	}
	// Tie-break on key so the projection is deterministic
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].val == sorted[j].val {
			return sorted[i].key < sorted[j].key
		}
		return sorted[i].val < sorted[j].val
	})

	probs := make(map[string]float64, len(q))
	remaining := float64(len(sorted))
	beta := 0.0
	diff := 0.0
	for i, e := range sorted {
		shifted := e.val + beta/remaining
		if shifted < 0 {
			beta += e.val
			remaining--
			diff += e.val * e.val
			continue
		}
		shift := beta / remaining
		for _, rest := range sorted[i:] {
			probs[rest.key] = rest.val + shift
			diff += shift * shift
		}
		break
	}
	return probs, diff
}

// Sum returns the total quasi-probability mass.
func (q QuasiDistribution) Sum() float64 {
	s := 0.0
	for _, v := range q {
		s += v
	}
	return s
}
