package circuits

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/aristath/qlbm/internal/domain"
)

// RandomFolder amplifies gate noise by replacing randomly chosen gates G with
// G G† G. The ideal unitary is unchanged.
type RandomFolder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomFolder returns a folder whose gate selection is reproducible for a seed.
func NewRandomFolder(seed int64) *RandomFolder {
	return &RandomFolder{rng: rand.New(rand.NewSource(seed))}
}

// Fold returns c with its gate count scaled by approximately scale.
func (f *RandomFolder) Fold(c domain.Circuit, scale float64) (domain.Circuit, error) {
	if scale < 1 {
		return nil, fmt.Errorf("scale factor %g is below 1", scale)
	}
	circ, ok := c.(*Circuit)
	if !ok {
		return nil, fmt.Errorf("cannot fold circuit %s of type %T", c.Name(), c)
	}

	gates := circ.Gates()
	n := len(gates)
	name := fmt.Sprintf("%s-fold%g", circ.Name(), scale)
	if n == 0 {
		return circ.WithGates(name, nil), nil
	}

	folds := int(math.Round((scale - 1) * float64(n) / 2))
	perGate := make([]int, n)
	for i := range perGate {
		perGate[i] = folds / n
	}

	f.mu.Lock()
	chosen := f.rng.Perm(n)[:folds%n]
	f.mu.Unlock()
	for _, i := range chosen {
		perGate[i]++
	}

	out := make([]Gate, 0, n+2*folds)
	for i, g := range gates {
		out = append(out, g)
		inv := g.Inverse()
		for k := 0; k < perGate[i]; k++ {
			out = append(out, inv, g)
		}
	}
	return circ.WithGates(name, out), nil
}
