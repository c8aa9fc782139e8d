package calibration

import (
	"fmt"
	"strings"

	"github.com/aristath/qlbm/internal/domain"
)

// Key identifies a calibration record by backend and lattice dimensions.
type Key struct {
	Backend string
	Dims    domain.Dims
}

// NewKey returns the key for backend and dims.
func NewKey(backend string, dims domain.Dims) Key {
	return Key{Backend: backend, Dims: dims}
}

// String renders the key as "<backend>_<w>x<h>".
func (k Key) String() string {
	return k.Backend + "_" + k.Dims.String()
}

// ParseKey is the inverse of Key.String. Backend names may contain
// underscores; the dims follow the last one.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 {
		return Key{}, fmt.Errorf("invalid calibration key %q", s)
	}
	var d domain.Dims
	if _, err := fmt.Sscanf(s[i+1:], "%dx%d", &d.Width, &d.Height); err != nil {
		return Key{}, fmt.Errorf("invalid calibration key %q: %w", s, err)
	}
	k := Key{Backend: s[:i], Dims: d}
	if k.String() != s {
		return Key{}, fmt.Errorf("invalid calibration key %q", s)
	}
	return k, nil
}
