package domain

import (
	"fmt"
	"math/bits"
)

// Dims is the width × height of the simulated spatial grid.
type Dims struct {
	Width  int `json:"width" yaml:"width" msgpack:"width"`
	Height int `json:"height" yaml:"height" msgpack:"height"`
}

// String renders dims as "<w>x<h>", the form used in labels and cache keys.
func (d Dims) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Product returns the number of grid points.
func (d Dims) Product() int {
	return d.Width * d.Height
}

// Validate requires both sides to be powers of two, since each axis is
// encoded on log2(side) grid qubits.
func (d Dims) Validate() error {
	if d.Width < 2 || d.Height < 2 {
		return fmt.Errorf("lattice dims %s: both sides must be at least 2", d)
	}
	if bits.OnesCount(uint(d.Width)) != 1 || bits.OnesCount(uint(d.Height)) != 1 {
		return fmt.Errorf("lattice dims %s: sides must be powers of two", d)
	}
	return nil
}

// GridQubits returns the number of qubits that encode a grid position.
func (d Dims) GridQubits() int {
	return bits.Len(uint(d.Width)) - 1 + bits.Len(uint(d.Height)) - 1
}

// Lattice is the simulated domain. Variants are chosen once at construction;
// downstream code only uses this interface.
type Lattice interface {
	Dims() Dims
	// Kind is the label fragment for the lattice variant.
	Kind() string
}

// Collisionless is a transport-only lattice with discrete velocity counts per axis.
type Collisionless struct {
	Size       Dims
	Velocities [2]int
}

// NewCollisionless validates dims and returns a collisionless lattice.
// Velocities default to 4 per axis.
func NewCollisionless(dims Dims, velocities ...int) (*Collisionless, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	vs := [2]int{4, 4}
	if len(velocities) == 2 {
		vs = [2]int{velocities[0], velocities[1]}
	}
	return &Collisionless{Size: dims, Velocities: vs}, nil
}

func (l *Collisionless) Dims() Dims   { return l.Size }
func (l *Collisionless) Kind() string { return "collisionless" }

// SpaceTime is the collision-capable space-time lattice (D2Q4 only).
type SpaceTime struct {
	Size      Dims
	Timesteps int
}

// NewSpaceTime validates dims and returns a space-time lattice.
func NewSpaceTime(dims Dims, timesteps int) (*SpaceTime, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if timesteps < 1 {
		timesteps = 1
	}
	return &SpaceTime{Size: dims, Timesteps: timesteps}, nil
}

func (l *SpaceTime) Dims() Dims   { return l.Size }
func (l *SpaceTime) Kind() string { return "collision" }
