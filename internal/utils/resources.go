package utils

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// DenseMatrixBytes is the size of an n×n float64 matrix.
func DenseMatrixBytes(n int) uint64 {
	return uint64(n) * uint64(n) * 8
}

// EnsureMemory fails when the host reports less than need bytes available.
// Hosts that cannot report memory statistics pass.
func EnsureMemory(need uint64) error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	if vm.Available < need {
		return fmt.Errorf("need %d MiB for dense matrices, only %d MiB available", need>>20, vm.Available>>20)
	}
	return nil
}
