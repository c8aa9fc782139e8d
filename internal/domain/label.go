package domain

// DefaultTarget names the execution target in result labels.
const DefaultTarget = "ibm-qpu"

// Label composes "<method>-<kind>-<w>x<h>-<target>", the name downstream
// tooling uses for result directories.
func Label(method string, lattice Lattice, target string) string {
	if target == "" {
		target = DefaultTarget
	}
	return method + "-" + lattice.Kind() + "-" + lattice.Dims().String() + "-" + target
}
