// sim/fleet.go
package sim

import "math/rand"

// Fleet is the ordered set of simulated containers.
// Container ids are 0..Len()-1 and match their position.
//
// Thread-safety: NOT thread-safe. Owned by the driver goroutine.
type Fleet struct {
	containers []Container
}

// NewFleet creates n empty containers. A negative n yields an empty fleet.
func NewFleet(n int) *Fleet {
	if n < 0 {
		n = 0
	}
	containers := make([]Container, n)
	for i := range containers {
		containers[i] = NewContainer(i)
	}
	return &Fleet{containers: containers}
}

// Len returns the number of containers.
func (f *Fleet) Len() int { return len(f.containers) }

// At returns the container at position i. Panics if i is out of range.
func (f *Fleet) At(i int) *Container { return &f.containers[i] }

// Container looks up a container by id.
func (f *Fleet) Container(id int) (*Container, bool) {
	if id < 0 || id >= len(f.containers) {
		return nil, false
	}
	return &f.containers[id], true
}

// FillAll applies one fill event to every container in id order.
func (f *Fleet) FillAll(rng *rand.Rand) {
	for i := range f.containers {
		f.containers[i].RandomFill(rng)
	}
}

// Empty empties the container with the given id.
// Returns false if the id is not part of the fleet.
func (f *Fleet) Empty(id int) bool {
	c, ok := f.Container(id)
	if !ok {
		return false
	}
	c.Empty()
	return true
}

// Snapshot returns a copy of every container's current state.
func (f *Fleet) Snapshot() []Container {
	out := make([]Container, len(f.containers))
	copy(out, f.containers)
	return out
}
