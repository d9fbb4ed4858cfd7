// sim/container.go
package sim

import "math/rand"

// Fill limits, in kg for weight and litres for volume.
//
// MaxAddWeight and MaxAddVolume equal the capacities, so a single fill event
// can take an empty container most of the way to full.
const (
	MaxWeight    = 200
	MinAddWeight = 20
	MaxAddWeight = MaxWeight

	MaxVolume    = 150
	MinAddVolume = 20
	MaxAddVolume = MaxVolume
)

// Container simulates one physical waste container.
// The zero value is container 0, empty.
type Container struct {
	id     int
	weight int // kg
	volume int // L
}

// NewContainer creates an empty container. Negative ids are clamped to 0.
func NewContainer(id int) Container {
	if id < 0 {
		id = 0
	}
	return Container{id: id}
}

// ID returns the container identity.
func (c *Container) ID() int { return c.id }

// Weight returns the current load in kg.
func (c *Container) Weight() int { return c.weight }

// Volume returns the current fill in litres.
func (c *Container) Volume() int { return c.volume }

// VolumeMax returns the container capacity in litres.
func (c *Container) VolumeMax() int { return MaxVolume }

// RandomFill adds a random amount of waste, saturating at the capacities.
// It draws exactly two values from rng: weight first, then volume.
func (c *Container) RandomFill(rng *rand.Rand) {
	c.weight = min(MaxWeight, c.weight+MinAddWeight+rng.Intn(MaxAddWeight-MinAddWeight))
	c.volume = min(MaxVolume, c.volume+MinAddVolume+rng.Intn(MaxAddVolume-MinAddVolume))
}

// Empty resets the container after collection.
func (c *Container) Empty() {
	c.weight = 0
	c.volume = 0
}
