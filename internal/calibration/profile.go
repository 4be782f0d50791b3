// Package calibration holds the calibration profile shared by the ingest
// server, the durable store and the sample interception adapter.
package calibration

import "fmt"

const (
	// DefaultListenPort is the ingest port used when nothing has been saved yet.
	DefaultListenPort = 16384

	MinListenPort = 1024
	MaxListenPort = 65535
)

// Offsets is a per-axis correction added to a raw sample.
type Offsets struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsZero reports whether all three offsets are exactly zero.
func (o Offsets) IsZero() bool {
	return o.X == 0 && o.Y == 0 && o.Z == 0
}

func (o Offsets) String() string {
	return fmt.Sprintf("X: %g, Y: %g, Z: %g", o.X, o.Y, o.Z)
}

// Profile is the persisted calibration state. Values are immutable once
// published; callers build a new Profile rather than mutating one in place.
type Profile struct {
	OffsetX    float64 `json:"x"`
	OffsetY    float64 `json:"y"`
	OffsetZ    float64 `json:"z"`
	ListenPort int     `json:"socket_port"`
}

// DefaultProfile returns the profile used on first run or when the backing
// store cannot be read: zero offsets on the default port.
func DefaultProfile() Profile {
	return Profile{ListenPort: DefaultListenPort}
}

// Offsets returns the three offsets of the profile.
func (p Profile) Offsets() Offsets {
	return Offsets{X: p.OffsetX, Y: p.OffsetY, Z: p.OffsetZ}
}

// WithOffsets returns a copy of p carrying the given offsets and p's port.
func (p Profile) WithOffsets(o Offsets) Profile {
	p.OffsetX, p.OffsetY, p.OffsetZ = o.X, o.Y, o.Z
	return p
}

// Validate checks the listen port range.
func (p Profile) Validate() error {
	return ValidatePort(p.ListenPort)
}

func (p Profile) String() string {
	return fmt.Sprintf("X: %g, Y: %g, Z: %g, Port: %d", p.OffsetX, p.OffsetY, p.OffsetZ, p.ListenPort)
}

// ValidatePort returns a *ValidationError unless MinListenPort <= port <= MaxListenPort.
func ValidatePort(port int) error {
	if port < MinListenPort || port > MaxListenPort {
		return &ValidationError{
			Field:  "socket_port",
			Value:  port,
			Reason: fmt.Sprintf("must be between %d and %d", MinListenPort, MaxListenPort),
		}
	}
	return nil
}
