package model

// PropagationSource indicates how a satellite's position is determined.
type PropagationSource int

const (
	PropagationSourceUnknown PropagationSource = iota
	PropagationSourceTLE                       // SGP4 propagation from two-line elements
	PropagationSourceStatic                    // fixed geographic position, mostly for tests
)

// GeographicPosition is a point on or above the spherical earth.
// Latitude and longitude are degrees, altitude is metres above the mean radius.
type GeographicPosition struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"`
}

// SatelliteDefinition describes one member of the constellation.
// Identity fields never change once the constellation is built.
type SatelliteDefinition struct {
	ID      int
	NoradID int
	Name    string

	// FieldOfRegard is the full angular width of the sensor cone in degrees.
	FieldOfRegard float64

	Source PropagationSource
	TLE1   string
	TLE2   string

	// Position is only used with PropagationSourceStatic.
	Position GeographicPosition
}
