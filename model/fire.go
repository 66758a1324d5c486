package model

import "time"

// Fire is a wildfire tracked by the constellation. It is created from a
// FireStarted event and never modified afterwards.
type Fire struct {
	ID       int
	Start    time.Time
	Position GeographicPosition
}

// GroundStation is a downlink site that satellites report detections to.
type GroundStation struct {
	ID       int
	Position GeographicPosition

	// ElevAngle is the minimum elevation (degrees) of a satellite above the
	// station's horizon for the link to close.
	ElevAngle   float64
	Operational bool
}

// FireState tracks how far a fire has progressed through the
// detection pipeline.
type FireState int

const (
	FireStateUndefined FireState = iota
	FireStateStarted
	FireStateDetected
	FireStateReported
)

func (s FireState) String() string {
	switch s {
	case FireStateStarted:
		return "started"
	case FireStateDetected:
		return "detected"
	case FireStateReported:
		return "reported"
	default:
		return "undefined"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s FireState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
