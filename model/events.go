package model

import "time"

// FireStarted is published when a scheduled fire ignites.
type FireStarted struct {
	FireID    int       `json:"fireId"`
	Start     time.Time `json:"start"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Fire converts the event into the tracked fire it announces.
func (e FireStarted) Fire() Fire {
	return Fire{
		ID:    e.FireID,
		Start: e.Start,
		Position: GeographicPosition{
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		},
	}
}

// GroundLocation announces a new ground station or an update to a known one.
type GroundLocation struct {
	GroundID    int     `json:"groundId"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ElevAngle   float64 `json:"elevAngle"`
	Operational bool    `json:"operational"`
}

// Station converts the event into a registry row.
func (e GroundLocation) Station() GroundStation {
	return GroundStation{
		ID: e.GroundID,
		Position: GeographicPosition{
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		},
		ElevAngle:   e.ElevAngle,
		Operational: e.Operational,
	}
}

// FireDetected is emitted once, when the first satellite sees a fire.
type FireDetected struct {
	FireID     int       `json:"fireId"`
	Detected   time.Time `json:"detected"`
	DetectedBy string    `json:"detected_by"`
}

// FireReported is emitted once, when the first detecting satellite downlinks
// the fire to an operational ground station.
type FireReported struct {
	FireID     int       `json:"fireId"`
	Reported   time.Time `json:"reported"`
	ReportedBy string    `json:"reported_by"`
	ReportedTo int       `json:"reported_to"`
}

// SatelliteStatus is the periodic position and footprint report for one satellite.
type SatelliteStatus struct {
	ID        int       `json:"id"`
	NoradID   int       `json:"noradId"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Radius    float64   `json:"radius"`
	CommRange bool      `json:"commRange"`
	Time      time.Time `json:"time"`
}
