package messaging

import "fmt"

// DefaultPrefix namespaces every topic when no prefix is configured.
const DefaultPrefix = "firesat"

// Topics names the subjects the simulator exchanges, as
// <prefix>.<app>.<kind>.
type Topics struct {
	Prefix string
}

// NewTopics returns the topic set for prefix, falling back to DefaultPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) topic(app, kind string) string {
	return fmt.Sprintf("%s.%s.%s", t.Prefix, app, kind)
}

// FireLocation carries model.FireStarted.
func (t Topics) FireLocation() string { return t.topic("fire", "location") }

// GroundLocation carries model.GroundLocation.
func (t Topics) GroundLocation() string { return t.topic("ground", "location") }

// Detected carries model.FireDetected.
func (t Topics) Detected() string { return t.topic("constellation", "detected") }

// Reported carries model.FireReported.
func (t Topics) Reported() string { return t.topic("constellation", "reported") }

// SatelliteLocation carries model.SatelliteStatus.
func (t Topics) SatelliteLocation() string { return t.topic("constellation", "location") }
