package core

import "github.com/signalsfoundry/firesat/model"

// InView reports whether a target on the ground is visible to a satellite
// whose sensor requires at least minElevation degrees above the target's
// horizon.
func InView(satellite, target model.GeographicPosition, minElevation float64) bool {
	return ElevationAngle(target, satellite) >= minElevation
}

// InRange reports whether the satellite can close a link with any operational
// ground station. Stations are tried in table order and the first one whose
// own elevation requirement is met wins; there is no search for a better
// station. The returned groundId is only meaningful when ok is true.
func InRange(satellite model.GeographicPosition, grounds []model.GroundStation) (ok bool, groundID int) {
	for _, g := range grounds {
		if !g.Operational {
			continue
		}
		if ElevationAngle(g.Position, satellite) >= g.ElevAngle {
			return true, g.ID
		}
	}
	return false, 0
}
