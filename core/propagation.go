package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/firesat/model"
)

// ErrPropagation is returned when a satellite position cannot be computed.
var ErrPropagation = errors.New("propagation failed")

// Propagator answers "where is this satellite at time t".
type Propagator interface {
	PositionAt(t time.Time) (model.GeographicPosition, error)
}

// StaticPropagator keeps a satellite at a fixed geographic position.
type StaticPropagator struct {
	Position model.GeographicPosition
}

// PositionAt returns the fixed position regardless of t.
func (p *StaticPropagator) PositionAt(time.Time) (model.GeographicPosition, error) {
	return p.Position, nil
}

// SGP4Propagator uses a TLE and SGP4 to locate a satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator constructs a propagator from TLE lines.
//
// go-satellite calls log.Fatal on malformed TLEs, so the lines are checked
// before they are handed over.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}
	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// PositionAt propagates to t and returns the sub-satellite point and
// altitude on the spherical earth. go-satellite works in kilometres.
//
// Resolution is one second: go-satellite takes whole seconds, so the
// sub-second part of t is truncated and steps shorter than a second
// within the same second yield the same position.
func (p *SGP4Propagator) PositionAt(t time.Time) (model.GeographicPosition, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) ||
		math.IsInf(posECI.X, 0) || math.IsInf(posECI.Y, 0) || math.IsInf(posECI.Z, 0) {
		return model.GeographicPosition{}, fmt.Errorf("%w: NORAD %d at %s: output is NaN/Inf", ErrPropagation, p.noradID, t.Format(time.RFC3339))
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	pos := FromECEF(Vec3{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	})
	if pos.Altitude < 0 {
		return model.GeographicPosition{}, fmt.Errorf("%w: NORAD %d at %s: decayed below surface", ErrPropagation, p.noradID, t.Format(time.RFC3339))
	}
	return pos, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// NewPropagator chooses a Propagator for the satellite definition.
func NewPropagator(def model.SatelliteDefinition) (Propagator, error) {
	switch def.Source {
	case model.PropagationSourceStatic:
		return &StaticPropagator{Position: def.Position}, nil
	case model.PropagationSourceTLE:
		return NewSGP4Propagator(def.TLE1, def.TLE2, def.NoradID)
	default:
		if def.TLE1 != "" && def.TLE2 != "" {
			return NewSGP4Propagator(def.TLE1, def.TLE2, def.NoradID)
		}
		return nil, fmt.Errorf("satellite %q has no propagation source", def.Name)
	}
}
