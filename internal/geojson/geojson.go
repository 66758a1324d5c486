// Package geojson renders satellite footprints and fires as GeoJSON.
package geojson

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/signalsfoundry/firesat/model"
)

// CollectionName is the "name" member of every collection produced here.
const CollectionName = "Constellation"

// CircleSegments is the number of edges of a footprint polygon.
const CircleSegments = 36

// earthRadiusM matches the equatorial radius used by map clients.
const earthRadiusM = 6378137.0

// Circle approximates a circle of radius metres around center with a closed
// ring of CircleSegments edges. Offsets are applied in a local tangent plane,
// which is accurate enough for sensor footprints away from the poles.
func Circle(center orb.Point, radius float64) orb.Polygon {
	lon, lat := center[0], center[1]
	cosLat := math.Cos(lat * math.Pi / 180)

	ring := make(orb.Ring, 0, CircleSegments+1)
	for i := 0; i <= CircleSegments; i++ {
		angle := 2 * math.Pi * float64(i) / CircleSegments
		dx := radius * math.Cos(angle)
		dy := radius * math.Sin(angle)

		dLat := dy / earthRadiusM
		dLon := 0.0
		if cosLat != 0 {
			dLon = dx / (earthRadiusM * cosLat)
		}
		ring = append(ring, orb.Point{
			lon + dLon*180/math.Pi,
			lat + dLat*180/math.Pi,
		})
	}
	// Close exactly despite rounding in cos/sin at 2π.
	ring[len(ring)-1] = ring[0]
	return orb.Polygon{ring}
}

// Footprint is the sensor footprint of one satellite status report.
func Footprint(s model.SatelliteStatus) *geojson.Feature {
	f := geojson.NewFeature(Circle(orb.Point{s.Longitude, s.Latitude}, s.Radius))
	f.ID = fmt.Sprintf("NORAD_%d_mesh_1", s.NoradID)
	f.Properties["id"] = f.ID
	f.Properties["name"] = s.Name
	f.Properties["date"] = s.Time.UTC().Format(time.RFC3339)
	f.Properties["altitude"] = s.Altitude
	f.Properties["radius"] = s.Radius
	f.Properties["commRange"] = s.CommRange
	return f
}

// FirePoint is a point feature for a fire with its scoreboard state.
func FirePoint(fire model.Fire, state model.FireState) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{fire.Position.Longitude, fire.Position.Latitude})
	f.ID = fire.ID
	f.Properties["fireId"] = fire.ID
	f.Properties["state"] = state.String()
	f.Properties["start"] = fire.Start.UTC().Format(time.RFC3339)
	return f
}

// NewCollection wraps features in a collection named CollectionName.
func NewCollection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"name": CollectionName}
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

// Recorder accumulates footprints and writes them to a GeoJSON file. It
// implements core.StatusSink.
type Recorder struct {
	mu   sync.Mutex
	path string
	fc   *geojson.FeatureCollection
}

// NewRecorder records into path. Existing content at path is replaced on
// the first Flush.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path, fc: NewCollection()}
}

// Add appends a footprint for s.
func (r *Recorder) Add(s model.SatelliteStatus) {
	r.mu.Lock()
	r.fc.Append(Footprint(s))
	r.mu.Unlock()
}

// PublishStatus records s; it never fails.
func (r *Recorder) PublishStatus(_ context.Context, s model.SatelliteStatus) error {
	r.Add(s)
	return nil
}

// Len returns the number of recorded footprints.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fc.Features)
}

// Flush writes every recorded footprint.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	data, err := r.fc.MarshalJSON()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode footprints: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return nil
}
