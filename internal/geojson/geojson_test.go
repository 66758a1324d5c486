package geojson

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/firesat/model"
)

func TestCircleIsClosedAndSized(t *testing.T) {
	center := orb.Point{-121, 38}
	poly := Circle(center, 100000)
	if len(poly) != 1 {
		t.Fatalf("polygon has %d rings", len(poly))
	}
	ring := poly[0]
	if len(ring) != CircleSegments+1 {
		t.Fatalf("ring has %d points, want %d", len(ring), CircleSegments+1)
	}
	if !ring.Closed() {
		t.Fatalf("ring is not closed")
	}

	// The northernmost vertex sits radius metres north of the centre.
	north := ring[CircleSegments/4]
	gotM := (north[1] - center[1]) * math.Pi / 180 * earthRadiusM
	if math.Abs(gotM-100000) > 1 {
		t.Fatalf("north offset = %.1f m, want 100000", gotM)
	}
}

func TestCircleZeroRadiusCollapses(t *testing.T) {
	ring := Circle(orb.Point{10, 20}, 0)[0]
	for _, p := range ring {
		if p != (orb.Point{10, 20}) {
			t.Fatalf("zero-radius ring vertex %v", p)
		}
	}
}

func TestFootprintProperties(t *testing.T) {
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	f := Footprint(model.SatelliteStatus{NoradID: 25544, Name: "FireSat-1", Latitude: 10, Longitude: 20, Radius: 5e5, Time: at, CommRange: true})

	if f.ID != "NORAD_25544_mesh_1" || f.Properties["name"] != "FireSat-1" || f.Properties["date"] != "2025-07-01T12:00:00Z" {
		t.Fatalf("footprint = %+v", f)
	}
	if f.Properties["commRange"] != true {
		t.Fatalf("commRange property = %v", f.Properties["commRange"])
	}
	if _, ok := f.Geometry.(orb.Polygon); !ok {
		t.Fatalf("geometry is %T, want orb.Polygon", f.Geometry)
	}
}

func TestCollectionCarriesName(t *testing.T) {
	fire := model.Fire{ID: 3, Position: model.GeographicPosition{Latitude: 38.5, Longitude: -121.2}}
	fc := NewCollection(FirePoint(fire, model.FireStateDetected))

	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var doc struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Type != "FeatureCollection" || doc.Name != CollectionName || len(doc.Features) != 1 {
		t.Fatalf("collection = %s", data)
	}
	coords := doc.Features[0].Geometry.Coordinates
	if len(coords) != 2 || coords[0] != -121.2 || coords[1] != 38.5 {
		t.Fatalf("fire coordinates = %v, want lon,lat", coords)
	}
	if doc.Features[0].Properties["state"] != "detected" {
		t.Fatalf("state = %v", doc.Features[0].Properties["state"])
	}
}

func TestRecorderFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footprints.geojson")
	r := NewRecorder(path)
	for i := 0; i < 3; i++ {
		if err := r.PublishStatus(context.Background(), model.SatelliteStatus{NoradID: i, Radius: 1000}); err != nil {
			t.Fatalf("PublishStatus: %v", err)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d", r.Len())
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc struct {
		Name     string            `json:"name"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Name != CollectionName || len(doc.Features) != 3 {
		t.Fatalf("file = %s", data)
	}
}
