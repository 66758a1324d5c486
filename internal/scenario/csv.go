// Package scenario loads the fire and ground-station scenarios and replays
// them onto the bus as simulation time advances.
package scenario

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/signalsfoundry/firesat/model"
)

// FireRow is one line of a fire scenario file.
type FireRow struct {
	FireID    int     `csv:"fireId"`
	StartTime string  `csv:"start_time"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
}

// GroundRow is one line of a ground-station file.
type GroundRow struct {
	GroundID    int     `csv:"groundId"`
	Latitude    float64 `csv:"latitude"`
	Longitude   float64 `csv:"longitude"`
	ElevAngle   float64 `csv:"elevAngle"`
	Operational bool    `csv:"operational"`
}

// Ignition times are accepted in any of these layouts; zone-less values
// are UTC.
var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start_time %q", raw)
}

func newReader(r io.Reader) gocsv.CSVReader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr
}

// LoadFires parses a fire scenario and returns the fires ordered by
// ignition time. Rows with the same ignition keep their file order.
func LoadFires(r io.Reader) ([]model.FireStarted, error) {
	var rows []FireRow
	if err := gocsv.UnmarshalCSV(newReader(r), &rows); err != nil {
		return nil, fmt.Errorf("decode fires: %w", err)
	}

	fires := make([]model.FireStarted, 0, len(rows))
	for i, row := range rows {
		start, err := parseStart(row.StartTime)
		if err != nil {
			return nil, fmt.Errorf("fire row %d (fireId %d): %w", i+1, row.FireID, err)
		}
		fires = append(fires, model.FireStarted{
			FireID:    row.FireID,
			Start:     start,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
		})
	}
	sort.SliceStable(fires, func(i, j int) bool { return fires[i].Start.Before(fires[j].Start) })
	return fires, nil
}

// LoadGrounds parses a ground-station file in file order.
func LoadGrounds(r io.Reader) ([]model.GroundLocation, error) {
	var rows []GroundRow
	if err := gocsv.UnmarshalCSV(newReader(r), &rows); err != nil {
		return nil, fmt.Errorf("decode grounds: %w", err)
	}
	out := make([]model.GroundLocation, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.GroundLocation{
			GroundID:    row.GroundID,
			Latitude:    row.Latitude,
			Longitude:   row.Longitude,
			ElevAngle:   row.ElevAngle,
			Operational: row.Operational,
		})
	}
	return out, nil
}

// LoadFiresFile is LoadFires for a path.
func LoadFiresFile(path string) ([]model.FireStarted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fires file: %w", err)
	}
	defer f.Close()
	return LoadFires(f)
}

// LoadGroundsFile is LoadGrounds for a path.
func LoadGroundsFile(path string) ([]model.GroundLocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grounds file: %w", err)
	}
	defer f.Close()
	return LoadGrounds(f)
}
