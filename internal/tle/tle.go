// Package tle reads NORAD two-line element catalogues.
package tle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/firesat/internal/logging"
)

// ErrNotFound is returned when a catalogue has no entry for a NORAD id.
var ErrNotFound = errors.New("tle entry not found")

// Entry is a single satellite's two-line element set.
type Entry struct {
	NoradID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// Catalog indexes entries by NORAD id. When a file carries several element
// sets for one satellite, the one with the latest epoch wins.
type Catalog struct {
	entries map[int]Entry
}

// NewCatalog indexes entries.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{entries: make(map[int]Entry, len(entries))}
	for _, e := range entries {
		if prev, ok := c.entries[e.NoradID]; ok && prev.Epoch.After(e.Epoch) {
			continue
		}
		c.entries[e.NoradID] = e
	}
	return c
}

// Lookup returns the element set for noradID.
func (c *Catalog) Lookup(noradID int) (Entry, error) {
	if c != nil {
		if e, ok := c.entries[noradID]; ok {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: NORAD %d", ErrNotFound, noradID)
}

// Len returns the number of distinct satellites in the catalogue.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// LoadFile parses the catalogue at path.
func LoadFile(path string, log logging.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TLE file: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f, log)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewCatalog(entries), nil
}

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, log logging.Logger) ([]Entry, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resynchronise on the next line.
			log.Warn(ctx, "skipping malformed TLE entry", logging.Int("line_index", i), logging.String("name", name))
			i++
			continue
		}
		if len(line1) < 32 {
			log.Warn(ctx, "skipping TLE entry with short line1", logging.String("name", name))
			i += 3
			continue
		}

		// NORAD id: line1 columns 3-7.
		noradStr := strings.TrimSpace(line1[2:7])
		noradID, err := strconv.Atoi(noradStr)
		if err != nil {
			log.Warn(ctx, "skipping TLE entry with invalid NORAD ID", logging.String("norad_str", noradStr), logging.String("name", name))
			i += 3
			continue
		}

		// Epoch: line1 columns 19-32.
		epochStr := strings.TrimSpace(line1[18:32])
		epoch, err := parseEpoch(epochStr)
		if err != nil {
			log.Warn(ctx, "skipping TLE entry with invalid epoch",
				logging.String("epoch_str", epochStr),
				logging.String("name", name),
				logging.Err(err),
			)
			i += 3
			continue
		}

		entries = append(entries, Entry{
			NoradID: noradID,
			Name:    strings.TrimSpace(name),
			Epoch:   epoch,
			Line1:   line1,
			Line2:   line2,
		})
		i += 3
	}
	return entries, nil
}

// parseEpoch converts YYDDD.DDDDDDDD to a UTC time.
// Year 00-56 is 20xx, 57-99 is 19xx.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// dayOfYear is 1-based.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
