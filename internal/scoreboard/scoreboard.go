// Package scoreboard tracks how far each scenario fire has progressed
// through detection and reporting, as observed on the message bus.
package scoreboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	firegeo "github.com/signalsfoundry/firesat/internal/geojson"
	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/model"
)

// Entry is the scoreboard row for one fire.
type Entry struct {
	FireID     int             `json:"fireId"`
	State      model.FireState `json:"state"`
	Start      time.Time       `json:"start"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Detected   *time.Time      `json:"detected,omitempty"`
	DetectedBy string          `json:"detected_by,omitempty"`
	Reported   *time.Time      `json:"reported,omitempty"`
	ReportedBy string          `json:"reported_by,omitempty"`
	ReportedTo *int            `json:"reported_to,omitempty"`
}

func (e Entry) fire() model.Fire {
	return model.Fire{
		ID:       e.FireID,
		Start:    e.Start,
		Position: model.GeographicPosition{Latitude: e.Latitude, Longitude: e.Longitude},
	}
}

// Event kinds carried on the live feed.
const (
	EventStarted  = "started"
	EventDetected = "detected"
	EventReported = "reported"
	EventLocation = "location"
)

// Event is one live feed update.
type Event struct {
	Type      string                 `json:"type"`
	Fire      *Entry                 `json:"fire,omitempty"`
	Satellite *model.SatelliteStatus `json:"satellite,omitempty"`
}

// Broadcaster receives every applied update.
type Broadcaster interface {
	Broadcast(evt Event)
}

// Board holds one entry per scenario fire plus the latest footprint of each
// satellite. States only move forward; events for fires outside the
// scenario are ignored.
type Board struct {
	mu         sync.RWMutex
	entries    map[int]*Entry
	order      []int
	footprints map[int]model.SatelliteStatus

	feed Broadcaster
	log  logging.Logger
	subs []messaging.Subscription
}

// New seeds the board with fires, all in the undefined state. feed may be
// nil.
func New(fires []model.FireStarted, feed Broadcaster, log logging.Logger) *Board {
	if log == nil {
		log = logging.Noop()
	}
	b := &Board{
		entries:    make(map[int]*Entry, len(fires)),
		footprints: make(map[int]model.SatelliteStatus),
		feed:       feed,
		log:        log,
	}
	for _, f := range fires {
		if _, dup := b.entries[f.FireID]; dup {
			continue
		}
		b.entries[f.FireID] = &Entry{
			FireID:    f.FireID,
			Start:     f.Start,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
		}
		b.order = append(b.order, f.FireID)
	}
	return b
}

// Started marks a fire as burning.
func (b *Board) Started(evt model.FireStarted) bool {
	return b.apply(evt.FireID, EventStarted, func(e *Entry) bool {
		return advance(e, model.FireStateStarted)
	})
}

// Detected records the first detection of a fire.
func (b *Board) Detected(evt model.FireDetected) bool {
	return b.apply(evt.FireID, EventDetected, func(e *Entry) bool {
		if e.Detected != nil {
			return false
		}
		at := evt.Detected
		e.Detected = &at
		e.DetectedBy = evt.DetectedBy
		advance(e, model.FireStateDetected)
		return true
	})
}

// Reported records the first downlink of a fire.
func (b *Board) Reported(evt model.FireReported) bool {
	return b.apply(evt.FireID, EventReported, func(e *Entry) bool {
		if e.Reported != nil {
			return false
		}
		at, to := evt.Reported, evt.ReportedTo
		e.Reported = &at
		e.ReportedBy = evt.ReportedBy
		e.ReportedTo = &to
		advance(e, model.FireStateReported)
		return true
	})
}

// Location keeps status as the latest footprint of its satellite.
func (b *Board) Location(status model.SatelliteStatus) {
	b.mu.Lock()
	if prev, ok := b.footprints[status.ID]; ok && status.Time.Before(prev.Time) {
		b.mu.Unlock()
		return
	}
	b.footprints[status.ID] = status
	b.mu.Unlock()

	if b.feed != nil {
		b.feed.Broadcast(Event{Type: EventLocation, Satellite: &status})
	}
}

func (b *Board) apply(fireID int, kind string, fn func(*Entry) bool) bool {
	b.mu.Lock()
	e, ok := b.entries[fireID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	changed := fn(e)
	snapshot := *e
	b.mu.Unlock()

	if changed && b.feed != nil {
		b.feed.Broadcast(Event{Type: kind, Fire: &snapshot})
	}
	return changed
}

func advance(e *Entry, to model.FireState) bool {
	if to <= e.State {
		return false
	}
	e.State = to
	return true
}

// Entries returns a copy of every row in scenario order.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.entries[id])
	}
	return out
}

// Entry returns the row for fireID.
func (b *Board) Entry(fireID int) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[fireID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Counts returns the number of fires in each state.
func (b *Board) Counts() map[model.FireState]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[model.FireState]int, 4)
	for _, e := range b.entries {
		counts[e.State]++
	}
	return counts
}

// Footprints returns the latest status of each satellite ordered by id.
func (b *Board) Footprints() []model.SatelliteStatus {
	b.mu.RLock()
	out := make([]model.SatelliteStatus, 0, len(b.footprints))
	for _, s := range b.footprints {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FiresCollection renders every fire as a point feature.
func (b *Board) FiresCollection() *geojson.FeatureCollection {
	entries := b.Entries()
	features := make([]*geojson.Feature, 0, len(entries))
	for _, e := range entries {
		features = append(features, firegeo.FirePoint(e.fire(), e.State))
	}
	return firegeo.NewCollection(features...)
}

// FootprintsCollection renders the latest footprint of each satellite.
func (b *Board) FootprintsCollection() *geojson.FeatureCollection {
	statuses := b.Footprints()
	features := make([]*geojson.Feature, 0, len(statuses))
	for _, s := range statuses {
		features = append(features, firegeo.Footprint(s))
	}
	return firegeo.NewCollection(features...)
}

// Subscribe feeds the board from the fire, detection, report and location
// topics.
func (b *Board) Subscribe(bus messaging.Bus, topics messaging.Topics) error {
	handlers := []struct {
		topic string
		h     messaging.Handler
	}{
		{topics.FireLocation(), b.handleStarted},
		{topics.Detected(), b.handleDetected},
		{topics.Reported(), b.handleReported},
		{topics.SatelliteLocation(), b.handleLocation},
	}
	for _, sub := range handlers {
		s, err := bus.Subscribe(sub.topic, sub.h)
		if err != nil {
			_ = b.Close()
			return err
		}
		b.subs = append(b.subs, s)
	}
	return nil
}

// Close removes the subscriptions created by Subscribe.
func (b *Board) Close() error {
	var errs []error
	for _, s := range b.subs {
		if err := s.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	b.subs = nil
	return errors.Join(errs...)
}

func (b *Board) handleStarted(ctx context.Context, msg messaging.Message) {
	var evt model.FireStarted
	if b.decode(ctx, msg, &evt) {
		b.Started(evt)
	}
}

func (b *Board) handleDetected(ctx context.Context, msg messaging.Message) {
	var evt model.FireDetected
	if b.decode(ctx, msg, &evt) {
		b.Detected(evt)
	}
}

func (b *Board) handleReported(ctx context.Context, msg messaging.Message) {
	var evt model.FireReported
	if b.decode(ctx, msg, &evt) {
		b.Reported(evt)
	}
}

func (b *Board) handleLocation(ctx context.Context, msg messaging.Message) {
	var status model.SatelliteStatus
	if b.decode(ctx, msg, &status) {
		b.Location(status)
	}
}

func (b *Board) decode(ctx context.Context, msg messaging.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		b.log.Warn(ctx, "scoreboard dropping message",
			logging.String("topic", msg.Topic),
			logging.String("message_id", msg.ID),
			logging.Err(err),
		)
		return false
	}
	return true
}
