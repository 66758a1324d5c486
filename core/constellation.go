package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/kb"
	"github.com/signalsfoundry/firesat/model"
)

// ErrNoSatellites is returned when a constellation is built without members.
var ErrNoSatellites = errors.New("constellation has no satellites")

// Satellite is one constellation member: its identity plus the collaborator
// that locates it in time.
type Satellite struct {
	model.SatelliteDefinition
	Propagator Propagator
}

// NewSatellite builds a satellite and its propagator from a definition.
func NewSatellite(def model.SatelliteDefinition) (*Satellite, error) {
	p, err := NewPropagator(def)
	if err != nil {
		return nil, err
	}
	return &Satellite{SatelliteDefinition: def, Propagator: p}, nil
}

// MetricsRecorder receives constellation counters and timings.
type MetricsRecorder interface {
	SetFiresTracked(n int)
	IncFiresDetected()
	IncFiresReported()
	ObserveTick(d time.Duration)
	SetSimTime(t time.Time)
	IncSatelliteUnavailable(satellite string)
}

// Constellation owns the satellites, the tracked fires and their
// detection/report records, and steps them through simulation time with a
// two-phase Tick/Tock protocol: Tick stages the next state, Tock commits it
// and emits notifications.
//
// Constellation is not safe for concurrent use; the driver serialises
// inbound events and steps onto one goroutine.
type Constellation struct {
	satellites []*Satellite
	names      []string
	grounds    *kb.GroundRegistry

	// fires, detect and report are index-aligned.
	fires  []model.Fire
	detect []*DetectionRecord
	report []*ReportRecord

	positions         []model.GeographicPosition
	nextPositions     []model.GeographicPosition
	minElevations     []float64
	nextMinElevations []float64

	// unavailable marks satellites whose position could not be computed
	// for the staged step.
	unavailable []bool

	staged  bool
	stagedD time.Duration

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option customises Constellation construction.
type Option func(*Constellation)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Constellation) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *Constellation) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer used for Tick/Tock spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Constellation) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewConstellation builds a constellation over the given satellites. A nil
// registry gets a fresh empty one.
func NewConstellation(satellites []*Satellite, grounds *kb.GroundRegistry, opts ...Option) (*Constellation, error) {
	if len(satellites) == 0 {
		return nil, ErrNoSatellites
	}
	if grounds == nil {
		grounds = kb.NewGroundRegistry()
	}

	names := make([]string, len(satellites))
	for i, s := range satellites {
		if s == nil || s.Propagator == nil {
			return nil, fmt.Errorf("satellite %d has no propagator", i)
		}
		names[i] = s.Name
	}

	c := &Constellation{
		satellites:        satellites,
		names:             names,
		grounds:           grounds,
		positions:         make([]model.GeographicPosition, len(satellites)),
		nextPositions:     make([]model.GeographicPosition, len(satellites)),
		minElevations:     make([]float64, len(satellites)),
		nextMinElevations: make([]float64, len(satellites)),
		unavailable:       make([]bool, len(satellites)),
		log:               logging.Noop(),
		tracer:            otel.Tracer("github.com/signalsfoundry/firesat/core"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize activates the constellation at initTime: it sets the
// simulation clock, places every satellite, derives the minimum elevations
// and empties the ground registry.
func (c *Constellation) Initialize(ctx context.Context, sim *SimContext, initTime time.Time) error {
	positions := make([]model.GeographicPosition, len(c.satellites))
	for i, s := range c.satellites {
		pos, err := s.Propagator.PositionAt(initTime)
		if err != nil {
			return fmt.Errorf("initialize at %s: satellite %q: %w", initTime.Format(time.RFC3339), s.Name, err)
		}
		positions[i] = pos
	}

	sim.setTime(initTime)
	c.grounds.Reset()
	c.positions = positions
	c.nextPositions = positions
	c.minElevations = c.deriveMinElevations(positions)
	c.nextMinElevations = c.minElevations
	c.unavailable = make([]bool, len(c.satellites))
	c.staged = false
	c.stagedD = 0

	if c.metrics != nil {
		c.metrics.SetSimTime(initTime)
	}
	c.log.Info(ctx, "constellation initialized",
		logging.Time("sim_time", initTime),
		logging.Int("satellites", len(c.satellites)),
	)
	return nil
}

// Tick computes the constellation state dt after the current simulation
// time. It latches new detections and reports on the fire records but emits
// nothing and leaves the committed positions untouched.
//
// A satellite whose position cannot be computed is unavailable for the
// step: it keeps its last committed position, takes no part in detection or
// reporting, and the rest of the constellation is staged as usual.
func (c *Constellation) Tick(ctx context.Context, sim *SimContext, dt time.Duration) error {
	start := time.Now()
	then := sim.Now().Add(dt)
	ctx, span := c.tracer.Start(ctx, "constellation.tick", trace.WithAttributes(
		attribute.String("sim.then", then.Format(time.RFC3339)),
		attribute.Int("fires", len(c.fires)),
	))
	defer span.End()

	next, unavailable := c.propagate(ctx, span, then)
	nextMin := c.deriveMinElevations(next)

	c.nextPositions = next
	c.nextMinElevations = nextMin
	c.unavailable = unavailable
	c.staged = true
	c.stagedD = dt

	newDetections := 0
	for j, fire := range c.fires {
		rec := c.detect[j]
		for i := range c.satellites {
			if unavailable[i] || !rec.Detected[i].IsZero() {
				continue
			}
			if InView(next[i], fire.Position, nextMin[i]) {
				rec.latch(i, then)
				newDetections++
			}
		}
	}

	// Range depends only on the satellite, so evaluate it at most once per
	// satellite per tick.
	grounds := c.grounds.List()
	type rangeResult struct {
		evaluated bool
		ok        bool
		groundID  int
	}
	ranges := make([]rangeResult, len(c.satellites))

	newReports := 0
	for j := range c.fires {
		det, rep := c.detect[j], c.report[j]
		for i := range c.satellites {
			if unavailable[i] || det.Detected[i].IsZero() || !rep.Reported[i].IsZero() {
				continue
			}
			if !ranges[i].evaluated {
				ok, gid := InRange(next[i], grounds)
				ranges[i] = rangeResult{evaluated: true, ok: ok, groundID: gid}
			}
			if ranges[i].ok {
				rep.latch(i, then, ranges[i].groundID)
				newReports++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("detections.new", newDetections),
		attribute.Int("reports.new", newReports),
	)
	if c.metrics != nil {
		c.metrics.ObserveTick(time.Since(start))
	}
	c.log.Debug(ctx, "tick computed",
		logging.Time("sim_time", then),
		logging.Int("new_detections", newDetections),
		logging.Int("new_reports", newReports),
	)
	return nil
}

// Tock commits the state staged by the last Tick, emits one Detected
// notification per newly detected fire and then one Reported notification
// per newly reported fire (each in fire order), and advances the clock.
// Tock without a staged Tick does nothing: no notifications are sent and
// the clock stays where it is.
func (c *Constellation) Tock(ctx context.Context, sim *SimContext) error {
	if !c.staged {
		c.log.Debug(ctx, "tock without a staged tick; nothing to commit")
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "constellation.tock")
	defer span.End()

	c.positions = c.nextPositions
	c.minElevations = c.nextMinElevations

	detected := 0
	for _, rec := range c.detect {
		if !rec.FirstDetect || rec.announced {
			continue
		}
		rec.announced = true
		detected++
		evt := model.FireDetected{
			FireID:     rec.FireID,
			Detected:   rec.Detected[rec.FirstDetector],
			DetectedBy: c.names[rec.FirstDetector],
		}
		c.log.Info(ctx, "fire detected",
			logging.Int("fire_id", evt.FireID),
			logging.String("detected_by", evt.DetectedBy),
			logging.Time("detected", evt.Detected),
		)
		sim.notifyDetected(ctx, evt)
		if c.metrics != nil {
			c.metrics.IncFiresDetected()
		}
	}

	reported := 0
	for _, rec := range c.report {
		if rec.FirstReport {
			reported++
			evt := model.FireReported{
				FireID:     rec.FireID,
				Reported:   rec.Reported[rec.FirstReporter],
				ReportedBy: c.names[rec.FirstReporter],
				ReportedTo: rec.FirstReportedTo,
			}
			c.log.Info(ctx, "fire reported",
				logging.Int("fire_id", evt.FireID),
				logging.String("reported_by", evt.ReportedBy),
				logging.Int("reported_to", evt.ReportedTo),
				logging.Time("reported", evt.Reported),
			)
			sim.notifyReported(ctx, evt)
			if c.metrics != nil {
				c.metrics.IncFiresReported()
			}
		}
		rec.FirstReport = false
	}

	now := sim.advance(c.stagedD)
	c.staged = false
	c.stagedD = 0

	span.SetAttributes(
		attribute.String("sim.now", now.Format(time.RFC3339)),
		attribute.Int("detected", detected),
		attribute.Int("reported", reported),
	)
	if c.metrics != nil {
		c.metrics.SetSimTime(now)
	}
	return nil
}

// OnFireStarted starts tracking a fire with empty detection and report
// records. Duplicate fire ids are not filtered; each event adds a fire.
func (c *Constellation) OnFireStarted(ctx context.Context, evt model.FireStarted) {
	c.fires = append(c.fires, evt.Fire())
	c.detect = append(c.detect, newDetectionRecord(evt.FireID, len(c.satellites)))
	c.report = append(c.report, newReportRecord(evt.FireID, len(c.satellites)))

	if c.metrics != nil {
		c.metrics.SetFiresTracked(len(c.fires))
	}
	c.log.Debug(ctx, "tracking fire",
		logging.Int("fire_id", evt.FireID),
		logging.Float("latitude", evt.Latitude),
		logging.Float("longitude", evt.Longitude),
		logging.Time("start", evt.Start),
	)
}

// OnGroundUpdate adds or updates a ground station.
func (c *Constellation) OnGroundUpdate(ctx context.Context, evt model.GroundLocation) {
	added := c.grounds.Upsert(evt.Station())
	verb := "ground station updated"
	if added {
		verb = "ground station added"
	}
	c.log.Info(ctx, verb,
		logging.Int("ground_id", evt.GroundID),
		logging.Bool("operational", evt.Operational),
	)
}

// Satellites returns the constellation members in index order.
func (c *Constellation) Satellites() []*Satellite {
	return append([]*Satellite(nil), c.satellites...)
}

// Names returns satellite names in index order.
func (c *Constellation) Names() []string {
	return append([]string(nil), c.names...)
}

// Grounds returns the ground registry read during Tick.
func (c *Constellation) Grounds() *kb.GroundRegistry {
	return c.grounds
}

// Positions returns the committed satellite positions.
func (c *Constellation) Positions() []model.GeographicPosition {
	return append([]model.GeographicPosition(nil), c.positions...)
}

// MinElevations returns the committed per-satellite minimum elevation
// angles (degrees) for fire visibility.
func (c *Constellation) MinElevations() []float64 {
	return append([]float64(nil), c.minElevations...)
}

// Fires returns the tracked fires in arrival order.
func (c *Constellation) Fires() []model.Fire {
	return append([]model.Fire(nil), c.fires...)
}

// Detection returns a copy of the first detection record for fireID.
func (c *Constellation) Detection(fireID int) (DetectionRecord, bool) {
	for _, rec := range c.detect {
		if rec.FireID == fireID {
			return rec.clone(), true
		}
	}
	return DetectionRecord{}, false
}

// Report returns a copy of the first report record for fireID.
func (c *Constellation) Report(fireID int) (ReportRecord, bool) {
	for _, rec := range c.report {
		if rec.FireID == fireID {
			return rec.clone(), true
		}
	}
	return ReportRecord{}, false
}

// Staged reports whether a Tick is waiting to be committed.
func (c *Constellation) Staged() bool {
	return c.staged
}

// Unavailable reports, in index order, which satellites sat out the most
// recent Tick.
func (c *Constellation) Unavailable() []bool {
	return append([]bool(nil), c.unavailable...)
}

// propagate locates every satellite at t. Satellites that fail keep their
// committed position and are flagged unavailable.
func (c *Constellation) propagate(ctx context.Context, span trace.Span, t time.Time) ([]model.GeographicPosition, []bool) {
	out := make([]model.GeographicPosition, len(c.satellites))
	unavailable := make([]bool, len(c.satellites))
	for i, s := range c.satellites {
		pos, err := s.Propagator.PositionAt(t)
		if err != nil {
			out[i] = c.positions[i]
			unavailable[i] = true
			span.RecordError(err, trace.WithAttributes(attribute.String("satellite", s.Name)))
			c.log.Warn(ctx, "satellite unavailable for step",
				logging.String("satellite", s.Name),
				logging.Time("sim_time", t),
				logging.Err(err),
			)
			if c.metrics != nil {
				c.metrics.IncSatelliteUnavailable(s.Name)
			}
			continue
		}
		out[i] = pos
	}
	return out, unavailable
}

func (c *Constellation) deriveMinElevations(positions []model.GeographicPosition) []float64 {
	out := make([]float64, len(positions))
	for i, pos := range positions {
		out[i] = MinElevation(pos.Altitude, c.satellites[i].FieldOfRegard)
	}
	return out
}
