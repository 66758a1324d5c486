package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/firesat/internal/logging"
)

// SimClock is an interface for accessing simulation time. Components that
// only need to read the clock (status publishing, scoreboards) depend on it
// rather than on the controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Stepper is the two-phase engine the controller drives.
type Stepper interface {
	SimClock
	Tick(ctx context.Context, dt time.Duration) error
	Tock(ctx context.Context) error
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces steps against the wall clock, scaled by TimeScale.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Step.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ErrInvalidStep is returned by Run when the controller has no positive step.
var ErrInvalidStep = errors.New("time step must be positive")

// TimeController drives simulation time. Before every step it applies the
// inbound work queued with Enqueue, then calls Tick and Tock on the engine
// and notifies registered listeners. All engine access happens on the
// goroutine running Run.
type TimeController struct {
	Step      time.Duration
	Mode      Mode
	TimeScale float64

	engine Stepper
	log    logging.Logger

	mu      sync.Mutex
	pending []func(context.Context)

	listeners []func(time.Time)
	onError   func(error)
}

// Option customises a TimeController.
type Option func(*TimeController)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(tc *TimeController) {
		if l != nil {
			tc.log = l
		}
	}
}

// WithTimeScale sets how many simulated seconds pass per wall-clock second
// in RealTime mode. Values <= 0 are treated as 1.
func WithTimeScale(scale float64) Option {
	return func(tc *TimeController) {
		tc.TimeScale = scale
	}
}

// WithStepErrorHandler registers fn to observe failed steps.
func WithStepErrorHandler(fn func(error)) Option {
	return func(tc *TimeController) {
		tc.onError = fn
	}
}

// NewTimeController constructs a controller stepping engine by step.
func NewTimeController(engine Stepper, step time.Duration, mode Mode, opts ...Option) *TimeController {
	tc := &TimeController{
		Step:      step,
		Mode:      mode,
		TimeScale: 1,
		engine:    engine,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	return tc.engine.Now()
}

// AddListener registers a callback invoked after every committed step.
// Listeners must be added before Run.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Enqueue schedules fn to run on the simulation goroutine before the next
// step. It is safe to call from any goroutine and never blocks.
func (tc *TimeController) Enqueue(fn func(context.Context)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.pending = append(tc.pending, fn)
	tc.mu.Unlock()
}

// Drain runs every queued function in arrival order and returns how many ran.
func (tc *TimeController) Drain(ctx context.Context) int {
	tc.mu.Lock()
	work := tc.pending
	tc.pending = nil
	tc.mu.Unlock()

	for _, fn := range work {
		fn(ctx)
	}
	return len(work)
}

// StepOnce drains the inbox and performs one Tick/Tock. A failed Tick leaves
// the engine uncommitted and is returned to the caller.
func (tc *TimeController) StepOnce(ctx context.Context) error {
	tc.Drain(ctx)

	if err := tc.engine.Tick(ctx, tc.Step); err != nil {
		return err
	}
	if err := tc.engine.Tock(ctx); err != nil {
		return err
	}

	now := tc.engine.Now()
	for _, fn := range tc.listeners {
		fn(now)
	}
	return nil
}

// Run steps the engine until duration of simulated time has been attempted
// (duration <= 0 runs until ctx is done). Failed steps are logged and the
// loop continues with the next one. Run returns ctx.Err() when cancelled and
// nil when the duration is exhausted.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	if tc.Step <= 0 {
		return ErrInvalidStep
	}

	var tick <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.wallInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	tc.log.Info(ctx, "simulation loop started",
		logging.Time("sim_time", tc.engine.Now()),
		logging.Duration("step", tc.Step),
		logging.String("mode", tc.Mode.String()),
	)

	elapsed := time.Duration(0)
	for duration <= 0 || elapsed < duration {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := tc.StepOnce(ctx); err != nil {
			tc.log.Error(ctx, "simulation step failed",
				logging.Time("sim_time", tc.engine.Now()),
				logging.Err(err),
			)
			if tc.onError != nil {
				tc.onError(err)
			}
		}
		elapsed += tc.Step
	}

	// Apply anything that arrived during the final step.
	tc.Drain(ctx)
	tc.log.Info(ctx, "simulation loop finished", logging.Time("sim_time", tc.engine.Now()))
	return nil
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := tc.Run(ctx, duration); err != nil && !errors.Is(err, context.Canceled) {
			tc.log.Warn(ctx, "simulation loop stopped", logging.Err(err))
		}
	}()
	return done
}

func (tc *TimeController) wallInterval() time.Duration {
	scale := tc.TimeScale
	if scale <= 0 {
		scale = 1
	}
	d := time.Duration(float64(tc.Step) / scale)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}
