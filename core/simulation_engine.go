package core

import (
	"context"
	"time"
)

// TockHook runs after every committed step with the new simulation time.
type TockHook func(ctx context.Context, now time.Time)

// SimulationEngine binds a constellation to its simulation context and
// exposes the step API the driver needs.
type SimulationEngine struct {
	Constellation *Constellation
	Sim           *SimContext
	tockHooks     []TockHook
}

func NewSimulationEngine(c *Constellation, sim *SimContext) *SimulationEngine {
	return &SimulationEngine{
		Constellation: c,
		Sim:           sim,
	}
}

// RegisterTockHook adds fn to the hooks run after each Tock.
func (se *SimulationEngine) RegisterTockHook(fn TockHook) {
	se.tockHooks = append(se.tockHooks, fn)
}

// AddListener registers a fire listener on the simulation context.
func (se *SimulationEngine) AddListener(l FireListener) {
	se.Sim.AddListener(l)
}

// Now returns the current simulation time.
func (se *SimulationEngine) Now() time.Time {
	return se.Sim.Now()
}

func (se *SimulationEngine) Initialize(ctx context.Context, start time.Time) error {
	return se.Constellation.Initialize(ctx, se.Sim, start)
}

func (se *SimulationEngine) Tick(ctx context.Context, dt time.Duration) error {
	return se.Constellation.Tick(ctx, se.Sim, dt)
}

// Tock commits the staged step and runs the tock hooks. Without a staged
// Tick nothing is committed, the clock stays put and the hooks do not run.
func (se *SimulationEngine) Tock(ctx context.Context) error {
	committed := se.Constellation.Staged()
	if err := se.Constellation.Tock(ctx, se.Sim); err != nil {
		return err
	}
	if !committed {
		return nil
	}
	now := se.Sim.Now()
	for _, fn := range se.tockHooks {
		fn(ctx, now)
	}
	return nil
}

// Run steps the engine synchronously. It stops at the first error.
func (se *SimulationEngine) Run(ctx context.Context, steps int, dt time.Duration) error {
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := se.Tick(ctx, dt); err != nil {
			return err
		}
		if err := se.Tock(ctx); err != nil {
			return err
		}
	}
	return nil
}
