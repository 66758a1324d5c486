package core

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/firesat/model"
)

// FireListener receives the first-detection and first-report notifications
// committed by Constellation.Tock. Calls are synchronous and ordered.
type FireListener interface {
	OnDetected(ctx context.Context, evt model.FireDetected)
	OnReported(ctx context.Context, evt model.FireReported)
}

// ListenerFuncs adapts plain functions to FireListener. Nil fields are skipped.
type ListenerFuncs struct {
	Detected func(ctx context.Context, evt model.FireDetected)
	Reported func(ctx context.Context, evt model.FireReported)
}

func (l ListenerFuncs) OnDetected(ctx context.Context, evt model.FireDetected) {
	if l.Detected != nil {
		l.Detected(ctx, evt)
	}
}

func (l ListenerFuncs) OnReported(ctx context.Context, evt model.FireReported) {
	if l.Reported != nil {
		l.Reported(ctx, evt)
	}
}

// SimContext is the simulation state owned by the driver: the authoritative
// clock and the registered fire listeners. It is handed to Initialize, Tick
// and Tock explicitly.
type SimContext struct {
	mu        sync.RWMutex
	now       time.Time
	listeners []FireListener
}

// NewSimContext constructs a context whose clock reads start.
func NewSimContext(start time.Time) *SimContext {
	return &SimContext{now: start}
}

// Now returns the current simulation time.
func (s *SimContext) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// AddListener registers l for every subsequent notification.
func (s *SimContext) AddListener(l FireListener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *SimContext) setTime(t time.Time) {
	s.mu.Lock()
	s.now = t
	s.mu.Unlock()
}

func (s *SimContext) advance(dt time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(dt)
	return s.now
}

func (s *SimContext) snapshotListeners() []FireListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FireListener(nil), s.listeners...)
}

func (s *SimContext) notifyDetected(ctx context.Context, evt model.FireDetected) {
	for _, l := range s.snapshotListeners() {
		l.OnDetected(ctx, evt)
	}
}

func (s *SimContext) notifyReported(ctx context.Context, evt model.FireReported) {
	for _, l := range s.snapshotListeners() {
		l.OnReported(ctx, evt)
	}
}
