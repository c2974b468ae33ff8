package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchmaker-relay/metrics"

	"github.com/rs/zerolog/log"
)

const (
	GameEndpoint    = "Gameserver"
	BackendEndpoint = "Backend"

	// MinInterval is the shortest polling interval accepted.
	MinInterval = time.Second
)

type Status int

const (
	StatusUnknown Status = iota
	StatusUp
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "ON"
	case StatusDown:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Notifier receives one message per state transition. It must not block for
// long and never reports failure back to the monitor.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type Endpoint struct {
	Name     string
	Interval time.Duration
	Prober   Prober
}

// Monitor polls each endpoint on its own interval and keeps a small state
// machine per endpoint: Unknown -> Up/Down, emitting only on transitions.
type Monitor struct {
	mu        sync.RWMutex
	states    map[string]Status
	endpoints []Endpoint
	notifier  Notifier
}

func NewMonitor(notifier Notifier, endpoints ...Endpoint) *Monitor {
	m := &Monitor{
		states:   make(map[string]Status, len(endpoints)),
		notifier: notifier,
	}
	for _, ep := range endpoints {
		if ep.Interval < MinInterval {
			log.Warn().Str("endpoint", ep.Name).Dur("interval", ep.Interval).Dur("floor", MinInterval).Msg("liveness: interval below floor; clamping")
			ep.Interval = MinInterval
		}
		m.endpoints = append(m.endpoints, ep)
		m.states[ep.Name] = StatusUnknown
	}
	return m
}

// Run polls every endpoint until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range m.endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			m.poll(ctx, ep)
		}(ep)
	}
	wg.Wait()
}

func (m *Monitor) poll(ctx context.Context, ep Endpoint) {
	log.Info().Str("endpoint", ep.Name).Dur("interval", ep.Interval).Msg("liveness: polling started")
	t := time.NewTicker(ep.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("endpoint", ep.Name).Msg("liveness: polling stopped")
			return
		case <-t.C:
			m.check(ctx, ep)
		}
	}
}

// Check probes the named endpoint once and applies the result.
func (m *Monitor) Check(ctx context.Context, name string) (Status, error) {
	for _, ep := range m.endpoints {
		if ep.Name == name {
			return m.check(ctx, ep), nil
		}
	}
	return StatusUnknown, fmt.Errorf("liveness: unknown endpoint %q", name)
}

func (m *Monitor) check(ctx context.Context, ep Endpoint) Status {
	up, err := ep.Prober.Probe(ctx)
	if err != nil {
		metrics.ProbeErrorsTotal.WithLabelValues(ep.Name).Inc()
		log.Warn().Err(err).Str("endpoint", ep.Name).Msg("liveness: probe error; treating as down")
		up = false
	}
	next, _ := m.Observe(ctx, ep.Name, up)
	return next
}

// Observe records a probe result for name and notifies on a transition.
// Leaving Unknown for Down is silent: an endpoint starts out presumed down.
func (m *Monitor) Observe(ctx context.Context, name string, up bool) (Status, bool) {
	next := StatusDown
	if up {
		next = StatusUp
	}

	m.mu.Lock()
	prev, ok := m.states[name]
	if !ok {
		m.mu.Unlock()
		return StatusUnknown, false
	}
	m.states[name] = next
	m.mu.Unlock()

	if up {
		metrics.LivenessUp.WithLabelValues(name).Set(1)
	} else {
		metrics.LivenessUp.WithLabelValues(name).Set(0)
	}

	changed := prev != next && !(prev == StatusUnknown && next == StatusDown)
	if !changed {
		return next, false
	}
	msg := fmt.Sprintf("%s is %s", name, next)
	log.Info().Str("endpoint", name).Str("from", prev.String()).Str("to", next.String()).Msg(msg)
	if m.notifier != nil {
		m.notifier.Notify(ctx, msg)
	}
	return next, true
}

func (m *Monitor) Status(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[name]
}

func (m *Monitor) Eligible(name string) bool {
	return m.Status(name) == StatusUp
}

// GameEligible reports whether the game server endpoint is up.
func (m *Monitor) GameEligible() bool {
	return m.Eligible(GameEndpoint)
}

func (m *Monitor) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}
