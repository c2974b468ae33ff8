package liveness

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message)
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// sequenceProber returns the queued results in order, then repeats the last.
type sequenceProber struct {
	mu      sync.Mutex
	results []bool
	errs    []error
	i       int
}

func (s *sequenceProber) Probe(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.i
	if i >= len(s.results) {
		i = len(s.results) - 1
	} else {
		s.i++
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func TestMonitor_Debounce(t *testing.T) {
	tests := []struct {
		name string
		seq  []bool
		want []string
	}{
		{name: "up then down", seq: []bool{false, false, true, true, false}, want: []string{"Gameserver is ON", "Gameserver is OFF"}},
		{name: "steady down", seq: []bool{false, false, false}, want: nil},
		{name: "steady up", seq: []bool{true, true, true}, want: []string{"Gameserver is ON"}},
		{name: "flapping", seq: []bool{true, false, true, false}, want: []string{"Gameserver is ON", "Gameserver is OFF", "Gameserver is ON", "Gameserver is OFF"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			p := &sequenceProber{results: tt.seq}
			m := NewMonitor(n, Endpoint{Name: GameEndpoint, Interval: time.Second, Prober: p})
			for range tt.seq {
				_, err := m.Check(context.Background(), GameEndpoint)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, n.messages())
		})
	}
}

func TestMonitor_ProbeErrorCountsAsDown(t *testing.T) {
	n := &recordingNotifier{}
	p := &sequenceProber{
		results: []bool{true, true},
		errs:    []error{nil, errors.New("boom")},
	}
	m := NewMonitor(n, Endpoint{Name: BackendEndpoint, Interval: time.Second, Prober: p})

	st, err := m.Check(context.Background(), BackendEndpoint)
	require.NoError(t, err)
	assert.Equal(t, StatusUp, st)

	st, err = m.Check(context.Background(), BackendEndpoint)
	require.NoError(t, err)
	assert.Equal(t, StatusDown, st)
	assert.Equal(t, []string{"Backend is ON", "Backend is OFF"}, n.messages())
}

func TestMonitor_IndependentEndpoints(t *testing.T) {
	n := &recordingNotifier{}
	game := &sequenceProber{results: []bool{true}}
	backend := &sequenceProber{results: []bool{false}}
	m := NewMonitor(n,
		Endpoint{Name: GameEndpoint, Interval: time.Second, Prober: game},
		Endpoint{Name: BackendEndpoint, Interval: time.Second, Prober: backend},
	)

	assert.False(t, m.GameEligible())
	assert.Equal(t, StatusUnknown, m.Status(BackendEndpoint))

	_, _ = m.Check(context.Background(), GameEndpoint)
	_, _ = m.Check(context.Background(), BackendEndpoint)

	assert.True(t, m.GameEligible())
	assert.False(t, m.Eligible(BackendEndpoint))
	assert.Equal(t, map[string]Status{GameEndpoint: StatusUp, BackendEndpoint: StatusDown}, m.Snapshot())
	assert.Equal(t, []string{"Gameserver is ON"}, n.messages())
}

func TestMonitor_CheckUnknownEndpoint(t *testing.T) {
	m := NewMonitor(nil)
	_, err := m.Check(context.Background(), "nope")
	assert.Error(t, err)

	st, changed := m.Observe(context.Background(), "nope", true)
	assert.Equal(t, StatusUnknown, st)
	assert.False(t, changed)
}

func TestNewMonitor_IntervalFloor(t *testing.T) {
	m := NewMonitor(nil, Endpoint{Name: GameEndpoint, Interval: 5 * time.Millisecond, Prober: &sequenceProber{results: []bool{false}}})
	require.Len(t, m.endpoints, 1)
	assert.Equal(t, MinInterval, m.endpoints[0].Interval)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := NewMonitor(nil, Endpoint{Name: GameEndpoint, Interval: time.Second, Prober: &sequenceProber{results: []bool{false}}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ON", StatusUp.String())
	assert.Equal(t, "OFF", StatusDown.String())
	assert.Equal(t, "UNKNOWN", StatusUnknown.String())
}

func TestPortProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	up, err := PortProbe{Addr: addr}.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, up, "occupied port is live")

	require.NoError(t, ln.Close())

	up, err = PortProbe{Addr: addr}.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, up, "free port is not live")
}

func TestPortProbe_BadAddress(t *testing.T) {
	up, err := PortProbe{Addr: "not-an-address"}.Probe(context.Background())
	assert.False(t, up)
	assert.ErrorIs(t, err, ErrProbe)
}
