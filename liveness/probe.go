package liveness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrProbe marks a probe that failed for a reason other than the port being
// free. The endpoint counts as down for that tick.
var ErrProbe = errors.New("probe failed")

type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

type ProberFunc func(ctx context.Context) (bool, error)

func (f ProberFunc) Probe(ctx context.Context) (bool, error) { return f(ctx) }

// PortProbe reports an endpoint as live when something already listens on
// Addr. It tries to bind Addr itself: EADDRINUSE means live, a successful bind
// means nobody is there and the listener is released immediately.
type PortProbe struct {
	Addr string
}

func (p PortProbe) Probe(ctx context.Context) (bool, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.Addr)
	if err == nil {
		if cerr := ln.Close(); cerr != nil {
			return false, fmt.Errorf("%w: release %s: %v", ErrProbe, p.Addr, cerr)
		}
		return false, nil
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true, nil
	}
	return false, fmt.Errorf("%w: listen %s: %v", ErrProbe, p.Addr, err)
}
