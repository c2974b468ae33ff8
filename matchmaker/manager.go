package matchmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"matchmaker-relay/metrics"

	"github.com/rs/zerolog/log"
)

// Connection is one live client channel. Its state is owned by the Manager.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	sender Sender
	state  State
}

// Options tune the match-request algorithm.
type Options struct {
	// BanCheckTimeout bounds a single ban lookup. Zero disables the bound.
	BanCheckTimeout time.Duration
	// FailClosed rejects a match request when the ban store errors instead of
	// admitting the player.
	FailClosed bool
	Now        func() time.Time
}

// Manager owns the live connections and the match queue.
// The queue is only mutated while mu is held and no external call happens
// between a queue read and the write that depends on it.
type Manager struct {
	mu    sync.Mutex
	conns map[*Connection]struct{}
	queue *Queue

	bans     BanChecker
	liveness Eligibility
	opts     Options
}

func NewManager(bans BanChecker, liveness Eligibility, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		conns:    make(map[*Connection]struct{}),
		queue:    NewQueue(),
		bans:     bans,
		liveness: liveness,
		opts:     opts,
	}
}

// OnConnect registers a new client channel in state Connected.
func (m *Manager) OnConnect(id string, s Sender) *Connection {
	c := &Connection{ID: id, ConnectedAt: m.opts.Now(), sender: s, state: StateConnected}
	m.mu.Lock()
	m.conns[c] = struct{}{}
	n := len(m.conns)
	m.mu.Unlock()
	metrics.ConnectionsActive.Set(float64(n))
	log.Info().Str("conn", id).Int("connections", n).Msg("matchmaker: client connected")
	return c
}

// OnDisconnect closes c and drops it from the queue if it is still waiting.
func (m *Manager) OnDisconnect(c *Connection) {
	m.mu.Lock()
	if c.state == StateClosed {
		m.mu.Unlock()
		return
	}
	removed := m.queue.Remove(c)
	c.state = StateClosed
	delete(m.conns, c)
	n, depth := len(m.conns), m.queue.Len()
	m.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(n))
	metrics.QueueDepth.Set(float64(depth))
	log.Info().Str("conn", c.ID).Bool("dequeued", removed).Int("connections", n).Msg("matchmaker: client disconnected")
}

// OnMessage handles one inbound frame. Frames from a single connection must be
// passed in arrival order. Protocol errors are returned for logging only; the
// connection stays open.
func (m *Manager) OnMessage(ctx context.Context, c *Connection, raw []byte) error {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrProtocol, err)
	}

	switch in.Action {
	case ActionMatch:
		body := in.Payload
		if len(body) == 0 {
			body = in.Data
		}
		var p MatchPayload
		if len(body) > 0 {
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("%w: decode match payload: %v", ErrProtocol, err)
			}
		}
		identity := p.identity()
		if identity == "" {
			metrics.MatchRequestsTotal.WithLabelValues("invalid").Inc()
			return fmt.Errorf("%w: match request without identity", ErrProtocol)
		}
		m.handleMatch(ctx, c, identity)
		return nil
	default:
		log.Warn().Str("conn", c.ID).Str("action", in.Action).Msg("matchmaker: unsupported action dropped")
		return nil
	}
}

func (m *Manager) handleMatch(ctx context.Context, c *Connection, identity string) {
	switch m.StateOf(c) {
	case StateClosed:
		return
	case StateQueued:
		metrics.MatchRequestsTotal.WithLabelValues("duplicate").Inc()
		log.Debug().Str("conn", c.ID).Str("identity", identity).Msg("matchmaker: already queued; ignoring match request")
		return
	}

	banned, err := m.checkBan(ctx, identity)
	if err != nil {
		if m.opts.FailClosed {
			metrics.MatchRequestsTotal.WithLabelValues("unavailable").Inc()
			log.Warn().Err(err).Str("conn", c.ID).Str("identity", identity).Msg("matchmaker: ban check failed; rejecting request")
			m.send(c, unavailableMessage())
			return
		}
		log.Warn().Err(err).Str("conn", c.ID).Str("identity", identity).Msg("matchmaker: ban check failed; admitting player")
	}
	if banned {
		metrics.MatchRequestsTotal.WithLabelValues("banned").Inc()
		log.Info().Str("conn", c.ID).Str("identity", identity).Msg("matchmaker: banned player rejected")
		m.send(c, bannedMessage())
		return
	}

	m.enqueueAndAssign(c, identity)
}

func (m *Manager) checkBan(ctx context.Context, identity string) (bool, error) {
	if m.bans == nil {
		return false, nil
	}
	if m.opts.BanCheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.BanCheckTimeout)
		defer cancel()
	}
	start := time.Now()
	banned, err := m.bans.IsBanned(ctx, identity)
	metrics.BanCheckDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.BanChecksTotal.WithLabelValues("error").Inc()
	case banned:
		metrics.BanChecksTotal.WithLabelValues("banned").Inc()
	default:
		metrics.BanChecksTotal.WithLabelValues("clear").Inc()
	}
	return banned, err
}

// enqueueAndAssign pushes c and, when the game endpoint is eligible, pops the
// head and delivers its assignment, all in one critical section.
func (m *Manager) enqueueAndAssign(c *Connection, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The connection may have closed or been queued while the ban check ran.
	if c.state == StateClosed || c.state == StateQueued {
		return
	}
	m.queue.Push(c)
	c.state = StateQueued
	metrics.MatchRequestsTotal.WithLabelValues("queued").Inc()
	log.Info().Str("conn", c.ID).Str("identity", identity).Int("position", m.queue.Len()).Msg("matchmaker: player added to the queue")

	if m.liveness != nil && m.liveness.GameEligible() {
		if head, ok := m.queue.PopFront(); ok {
			head.state = StateAssigned
			a := NewSessionAssignment(m.opts.Now())
			metrics.AssignmentsTotal.Inc()
			log.Info().Str("conn", head.ID).Str("matchId", a.MatchID).Msg("matchmaker: player assigned to session")
			m.send(head, a.Message())
		}
	}
	metrics.QueueDepth.Set(float64(m.queue.Len()))
}

func (m *Manager) send(c *Connection, msg Outbound) {
	if c.sender == nil {
		return
	}
	if err := c.sender.Send(msg); err != nil {
		log.Error().Err(err).Str("conn", c.ID).Str("action", msg.Action).Str("name", msg.Name).Msg("matchmaker: failed to deliver message")
	}
}

// StateOf returns the protocol state of c.
func (m *Manager) StateOf(c *Connection) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.state
}

// QueuePosition returns the 1-based queue position of c.
func (m *Manager) QueuePosition(c *Connection) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Position(c)
}

func (m *Manager) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

func (m *Manager) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}
