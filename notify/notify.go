package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"matchmaker-relay/metrics"

	"github.com/rs/zerolog/log"
)

// ErrNotification wraps a failed delivery to a sink.
var ErrNotification = errors.New("notification failed")

// Notifier delivers one human-readable message to an external channel.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Event is the structured form of a message for machine consumers.
type Event struct {
	EnvelopeVersion string    `json:"envelopeVersion"`
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	SentAt          time.Time `json:"sentAt"`
}

func NewEvent(message string, now time.Time) *Event {
	return &Event{
		EnvelopeVersion: "1.0",
		Type:            "relay-notification",
		Message:         message,
		SentAt:          now.UTC(),
	}
}

type Sink struct {
	Name     string
	Notifier Notifier
}

// Dispatcher fans a message out to every sink in the background. Failures are
// logged and counted, never returned.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, timeout: timeout}
}

func (d *Dispatcher) Notify(ctx context.Context, message string) {
	if len(d.sinks) == 0 {
		log.Debug().Str("message", message).Msg("notify: no sinks configured")
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Str("message", message).Msg("notify: dispatcher closed; message dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		for _, s := range d.sinks {
			d.deliver(ctx, s, message)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, message string) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := s.Notifier.Send(ctx, message); err != nil {
		metrics.NotificationsTotal.WithLabelValues(s.Name, "failure").Inc()
		log.Error().Err(err).Str("sink", s.Name).Str("message", message).Msg("notify: delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(s.Name, "success").Inc()
	log.Debug().Str("sink", s.Name).Str("message", message).Msg("notify: delivered")
}

// Wait blocks until every in-flight notification has finished. Callers must
// not race it with Notify; use Close at shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting messages and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
