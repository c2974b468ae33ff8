package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"matchmaker-relay/admin"
	"matchmaker-relay/metrics"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Handler applies one validated admin command.
type Handler func(ctx context.Context, cmd admin.Command) error

// outcome of processing one message. Only outcomeFailed is redelivered.
type outcome string

const (
	outcomeApplied  outcome = "applied"
	outcomeRejected outcome = "rejected"
	outcomeFailed   outcome = "failed"
)

// Subscriber receives ban administration commands from a Pub/Sub
// subscription, for operators without access to the relay's stdin.
type Subscriber struct {
	projectID        string
	subscriptionName string
	credsFile        string
	client           *gpubsub.Client
	sub              *gpubsub.Subscription
}

func NewSubscriber(projectID, subscriptionName, credsFile string) *Subscriber {
	return &Subscriber{projectID: projectID, subscriptionName: subscriptionName, credsFile: credsFile}
}

func (s *Subscriber) connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	var opts []option.ClientOption
	if s.credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.credsFile))
	}
	client, err := gpubsub.NewClient(ctx, s.projectID, opts...)
	if err != nil {
		log.Error().Err(err).Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("admin: pubsub client failed")
		return err
	}
	s.client = client
	s.sub = client.Subscription(s.subscriptionName)
	log.Info().Str("subscription", s.subscriptionName).Bool("explicitCredentials", s.credsFile != "").Msg("admin: listening for remote commands")
	return nil
}

// Start receives commands until ctx is cancelled. Undecodable or invalid
// commands are acked and dropped; a handler error leaves the message for
// redelivery.
func (s *Subscriber) Start(ctx context.Context, handle Handler) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		start := time.Now()
		cmd, res, err := process(ctx, m.Data, handle)
		metrics.AdminCommandsTotal.WithLabelValues("pubsub", string(res)).Inc()

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("messageID", m.ID).
			Str("command", cmd.Op).
			Str("identity", cmd.Identity).
			Str("outcome", string(res)).
			Int("attempt", deliveryAttempt(m)).
			Dur("latency", time.Since(start)).
			Msg("admin: remote command")

		if res == outcomeFailed {
			m.Nack()
			return
		}
		m.Ack()
	})
}

func process(ctx context.Context, data []byte, handle Handler) (admin.Command, outcome, error) {
	var cmd admin.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, outcomeRejected, err
	}
	cmd, err := cmd.Validate()
	if err != nil {
		return cmd, outcomeRejected, err
	}
	if err := handle(ctx, cmd); err != nil {
		return cmd, outcomeFailed, err
	}
	return cmd, outcomeApplied, nil
}

// deliveryAttempt is 0 unless the subscription has a dead-letter policy.
func deliveryAttempt(m *gpubsub.Message) int {
	if m.DeliveryAttempt == nil {
		return 0
	}
	return *m.DeliveryAttempt
}

func (s *Subscriber) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
