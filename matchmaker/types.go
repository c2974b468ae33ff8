package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrProtocol marks an inbound frame that could not be understood.
var ErrProtocol = errors.New("protocol error")

const (
	ActionMatch       = "match"
	ActionBanned      = "banned"
	ActionUnavailable = "unavailable"

	NameStatusUpdate       = "StatusUpdate"
	StateSessionAssignment = "SessionAssignment"
)

// State is the protocol state of a single client connection.
type State string

const (
	StateConnected State = "Connected"
	StateQueued    State = "Queued"
	StateAssigned  State = "Assigned"
	StateClosed    State = "Closed"
)

// Inbound is the envelope clients send. Older clients put the payload under
// "data" instead of "payload".
type Inbound struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MatchPayload carries the identity of the player asking to be matched.
type MatchPayload struct {
	Identity string `json:"identity,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (p MatchPayload) identity() string {
	if id := strings.TrimSpace(p.Identity); id != "" {
		return id
	}
	return strings.TrimSpace(p.Email)
}

// Outbound is every frame the relay writes to a client.
type Outbound struct {
	Action  string `json:"action,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type AssignmentPayload struct {
	MatchID string `json:"matchId"`
	State   string `json:"state"`
}

// SessionAssignment is handed to exactly one connection and then discarded.
type SessionAssignment struct {
	MatchID    string
	AssignedAt time.Time
}

func NewSessionAssignment(now time.Time) SessionAssignment {
	return SessionAssignment{
		MatchID:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		AssignedAt: now,
	}
}

func (a SessionAssignment) Message() Outbound {
	return Outbound{
		Name: NameStatusUpdate,
		Payload: AssignmentPayload{
			MatchID: a.MatchID,
			State:   StateSessionAssignment,
		},
	}
}

func bannedMessage() Outbound {
	return Outbound{Action: ActionBanned, Message: "You are banned!"}
}

func unavailableMessage() Outbound {
	return Outbound{Action: ActionUnavailable, Message: "Matchmaking temporarily unavailable"}
}

// Sender delivers a frame to a client. Implementations must be safe to call
// from any goroutine.
type Sender interface {
	Send(msg Outbound) error
}

// BanChecker answers whether an identity may enter the queue.
type BanChecker interface {
	IsBanned(ctx context.Context, identity string) (bool, error)
}

// Eligibility reports whether the game endpoint can take new sessions.
type Eligibility interface {
	GameEligible() bool
}
