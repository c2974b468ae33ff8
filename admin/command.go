package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	OpBan   = "ban"
	OpUnban = "unban"
)

var ErrInvalidCommand = errors.New("invalid admin command")

// Command is one ban administration request, from the console or a queue.
type Command struct {
	Op       string `json:"command"`
	Identity string `json:"identity"`
}

// ParseLine reads "ban <identity>" or "unban <identity>". Input is
// case-insensitive and identities are lowercased.
func ParseLine(line string) (Command, error) {
	op, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(line)), " ")
	return Command{Op: op, Identity: strings.TrimSpace(arg)}.normalize()
}

func (c Command) normalize() (Command, error) {
	c.Op = strings.ToLower(strings.TrimSpace(c.Op))
	c.Identity = strings.ToLower(strings.TrimSpace(c.Identity))
	if c.Op != OpBan && c.Op != OpUnban {
		return c, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Op)
	}
	if c.Identity == "" {
		return c, fmt.Errorf("%w: missing identity", ErrInvalidCommand)
	}
	return c, nil
}

// Validate normalizes a decoded Command.
func (c Command) Validate() (Command, error) {
	return c.normalize()
}

// Apply runs a validated command against b.
func Apply(ctx context.Context, b Banner, c Command) (int64, error) {
	switch c.Op {
	case OpBan:
		return b.Ban(ctx, c.Identity)
	case OpUnban:
		return b.Unban(ctx, c.Identity)
	default:
		return 0, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Op)
	}
}
