package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"matchmaker-relay/metrics"

	"github.com/rs/zerolog/log"
)

const usage = `Invalid command. Use "ban email" to ban someone or "unban email" to unban someone.`

// Banner is the administration surface the console drives.
type Banner interface {
	Ban(ctx context.Context, identity string) (int64, error)
	Unban(ctx context.Context, identity string) (int64, error)
}

// Console reads operator commands one per line.
type Console struct {
	in     io.Reader
	out    io.Writer
	banner Banner
}

func NewConsole(in io.Reader, out io.Writer, b Banner) *Console {
	return &Console{in: in, out: out, banner: b}
}

// Run processes lines until the input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			c.Exec(ctx, line)
		}
	}
}

// Exec runs a single command line.
func (c *Console) Exec(ctx context.Context, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	cmd, err := ParseLine(line)
	if err != nil {
		metrics.AdminCommandsTotal.WithLabelValues("console", "rejected").Inc()
		fmt.Fprintln(c.out, usage)
		return
	}

	n, err := Apply(ctx, c.banner, cmd)
	result := "applied"
	if err != nil {
		result = "failed"
	}
	metrics.AdminCommandsTotal.WithLabelValues("console", result).Inc()
	switch {
	case err != nil:
		log.Error().Err(err).Str("command", cmd.Op).Str("identity", cmd.Identity).Msg("admin: command failed")
		fmt.Fprintf(c.out, "Error running %s for %s: %v\n", cmd.Op, cmd.Identity, err)
	case n == 0:
		fmt.Fprintf(c.out, "Email %s not found or already %sned.\n", cmd.Identity, cmd.Op)
	default:
		fmt.Fprintf(c.out, "Email %s %sned.\n", cmd.Identity, cmd.Op)
	}
}
