// Package console talks to the live Paper server's RCON remote
// console.
package console

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorcon/rcon"
	"github.com/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// Notifier broadcasts a chat message to everyone connected to the live
// server. It implements update.UserNotifier; delivery is best effort,
// and the pipeline treats a failure here as a warning rather than an
// abort.
type Notifier struct {
	Addr     string // host:port of the server's RCON listener
	Password string
	Timeout  time.Duration
	Logger   log.Logger
}

// Notify opens a console session, issues one `say` broadcast and
// closes the session. A context deadline sooner than the configured
// timeout bounds the whole exchange.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	timeout := n.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	conn, err := rcon.Dial(n.Addr, n.Password,
		rcon.SetDialTimeout(timeout), rcon.SetDeadline(timeout))
	if err != nil {
		return errors.Wrapf(err, "dialing console at %s", n.Addr)
	}
	defer conn.Close()

	if _, err := conn.Execute("say " + message); err != nil {
		return errors.Wrap(err, "broadcasting message")
	}
	n.Logger.Log("event", "notified", "message", message)
	return nil
}
