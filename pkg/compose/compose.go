// Package compose shells out to docker compose to build the server
// image and to control the running service.
package compose

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const (
	defaultBin            = "docker"
	defaultBuildTimeout   = 15 * time.Minute
	defaultCommandTimeout = 2 * time.Minute
)

// Config locates the compose project and the live service within it.
type Config struct {
	Bin            string // compose binary; default "docker"
	File           string // compose file; empty lets compose find it by convention
	Dir            string // project directory (the deployment working tree)
	Service        string // the live service, e.g. "paper"
	BuildTimeout   time.Duration
	CommandTimeout time.Duration
}

// Compose is an exec-based docker compose client. It implements
// update.ArtifactBuilder; Restarter wraps it into an
// update.ServiceRestarter.
type Compose struct {
	config Config
	logger log.Logger
}

func New(config Config, logger log.Logger) *Compose {
	if config.Bin == "" {
		config.Bin = defaultBin
	}
	if config.BuildTimeout == 0 {
		config.BuildTimeout = defaultBuildTimeout
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = defaultCommandTimeout
	}
	return &Compose{config: config, logger: logger}
}

// Build rebuilds the service image from the synced tree. On a failed
// build the previous image keeps its tag, so the last good artifact
// stays authoritative.
func (c *Compose) Build(ctx context.Context) error {
	return c.exec(ctx, c.config.BuildTimeout, nil, "build", c.config.Service)
}

// Up brings the service up from the current image, detached. A no-op
// when the service is already up to date and running.
func (c *Compose) Up(ctx context.Context) error {
	return c.exec(ctx, c.config.CommandTimeout, nil, "up", "-d", c.config.Service)
}

// Running reports whether the service has a running container.
func (c *Compose) Running(ctx context.Context) (bool, error) {
	out := &bytes.Buffer{}
	err := c.exec(ctx, c.config.CommandTimeout, out, "ps", "--status", "running", "-q", c.config.Service)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out.String()) != "", nil
}

// Restart restarts the service's container.
func (c *Compose) Restart(ctx context.Context) error {
	return c.exec(ctx, c.config.CommandTimeout, nil, "restart", c.config.Service)
}

func (c *Compose) exec(ctx context.Context, timeout time.Duration, out io.Writer, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := []string{"compose"}
	if c.config.File != "" {
		full = append(full, "-f", c.config.File)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, c.config.Bin, full...)
	cmd.Dir = c.config.Dir
	combined := &bytes.Buffer{}
	cmd.Stdout = combined
	cmd.Stderr = combined
	if out != nil {
		cmd.Stdout = io.MultiWriter(combined, out)
	}

	err := cmd.Run()
	c.logger.Log("cmd", c.config.Bin+" "+strings.Join(full, " "), "success", err == nil)
	if err != nil {
		if msg := lastLine(combined); msg != "" {
			return errors.Wrapf(err, "%s %s: %s", c.config.Bin, strings.Join(full, " "), msg)
		}
		return errors.Wrapf(err, "%s %s", c.config.Bin, strings.Join(full, " "))
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(ctx.Err(), "%s %s", c.config.Bin, strings.Join(full, " "))
	}
	return nil
}

// lastLine picks the final non-empty output line, which for compose is
// usually the one naming what went wrong.
func lastLine(buf *bytes.Buffer) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	return last
}

// Restarter replaces the running service instance with one built from
// the new artifact: bring it up, assert it is running, then restart it
// so freshly rendered configuration is applied. It implements
// update.ServiceRestarter. There is no compensating action: a failure
// here leaves the service in whatever state the commands left it.
type Restarter struct {
	Compose *Compose
}

func (r Restarter) Restart(ctx context.Context) error {
	if err := r.Compose.Up(ctx); err != nil {
		return errors.Wrap(err, "bringing service up")
	}
	running, err := r.Compose.Running(ctx)
	if err != nil {
		return errors.Wrap(err, "checking service state")
	}
	if !running {
		return errors.Errorf("service %q has no running container after up", r.Compose.config.Service)
	}
	return errors.Wrap(r.Compose.Restart(ctx), "restarting service")
}
