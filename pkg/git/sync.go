package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/papercd/papercd/pkg/metrics"
)

const (
	defaultTimeout = 2 * time.Minute
	defaultRemote  = "origin"
)

// Config holds the values we use when syncing the deployment working
// tree.
type Config struct {
	Dir       string // existing clone of the deployment repo
	Branch    string // branch we're syncing to
	UserName  string
	UserEmail string
	Timeout   time.Duration
}

// Syncer fetches and fast-forward merges the deployment repo into the
// local working tree, using a short-lived token bound to the remote
// for the duration of one call. It implements update.SourceSyncer.
type Syncer struct {
	origin Remote
	config Config
	logger log.Logger
}

func NewSyncer(origin Remote, config Config, logger log.Logger) *Syncer {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Branch == "" {
		config.Branch = "main"
	}
	return &Syncer{origin: origin, config: config, logger: logger}
}

// Ready checks that the working tree exists, is a clone of the
// configured remote, and has the committer identity set. The daemon
// refuses to start otherwise, so a misconfiguration shows up at boot
// rather than on the first trigger.
func (s *Syncer) Ready(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.config.Dir, ".git")); err != nil {
		return errors.Wrapf(err, "no working tree at %s", s.config.Dir)
	}
	current, err := remoteURL(ctx, s.config.Dir, defaultRemote)
	if err != nil {
		return errors.Wrap(err, "reading remote url")
	}
	if !s.origin.Equivalent(current) {
		return errors.Errorf("working tree remote %q is not the configured origin %s", current, s.origin.SafeURL())
	}
	return config(ctx, s.config.Dir, s.config.UserName, s.config.UserEmail)
}

// Sync binds the token to the origin remote, fetches, fast-forward
// merges the configured branch, and removes the binding again. The
// binding never outlives the call: the tokenless URL is restored on
// every exit path, so a failed fetch cannot leave the credential
// discoverable in the tree's git config. An already up-to-date tree
// merges as a no-op and reports success.
func (s *Syncer) Sync(ctx context.Context, token string) (err error) {
	begin := time.Now()
	defer func() {
		syncDuration.With(
			metrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	authURL, err := s.origin.WithToken(token)
	if err != nil {
		return err
	}
	if err := setRemoteURL(ctx, s.config.Dir, defaultRemote, authURL); err != nil {
		return errors.Wrap(err, "binding token to remote")
	}
	defer func() {
		// A fresh context: the binding must be removed even when the
		// fetch ran the deadline out.
		unbindCtx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		if unbindErr := setRemoteURL(unbindCtx, s.config.Dir, defaultRemote, s.origin.URL); unbindErr != nil {
			s.logger.Log("err", errors.Wrap(unbindErr, "removing token from remote"), "url", s.origin.SafeURL())
			if err == nil {
				err = errors.Wrap(unbindErr, "removing token from remote")
			}
		}
	}()

	if err := fetch(ctx, s.config.Dir, defaultRemote, s.config.Branch); err != nil {
		return err
	}
	if err := mergeFFOnly(ctx, s.config.Dir, defaultRemote+"/"+s.config.Branch); err != nil {
		return err
	}

	head, err := refRevision(ctx, s.config.Dir, "HEAD")
	if err != nil {
		return err
	}
	s.logger.Log("event", "synced", "url", s.origin.SafeURL(), "branch", s.config.Branch, "HEAD", head)
	return nil
}
