package update

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"

	"github.com/papercd/papercd/pkg/metrics"
)

// SourceSyncer fetches and merges the latest deployment tree using a
// request-scoped credential. The credential must not outlive the call.
type SourceSyncer interface {
	Sync(ctx context.Context, token string) error
}

// ArtifactBuilder produces the deployable image from the synced tree.
type ArtifactBuilder interface {
	Build(ctx context.Context) error
}

// UserNotifier broadcasts a warning to connected users of the live
// service. It is the only best-effort stage: a failure here is logged
// and swallowed, never fatal.
type UserNotifier interface {
	Notify(ctx context.Context, message string) error
}

// ServiceRestarter replaces the running service instance with one
// built from the new artifact.
type ServiceRestarter interface {
	Restart(ctx context.Context) error
}

// Pipeline runs one update to completion: validate, sync, build,
// notify, wait, restart. Execution is sequential and fail-fast; there
// is no rollback and no retry. The pipeline holds no lock of its own,
// so the caller must not run two pipelines against the same working
// tree at once.
type Pipeline struct {
	Sync    SourceSyncer
	Build   ArtifactBuilder
	Notify  UserNotifier
	Restart ServiceRestarter
	Logger  log.Logger

	// Sleep is swappable so tests don't wait wall-clock time. Nil
	// means time.Sleep.
	Sleep func(time.Duration)
}

// stage is one step of a run. A fatal stage that fails finalizes the
// run's Outcome with its classification; a non-fatal one just logs.
type stage struct {
	name   string
	failAs Classification
	fatal  bool
	run    func(context.Context, Request) error
}

// stages returns the run's steps in execution order.
func (p *Pipeline) stages() []stage {
	return []stage{
		{name: "sync", failAs: SyncFailure, fatal: true,
			run: func(ctx context.Context, req Request) error {
				return p.Sync.Sync(ctx, req.SourceToken)
			}},
		{name: "build", failAs: BuildFailure, fatal: true,
			run: func(ctx context.Context, req Request) error {
				return p.Build.Build(ctx)
			}},
		{name: "notify", fatal: false,
			run: func(ctx context.Context, req Request) error {
				msg := fmt.Sprintf("Server update: %s. Restarting in %d seconds.",
					req.ChangeDescription, int(req.DisruptionDelay.Seconds()))
				return p.Notify.Notify(ctx, msg)
			}},
		// Give users time to reach a safe state. Unconditional and
		// uninterruptible; validation upstream guarantees the delay is
		// non-negative, but zero or less must not sleep at all.
		{name: "wait", fatal: true,
			run: func(ctx context.Context, req Request) error {
				if d := req.DisruptionDelay; d > 0 {
					p.wait(d)
				}
				return nil
			}},
		{name: "restart", failAs: RestartFailure, fatal: true,
			run: func(ctx context.Context, req Request) error {
				return p.Restart.Restart(ctx)
			}},
	}
}

// Run executes the pipeline for one trigger and returns the run's only
// Outcome. The first fatal stage failure finalizes the Outcome and
// skips every remaining stage; every failure becomes a classified
// Outcome, so Run never panics the host process.
func (p *Pipeline) Run(ctx context.Context, form url.Values) Outcome {
	logger := log.With(p.Logger, "run", uuid.New().String())
	begin := time.Now()

	req, err := ParseRequest(form)
	if err != nil {
		return p.finish(logger, begin, Outcome{
			Classification: ValidationFailure,
			Detail:         err.Error(),
		})
	}
	logger.Log("change", req.ChangeDescription, "delay", req.DisruptionDelay)

	for _, st := range p.stages() {
		err := st.run(ctx, req)
		if err == nil {
			logger.Log("stage", st.name, "success", "true")
			continue
		}
		if !st.fatal {
			// Best effort: users just won't get a warning.
			notifyFailures.Add(1)
			logger.Log("stage", st.name, "success", "false", "err", err)
			continue
		}
		stageFailures.With(metrics.LabelStage, st.name).Add(1)
		return p.finish(logger, begin, Outcome{
			Classification: st.failAs,
			Detail:         fmt.Sprintf("%s failed: %s", st.name, err),
		})
	}

	return p.finish(logger, begin, Outcome{
		Classification: Success,
		Detail:         fmt.Sprintf("update %q complete; service restarted", req.ChangeDescription),
	})
}

func (p *Pipeline) wait(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (p *Pipeline) finish(logger log.Logger, begin time.Time, outcome Outcome) Outcome {
	success := outcome.Classification == Success
	runDuration.With(
		metrics.LabelSuccess, fmt.Sprint(success),
	).Observe(time.Since(begin).Seconds())
	logger.Log("outcome", outcome.Classification, "detail", outcome.Detail)
	return outcome
}
