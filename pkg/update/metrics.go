package update

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/papercd/papercd/pkg/metrics"
)

var (
	// Most of a run is the image build plus the disruption delay, so
	// the buckets reach well into the minutes.
	runDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "papercd",
		Subsystem: "update",
		Name:      "run_duration_seconds",
		Help:      "Duration of one update pipeline run, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{metrics.LabelSuccess})

	stageFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "papercd",
		Subsystem: "update",
		Name:      "stage_failures_total",
		Help:      "Count of fatal pipeline stage failures, by stage.",
	}, []string{metrics.LabelStage})

	notifyFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "papercd",
		Subsystem: "update",
		Name:      "notify_failures_total",
		Help:      "Count of user notifications that could not be delivered.",
	}, []string{})
)
