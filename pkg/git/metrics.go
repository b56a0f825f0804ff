package git

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/papercd/papercd/pkg/metrics"
)

var (
	syncDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "papercd",
		Subsystem: "git",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one fetch-and-merge of the deployment repo, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{metrics.LabelSuccess})
)
