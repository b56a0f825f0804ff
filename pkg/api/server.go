// Package api is the HTTP surface of the daemon: the trigger endpoint
// the CI webhook invokes, plus ping, version and roster rendering.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/papercd/papercd/pkg/metrics"
	"github.com/papercd/papercd/pkg/players"
	"github.com/papercd/papercd/pkg/update"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "papercd",
	Name:      "request_duration_seconds",
	Help:      "Time (in seconds) spent serving HTTP requests.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{metrics.LabelMethod, metrics.LabelRoute, "status_code"})

// Server serves the trigger webhook. The pipeline assumes exclusive
// use of the working tree, so concurrent triggers are serialized here
// in arrival order; each run still completes before its response is
// written.
type Server struct {
	Pipeline *update.Pipeline
	Renderer players.Renderer
	Version  string
	Logger   log.Logger

	mu sync.Mutex
}

// NewHandler attaches the server's handlers to the router.
func NewHandler(s *Server, r *mux.Router) http.Handler {
	r.Get(Trigger).HandlerFunc(instrument(Trigger, s.TriggerUpdate))
	r.Get(Ping).HandlerFunc(instrument(Ping, s.Ping))
	r.Get(Version).HandlerFunc(instrument(Version, s.ServeVersion))
	r.Get(RenderPlayers).HandlerFunc(instrument(RenderPlayers, s.RenderPlayers))
	return r
}

// TriggerUpdate runs one update pipeline to completion and reports the
// outcome per the status contract. The run is deliberately detached
// from the request context: a webhook timeout on the invoker's side
// must not cancel a build or restart already in progress.
func (s *Server) TriggerUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.Logger.Log("err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	outcome := s.Pipeline.Run(context.Background(), r.PostForm)
	s.mu.Unlock()
	WriteOutcome(w, outcome)
}

func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ServeVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, s.Version)
}

func (s *Server) RenderPlayers(w http.ResponseWriter, r *http.Request) {
	if err := s.Renderer.Render(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteOutcome reports a pipeline outcome to the invoking webhook
// layer: the status code carries the classification (300 success, 400
// validation failure, 500 sync/build/restart failure) and the body
// carries the human-readable trace.
func WriteOutcome(w http.ResponseWriter, outcome update.Outcome) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(outcome.HTTPStatus())
	fmt.Fprintln(w, outcome.Detail)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintln(w, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		requestDuration.With(
			metrics.LabelMethod, r.Method,
			metrics.LabelRoute, route,
			"status_code", strconv.Itoa(rec.status),
		).Observe(time.Since(begin).Seconds())
	}
}
