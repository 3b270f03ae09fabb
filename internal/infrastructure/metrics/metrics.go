package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pgsentry"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder holds the backup collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	backups       *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	stageFailures *prometheus.CounterVec
	batchRuns     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of database backups by outcome",
		}, []string{"database", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Time taken to back up one database",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"database"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last verified backup",
		}, []string{"database"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline failures by stage",
		}, []string{"stage"}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Total number of scheduled batches by outcome",
		}, []string{"status"}),
	}

	r.registry.MustRegister(r.backups, r.duration, r.lastSuccess, r.stageFailures, r.batchRuns)
	return r
}

func (r *Recorder) BackupSucceeded(database string, took time.Duration, at time.Time) {
	r.backups.WithLabelValues(database, StatusSuccess).Inc()
	r.duration.WithLabelValues(database).Observe(took.Seconds())
	r.lastSuccess.WithLabelValues(database).Set(float64(at.Unix()))
}

func (r *Recorder) BackupFailed(database, stage string, took time.Duration) {
	r.backups.WithLabelValues(database, StatusFailure).Inc()
	r.duration.WithLabelValues(database).Observe(took.Seconds())
	r.stageFailures.WithLabelValues(stage).Inc()
}

func (r *Recorder) BatchFinished(ok bool) {
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	r.batchRuns.WithLabelValues(status).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Server exposes /metrics on addr.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, recorder *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start listens in the background. Listener errors are passed to onError.
func (s *Server) Start(onError func(error)) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onError(fmt.Errorf("metrics server: %w", err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
