// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
)

// Recorder implements runner.Reporter and runner.OutcomeObserver.
type Recorder struct {
	registry *prometheus.Registry

	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec

	workers       prometheus.Gauge
	successRate   prometheus.Gauge
	connFailures  prometheus.Gauge
	avgDuration   prometheus.Gauge
	stagesTotal   *prometheus.CounterVec
	breakingPoint prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadceiling_queries_total",
			Help: "Executed queries by name, stage level and outcome",
		}, []string{"query", "workers", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loadceiling_query_duration_seconds",
			Help:    "Duration of successful queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		}, []string{"query"}),
		workers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadceiling_stage_workers",
			Help: "Concurrency level of the current stage",
		}),
		successRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadceiling_stage_success_rate",
			Help: "Success rate (percent) of the last finished stage",
		}),
		connFailures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadceiling_stage_connection_failures",
			Help: "Connection failures of the last finished stage",
		}),
		avgDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadceiling_stage_avg_success_seconds",
			Help: "Mean successful query duration of the last finished stage",
		}),
		stagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadceiling_stages_total",
			Help: "Finished stages by verdict",
		}, []string{"verdict"}),
		breakingPoint: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadceiling_breaking_point_workers",
			Help: "Level at which the stopping rule fired, 0 while not halted",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Observe(workers int, o runner.QueryOutcome) {
	r.queries.WithLabelValues(o.QueryName, strconv.Itoa(workers), o.Status.String()).Inc()
	if o.Success() {
		r.duration.WithLabelValues(o.QueryName).Observe(o.Duration.Seconds())
	}
}

func (r *Recorder) StageStarted(workers, _ int) {
	r.workers.Set(float64(workers))
}

func (r *Recorder) Progress(runner.Progress) {}

func (r *Recorder) StageFinished(res stats.StageResult, stop bool) {
	r.successRate.Set(res.SuccessRate)
	r.connFailures.Set(float64(res.ConnectionFailures))
	r.avgDuration.Set(res.AvgSuccessDuration.Seconds())

	verdict := "continue"
	if stop {
		verdict = "stop"
	}
	r.stagesTotal.WithLabelValues(verdict).Inc()
}

func (r *Recorder) Halted(bp runner.Breakpoint) {
	r.breakingPoint.Set(float64(bp.Level))
}

func (r *Recorder) Pausing(time.Duration) {}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
