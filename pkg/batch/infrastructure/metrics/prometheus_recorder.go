package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds  *prometheus.HistogramVec
	jobTotal            *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	rowsTotal           *prometheus.CounterVec
	operationSeconds    *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder backed by its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citibike_job_duration_seconds",
			Help:    "Duration of pipeline job executions.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}, []string{"job_name", "status"}),
		jobTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citibike_job_total",
			Help: "Total number of finished pipeline job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citibike_step_duration_seconds",
			Help:    "Duration of pipeline step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citibike_rows_total",
			Help: "Rows staged, deleted or loaded per dataset.",
		}, []string{"dataset", "op"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citibike_operation_duration_seconds",
			Help:    "Duration of remote calls and warehouse operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "status"}),
	}

	registry.MustRegister(r.jobDurationSeconds)
	registry.MustRegister(r.jobTotal)
	registry.MustRegister(r.stepDurationSeconds)
	registry.MustRegister(r.rowsTotal)
	registry.MustRegister(r.operationSeconds)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler exposes the registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Push sends the current registry content to a Pushgateway. One-shot runs use it
// because they exit before any scrape.
func (r *PrometheusRecorder) Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.registry).Push()
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the end of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobTotal.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the end of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(jobNameOf(execution), execution.StepName, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordRows adds n to the row counter of dataset/op.
func (r *PrometheusRecorder) RecordRows(ctx context.Context, dataset, op string, n int64) {
	if n <= 0 {
		return
	}
	r.rowsTotal.WithLabelValues(dataset, op).Add(float64(n))
}

// RecordDuration records the duration of a named operation. Only the "status" tag is kept as a label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	status := tags["status"]
	if status == "" {
		status = "success"
	}
	r.operationSeconds.WithLabelValues(name, status).Observe(duration.Seconds())
}

func jobNameOf(execution *model.StepExecution) string {
	if execution.JobExecution == nil {
		return ""
	}
	return execution.JobExecution.JobName
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
