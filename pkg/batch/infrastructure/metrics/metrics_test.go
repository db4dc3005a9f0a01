package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

func TestPrometheusRecorderCountsRowsAndJobs(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()

	r.RecordRows(ctx, "trips", "loaded", 120)
	r.RecordRows(ctx, "trips", "loaded", 30)
	r.RecordRows(ctx, "weather", "deleted", 0)

	je := model.NewJobExecution("monthlyPipeline", model.JobParameters{"period": "2025-01"})
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("boom"))
	r.RecordJobEnd(ctx, je)

	assert.Equal(t, float64(150), testutil.ToFloat64(r.rowsTotal.WithLabelValues("trips", "loaded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.jobTotal.WithLabelValues("monthlyPipeline", "FAILED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.rowsTotal), "a zero count creates no series")
}

func TestPrometheusRecorderHandlerServesRegistry(t *testing.T) {
	r := NewPrometheusRecorder()
	r.RecordRows(context.Background(), "weather", "loaded", 744)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	assert.NoError(t, NewPrometheusRecorder().Push("", "citibike"))
}

func TestOpenTelemetryTracerRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tel, err := NewTelemetry(context.Background(), config.ObservabilityConfig{ServiceName: "test"}, sdktrace.WithSpanProcessor(sr))
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	tracer := NewOpenTelemetryTracer(tel.TracerProvider)
	je := model.NewJobExecution("monthlyPipeline", model.NewJobParameters())
	ctx, endJob := tracer.StartJobSpan(context.Background(), je)

	se := model.NewStepExecution(je, "Download")
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	tracer.RecordEvent(stepCtx, "staged", map[string]interface{}{"rows": int64(3), "path": "x.csv"})
	tracer.RecordError(stepCtx, "archive", errors.New("schema"))
	se.MarkAsStarted()
	se.MarkAsFailed(errors.New("schema"))
	endStep()

	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("schema"))
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "step Download", spans[0].Name())
	assert.Equal(t, "job monthlyPipeline", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Len(t, spans[0].Events(), 2)
}

func TestCompositeRecorderFansOut(t *testing.T) {
	a, b := NewPrometheusRecorder(), NewPrometheusRecorder()
	c := NewCompositeRecorder(a, nil, b)
	c.RecordRows(context.Background(), "trips", "staged", 5)
	c.RecordDuration(context.Background(), "archive_probe", time.Millisecond, nil)

	assert.Equal(t, float64(5), testutil.ToFloat64(a.rowsTotal.WithLabelValues("trips", "staged")))
	assert.Equal(t, float64(5), testutil.ToFloat64(b.rowsTotal.WithLabelValues("trips", "staged")))
}

func TestNewTelemetryRejectsUnknownProtocol(t *testing.T) {
	_, err := NewTelemetry(context.Background(), config.ObservabilityConfig{OTLPEndpoint: "http://localhost:4318", OTLPProtocol: "udp"})
	assert.Error(t, err)
}
