package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestObservability_RecordsAndTraces(t *testing.T) {
	o := New("loan-eligibility-test")
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "predict", attribute.String("variant", "random_forest"))
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	o.RecordPrediction(ctx, "success")
	o.RecordPredictionDuration(ctx, 15*time.Millisecond, "success")
}

func TestObservability_NilIsSafe(t *testing.T) {
	var o *Observability

	_, span := o.StartSpan(context.Background(), "predict")
	span.End()
	o.RecordPrediction(context.Background(), "failure")
	o.RecordPredictionDuration(context.Background(), time.Millisecond, "failure")
	o.Shutdown()
}
