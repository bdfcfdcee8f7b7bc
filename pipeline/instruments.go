package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/factflow/internal/telemetry"
	"github.com/BaSui01/factflow/types"
)

// instruments are the OTel counterparts of the Prometheus claim metrics,
// exported over OTLP when telemetry is enabled.
type instruments struct {
	claims   metric.Int64Counter
	duration metric.Float64Histogram
	evidence metric.Int64Histogram
}

func newInstruments(logger *zap.Logger) *instruments {
	meter := otel.Meter(telemetry.InstrumentationName)
	inst := &instruments{}
	var err error

	inst.claims, err = meter.Int64Counter("factflow.claims",
		metric.WithDescription("Claims verified, by verdict"))
	if err != nil {
		logger.Warn("failed to create claims counter", zap.Error(err))
	}

	inst.duration, err = meter.Float64Histogram("factflow.claim.duration",
		metric.WithDescription("End-to-end claim verification latency"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	inst.evidence, err = meter.Int64Histogram("factflow.claim.evidence",
		metric.WithDescription("Scored evidence items per claim"))
	if err != nil {
		logger.Warn("failed to create evidence histogram", zap.Error(err))
	}
	return inst
}

func (i *instruments) claimDone(ctx context.Context, result *types.VerificationResult) {
	attrs := metric.WithAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.String("retrieval_mode", string(result.RetrievalMode)),
		attribute.Bool("degraded", result.Degraded()),
	)
	if i.claims != nil {
		i.claims.Add(ctx, 1, attrs)
	}
	if i.duration != nil {
		i.duration.Record(ctx, result.ProcessingTime.Seconds(), attrs)
	}
	if i.evidence != nil {
		i.evidence.Record(ctx, int64(len(result.Evidence)), attrs)
	}
}

func (i *instruments) claimFailed(ctx context.Context, stage types.Stage) {
	if i.claims != nil {
		i.claims.Add(ctx, 1, metric.WithAttributes(
			attribute.String("verdict", "error"),
			attribute.String("stage", string(stage)),
		))
	}
}
