package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Operation tracks one ledger operation with a span, metrics and logging.
type Operation struct {
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	name    string
	start   time.Time
	logger  *slog.Logger
}

// StartOperation begins tracking an operation. m may be nil.
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := startSpan(ctx, name, attrs)

	args := make([]any, 0, 2+2*len(attrs))
	args = append(args, "operation", name)
	for _, a := range attrs {
		args = append(args, string(a.Key), a.Value.Emit())
	}
	logger := slog.Default().With(args...)
	logger.DebugContext(ctx, "operation started")

	return &Operation{
		ctx:     ctx,
		span:    span,
		metrics: m,
		name:    name,
		start:   time.Now(),
		logger:  logger,
	}, ctx
}

// Logger returns the operation-scoped logger.
func (o *Operation) Logger() *slog.Logger {
	return o.logger
}

// SetAttributes adds attributes to the operation span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End finishes the operation, recording duration, status and error kind.
// Rejections by ledger rules log at warn; anything else at error.
func (o *Operation) End(err error) {
	duration := time.Since(o.start).Seconds()
	status := "ok"
	kind := ""
	if err != nil {
		status = "error"
		kind = ledgererr.Code(err)
		if kind == "INTERNAL" {
			o.logger.ErrorContext(o.ctx, "operation failed", "error", err, "duration", duration)
		} else {
			o.logger.WarnContext(o.ctx, "operation rejected", "error", err, "kind", kind, "duration", duration)
		}
	} else {
		o.logger.DebugContext(o.ctx, "operation completed", "duration", duration)
	}

	if err != nil {
		o.span.SetAttributes(attribute.String("ledger.error_kind", kind))
	}
	endSpan(o.span, err)

	if o.metrics == nil {
		return
	}
	o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(duration)
	o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
	if err != nil {
		o.metrics.ErrorsTotal.WithLabelValues(o.name, kind).Inc()
	}
}
