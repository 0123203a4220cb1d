package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"user-auth-service/internal/events"
)

// logSink is the subset of otellog.Logger used by the producer. Tests substitute
// a capturing implementation.
type logSink interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewLogProducer returns an events.Producer that sends auth events as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op producer.
func NewLogProducer(provider *sdklog.LoggerProvider) events.Producer {
	if provider == nil {
		return noopProducer{}
	}
	return &logProducer{logger: provider.Logger("auth.events")}
}

// NewLogProducerWithSink returns a producer that emits to the given sink directly.
// For tests.
func NewLogProducerWithSink(sink logSink) events.Producer {
	return &logProducer{logger: sink}
}

type noopProducer struct{}

func (noopProducer) Emit(context.Context, *events.AuthEvent) error { return nil }
func (noopProducer) Close() error                                  { return nil }

type logProducer struct {
	logger logSink
}

// Emit converts the auth event to an OTel log record and emits it. Best-effort.
func (p *logProducer) Emit(ctx context.Context, event *events.AuthEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.OccurredAt.IsZero() {
		rec.SetTimestamp(event.OccurredAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(event.Action))
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.Action != "" {
		rec.AddAttributes(otellog.String("action", event.Action))
	}
	if event.IP != "" {
		rec.AddAttributes(otellog.String("ip", event.IP))
	}
	if event.Device != "" {
		rec.AddAttributes(otellog.String("device", event.Device))
	}
	p.logger.Emit(ctx, rec)
	return nil
}

// Close is a no-op; the LoggerProvider owns exporter shutdown.
func (p *logProducer) Close() error { return nil }
