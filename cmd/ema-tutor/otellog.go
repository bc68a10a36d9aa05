package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// slogProcessor hands OpenTelemetry log records to an slog handler so the
// library packages log to the same console as the CLI. Records are dropped
// while no handler is set.
type slogProcessor struct {
	handler atomic.Pointer[slog.Handler]
}

var _ sdklog.Processor = (*slogProcessor)(nil)

func (p *slogProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	handler := p.handler.Load()
	if handler == nil {
		return nil
	}

	level := severityToLevel(record.Severity())
	if !(*handler).Enabled(ctx, level) {
		return nil
	}

	r := slog.NewRecord(record.Timestamp(), level, record.Body().AsString(), 0)
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		r.AddAttrs(slog.Attr{Key: kv.Key, Value: logValueToSlog(kv.Value)})
		return true
	})
	return (*handler).Handle(ctx, r)
}

func (p *slogProcessor) Shutdown(context.Context) error   { return nil }
func (p *slogProcessor) ForceFlush(context.Context) error { return nil }

var (
	consoleLogs         = &slogProcessor{}
	installProviderOnce sync.Once
)

// installLogBridge routes the global OpenTelemetry logger provider into
// handler until the returned function is called. Loggers created before the
// first call keep their provider, so the provider is installed only once.
func installLogBridge(handler slog.Handler) func() {
	installProviderOnce.Do(func() {
		global.SetLoggerProvider(sdklog.NewLoggerProvider(sdklog.WithProcessor(consoleLogs)))
	})

	consoleLogs.handler.Store(&handler)
	return func() {
		consoleLogs.handler.CompareAndSwap(&handler, nil)
	}
}

// severityToLevel reverses the otelslog mapping, which offsets slog levels
// by the info severity.
func severityToLevel(severity otellog.Severity) slog.Level {
	if severity == otellog.SeverityUndefined {
		return slog.LevelInfo
	}
	return slog.Level(int(severity) - int(otellog.SeverityInfo))
}

func logValueToSlog(v otellog.Value) slog.Value {
	switch v.Kind() {
	case otellog.KindString:
		return slog.StringValue(v.AsString())
	case otellog.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case otellog.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case otellog.KindBool:
		return slog.BoolValue(v.AsBool())
	default:
		return slog.StringValue(v.String())
	}
}
