package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-tutor/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	instruments = newSessionInstruments()
)

type sessionInstruments struct {
	disconnections     metric.Int64Counter
	recoveries         metric.Int64Counter
	completions        metric.Int64Counter
	extensions         metric.Int64Counter
	staleEvents        metric.Int64Counter
	suppressedSpeaking metric.Int64Counter
	completionLatency  metric.Float64Histogram
}

func newSessionInstruments() sessionInstruments {
	int64Counter := func(name, description string) metric.Int64Counter {
		counter, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			otel.Handle(err)
			return noop.Int64Counter{}
		}
		return counter
	}

	latency, err := meter.Float64Histogram(
		"conversation.turn.completion_latency",
		metric.WithDescription("Time between audio stopping and the turn being completed"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
		latency = noop.Float64Histogram{}
	}

	return sessionInstruments{
		disconnections:     int64Counter("conversation.connectivity.disconnections", "Transport disconnections observed"),
		recoveries:         int64Counter("conversation.connectivity.recoveries", "Disconnections recovered within the recovery window"),
		completions:        int64Counter("conversation.turn.completions", "Completed turns by completion reason"),
		extensions:         int64Counter("conversation.turn.extensions", "Completion extension windows scheduled"),
		staleEvents:        int64Counter("conversation.events.stale", "Transport events discarded as stale"),
		suppressedSpeaking: int64Counter("conversation.speaking.suppressed", "Not-speaking signals ignored while audio was playing"),
		completionLatency:  latency,
	}
}
