package observability

import (
	"strings"

	"vaultcore/core/events"
)

// EventRecorder is an events.Emitter that translates engine events into
// Prometheus counters. It is typically combined with other emitters via
// events.Fanout.
type EventRecorder struct{}

// Emit implements the events.Emitter interface.
func (EventRecorder) Emit(evt events.Event) {
	metrics := EngineMetrics()
	switch e := evt.(type) {
	case events.PositionAdjusted:
		metrics.RecordAdjustment(e.Symbol)
	case events.ClassAccrued:
		metrics.RecordAccrual(e.Symbol)
	case events.AuctionStarted:
		metrics.RecordAuctionStarted(e.Symbol)
	case events.AuctionFilled:
		metrics.RecordAuctionFill()
	case events.AuctionClosed:
		metrics.RecordAuctionClosed()
	}
}

func labelSymbol(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}
