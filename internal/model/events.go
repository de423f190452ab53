package model

// Event is the closed sum type carried on the pipeline's emission bus.
// Exactly one of the fields is non-nil/non-zero per event; Kind tells a
// consumer which one without a type switch on every subscriber.
type Kind string

const (
	KindCandleClosed  Kind = "candle_closed"
	KindCandleGap     Kind = "candle_gap"
	KindFilterReset   Kind = "filter_reset"
	KindFusedDecision Kind = "fused_decision"
	KindTrigger       Kind = "trigger"
)

// Event wraps one emission with its Kind tag for bus delivery.
type Event struct {
	Kind Kind

	CandleClosed  *CandleClosedEvent
	CandleGap     *CandleGapEvent
	FilterReset   *FilterResetEvent
	FusedDecision *FusedDecision
	Trigger       *Trigger
}

// CandleClosedEvent reports a finalised candle for one timeframe.
type CandleClosedEvent struct {
	Timeframe string
	Candle    Candle
}

// CandleGapEvent reports missed boundaries: one or more whole intervals in
// [MissingFrom, MissingTo) were skipped without a fabricated candle.
type CandleGapEvent struct {
	Timeframe   string
	MissingFrom int64
	MissingTo   int64
	// Expected is set by an exchange maintenance calendar (internal/wsfeed)
	// when the gap falls inside a known maintenance window; purely
	// advisory, never consulted by the aggregator or Kalman Bank.
	Expected bool
}

// FilterResetEvent reports that a timeframe's Kalman filter was
// reinitialised after detecting non-finite state.
type FilterResetEvent struct {
	Timeframe string
	Reason    string
}
