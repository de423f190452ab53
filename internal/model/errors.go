package model

import "errors"

// RejectKind enumerates why the Tick Validator refused a tick.
type RejectKind string

const (
	RejectNonFinite        RejectKind = "non_finite"
	RejectNonPositivePrice RejectKind = "non_positive_price"
	RejectNegativeVolume   RejectKind = "negative_volume"
	RejectOutOfOrder       RejectKind = "out_of_order"
)

// ConfigError is the only error surfaced to the caller: invalid
// configuration is fatal at construction time (spec §7).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

// SinkErrorKind classifies an OrderSink (or publisher) failure.
type SinkErrorKind string

const (
	SinkTransient SinkErrorKind = "transient"
	SinkPermanent SinkErrorKind = "permanent"
)

// SinkError wraps an OrderSink/publisher failure with its classification.
type SinkError struct {
	Kind SinkErrorKind
	Err  error
}

func (e *SinkError) Error() string { return e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// ErrSourceClosed is returned by a TickSource when it has no more ticks to
// deliver and will not reconnect.
var ErrSourceClosed = errors.New("tick source closed")
