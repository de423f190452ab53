// Package validator implements the Tick Validator (C1): a pure
// transformation that accepts or rejects raw ticks before they reach the
// Aggregator. No side effects beyond rejection counters.
package validator

import (
	"math"

	"signalcore/internal/model"
)

// Counters tracks rejection totals by kind for observability.
type Counters struct {
	NonFinite        uint64
	NonPositivePrice uint64
	NegativeVolume   uint64
	OutOfOrder       uint64
	Accepted         uint64
}

// Validator enforces monotone timestamps per source and rejects
// non-finite/non-positive trades. Zero value is ready to use.
type Validator struct {
	lastTS  int64
	hasSeen bool

	counters Counters
}

// New creates a Validator with no prior timestamp.
func New() *Validator {
	return &Validator{}
}

// Accept validates t. On success it returns (t, "", true) and advances the
// monotonicity floor. On rejection it returns the RejectKind and false;
// the tick is not retained or propagated.
func (v *Validator) Accept(t model.Tick) (model.Tick, model.RejectKind, bool) {
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0) {
		v.counters.NonFinite++
		return model.Tick{}, model.RejectNonFinite, false
	}
	if t.Price <= 0 {
		v.counters.NonPositivePrice++
		return model.Tick{}, model.RejectNonPositivePrice, false
	}
	if t.Volume < 0 {
		v.counters.NegativeVolume++
		return model.Tick{}, model.RejectNegativeVolume, false
	}
	if v.hasSeen && t.TS < v.lastTS {
		v.counters.OutOfOrder++
		return model.Tick{}, model.RejectOutOfOrder, false
	}

	v.lastTS = t.TS
	v.hasSeen = true
	v.counters.Accepted++
	return t, "", true
}

// Counters returns a snapshot of the current rejection/acceptance totals.
func (v *Validator) Counters() Counters {
	return v.counters
}
