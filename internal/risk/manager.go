// Package risk implements the Risk Manager (spec §4.7): the single place
// that remembers open position state across ticks and computes
// regime-specific stop/target levels and position sizing. Adapted from the
// teacher's internal/portfolio position-sizing shape (internal/portfolio/
// {portfolio,risk,pnl}.go), recast from equity share-count/paise sizing to
// a single-instrument perpetual's R-multiple stop/target and a [0,1]
// size fraction.
package risk

import (
	"signalcore/internal/config"
	"signalcore/internal/model"
)

// PositionState is the Manager's own cross-tick memory of exposure.
type PositionState string

const (
	Flat  PositionState = "flat"
	Long  PositionState = "long"
	Short PositionState = "short"
)

// Manager tracks the single instrument's open position and turns a gated
// fusion decision into a concrete Trigger.
type Manager struct {
	state      PositionState
	entryPrice float64

	byRegime         map[string]config.RiskParams
	globalRiskScalar float64
	maxExposureFrac  float64
}

// NewManager creates a Manager. maxExposureFrac caps size_fraction
// regardless of what magnitude/confidence alone would produce (spec §4.7
// "maximum concurrent exposure fraction").
func NewManager(byRegime map[string]config.RiskParams, globalRiskScalar, maxExposureFrac float64) *Manager {
	return &Manager{
		state:            Flat,
		byRegime:         byRegime,
		globalRiskScalar: globalRiskScalar,
		maxExposureFrac:  maxExposureFrac,
	}
}

// State returns the Manager's current cross-tick position memory.
func (m *Manager) State() PositionState { return m.state }

// Decide turns a gated (non-hold-by-confidence) fused direction into a
// Trigger, applying spec §4.6 step 5's state machine: exit if already in
// the opposite position, enter if flat, otherwise hold (already riding the
// same direction — no repeat entry).
func (m *Manager) Decide(direction model.Direction, regime model.Regime, priceRef, magnitude, confidence float64, ts int64) model.Trigger {
	switch {
	case direction == model.DirUp && m.state == Short:
		return m.exit(priceRef, ts)
	case direction == model.DirDown && m.state == Long:
		return m.exit(priceRef, ts)
	case direction == model.DirUp && m.state == Flat:
		return m.enter(model.ActionEnterLong, regime, priceRef, magnitude, confidence, ts)
	case direction == model.DirDown && m.state == Flat:
		return m.enter(model.ActionEnterShort, regime, priceRef, magnitude, confidence, ts)
	default:
		return model.Trigger{Action: model.ActionHold, PriceRef: priceRef, TS: ts}
	}
}

func (m *Manager) exit(priceRef float64, ts int64) model.Trigger {
	m.state = Flat
	m.entryPrice = 0
	return model.Trigger{Action: model.ActionExit, PriceRef: priceRef, TS: ts}
}

func (m *Manager) enter(action model.Action, regime model.Regime, priceRef, magnitude, confidence float64, ts int64) model.Trigger {
	params, ok := m.byRegime[string(regime)]
	if !ok {
		return model.Trigger{Action: model.ActionHold, PriceRef: priceRef, TS: ts}
	}

	size := magnitude * confidence
	if size < 0 {
		size = 0
	}
	if size > 1 {
		size = 1
	}
	size *= m.globalRiskScalar
	if size > m.maxExposureFrac {
		size = m.maxExposureFrac
	}

	var stop, target float64
	if action == model.ActionEnterLong {
		stop = priceRef * (1 - params.RPct)
		target = priceRef * (1 + params.RPct*params.Multiple)
		m.state = Long
	} else {
		stop = priceRef * (1 + params.RPct)
		target = priceRef * (1 - params.RPct*params.Multiple)
		m.state = Short
	}
	m.entryPrice = priceRef

	return model.Trigger{
		Action:      action,
		PriceRef:    priceRef,
		StopLevel:   stop,
		TargetLevel: target,
		SizeFrac:    size,
		TS:          ts,
	}
}
