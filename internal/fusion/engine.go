// Package fusion implements the Fusion Engine (C6): weights signals by
// confidence, timeframe rank and coherence, applies higher-to-lower
// timeframe modulation, and emits one FusedDecision plus the resulting
// Trigger per update cycle (spec §4.6). Grounded on the weighted
// multi-source aggregation shape of the pack's
// koshedutech-binance-trading-app autopilot signal_aggregator.go (per-
// source weight table combined into one decision), generalised from a
// fixed per-style weight table to confidence/rank/regime-derived weights
// computed fresh each cycle.
package fusion

import (
	"math"

	"signalcore/internal/config"
	"signalcore/internal/model"
	"signalcore/internal/risk"
)

// Engine holds the fusion parameters and the Risk Manager that turns a
// gated decision into a concrete Trigger (spec §4.7: the trigger step
// calls the Risk Manager).
type Engine struct {
	cfg  config.FusionConfig
	risk *risk.Manager
}

// NewEngine constructs a fusion Engine.
func NewEngine(cfg config.FusionConfig, riskMgr *risk.Manager) *Engine {
	return &Engine{cfg: cfg, risk: riskMgr}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Decide computes the FusedDecision for one update cycle's signal set
// (spec §4.6 steps 1-4).
func (e *Engine) Decide(signals []model.Signal, regime model.Regime, coherence float64, ts int64) model.FusedDecision {
	if len(signals) == 0 {
		return model.FusedDecision{Direction: model.DirFlat, Regime: regime, TS: ts}
	}

	weights := e.baseWeights(signals, regime)
	e.applyModulation(signals, weights)

	var raw, sumW, confW float64
	sources := make([]string, 0, len(signals))
	for i, s := range signals {
		w := weights[i]
		raw += w * float64(s.Direction) * s.Strength
		sumW += w
		confW += w * s.Confidence
		sources = append(sources, s.SourceID+"@"+s.Timeframe)
	}

	if sumW == 0 {
		return model.FusedDecision{Direction: model.DirFlat, Regime: regime, TS: ts, ContributingSources: sources}
	}

	direction := model.SignOf(raw)
	magnitude := clip(math.Abs(raw)/sumW, 0, 1)

	meanConf := confW / sumW
	sampleFactor := math.Min(1, float64(len(signals))/float64(e.cfg.NRef))
	fusedConfidence := clip(meanConf*math.Sqrt(math.Max(coherence, 0))*sampleFactor, 0, 1)

	return model.FusedDecision{
		Direction:           direction,
		Magnitude:           magnitude,
		Confidence:          fusedConfidence,
		Coherence:           clip(coherence, 0, 1),
		Regime:              regime,
		TS:                  ts,
		ContributingSources: sources,
	}
}

// baseWeights computes step 1: w_s = s.confidence * (1 + alpha_regime *
// tf_rank(s.timeframe)).
func (e *Engine) baseWeights(signals []model.Signal, regime model.Regime) []float64 {
	alpha := e.cfg.AlphaRegime[string(regime)]
	out := make([]float64, len(signals))
	for i, s := range signals {
		rank := e.cfg.TFRanks[s.Timeframe]
		out[i] = s.Confidence * (1 + alpha*float64(rank))
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return out
}

// applyModulation computes step 2 in place: for each signal, multiply its
// weight by the constructive-interference factor derived from every
// strictly higher timeframe's aggregate direction.
func (e *Engine) applyModulation(signals []model.Signal, weights []float64) {
	// aggDirection[tf] = weighted mean of direction*strength*confidence for
	// signals at that timeframe, clipped to [-1,1].
	sumDC := make(map[string]float64)
	sumC := make(map[string]float64)
	for _, s := range signals {
		w := s.Confidence
		sumDC[s.Timeframe] += w * float64(s.Direction) * s.Strength
		sumC[s.Timeframe] += w
	}
	aggDirection := make(map[string]float64, len(sumDC))
	for tf, dc := range sumDC {
		if sumC[tf] == 0 {
			aggDirection[tf] = 0
			continue
		}
		aggDirection[tf] = clip(dc/sumC[tf], -1, 1)
	}

	for i, s := range signals {
		rank := e.cfg.TFRanks[s.Timeframe]
		mod := 1.0
		for tf, r := range e.cfg.TFRanks {
			if r <= rank {
				continue
			}
			distance := float64(r - rank)
			factor := 1 + e.cfg.Beta/(1+e.cfg.Gamma*distance)*math.Abs(aggDirection[tf])
			mod *= factor
		}
		weights[i] *= mod
	}
}

// Trigger applies spec §4.6 step 5: gates on confidence/magnitude
// thresholds, then hands off to the Risk Manager for the position state
// machine and stop/target sizing.
func (e *Engine) Trigger(d model.FusedDecision, priceRef float64) model.Trigger {
	if d.Confidence < e.cfg.TauEnter || d.Magnitude < e.cfg.MuEnter {
		return model.Trigger{Action: model.ActionHold, PriceRef: priceRef, TS: d.TS}
	}
	return e.risk.Decide(d.Direction, d.Regime, priceRef, d.Magnitude, d.Confidence, d.TS)
}
