// Package pipeline wires the Tick Validator, Aggregator, Ring Store,
// Kalman Bank, Signal Sources and Fusion Engine into the single-threaded
// cooperative critical path spec §5 describes, and drives an OrderSink
// with the resulting Triggers. Grounded on the teacher's
// internal/indengine.Service: a struct that owns every subsystem and
// exposes a New/Run lifecycle, trimmed of the snapshot/backfill/replay
// phases a stream-consuming microservice needs (this pipeline has no
// persisted state to restore — spec §6 "Persisted state: None in the
// core").
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"time"

	"signalcore/internal/aggregator"
	"signalcore/internal/config"
	"signalcore/internal/fusion"
	"signalcore/internal/kalman"
	"signalcore/internal/logger"
	"signalcore/internal/metrics"
	"signalcore/internal/model"
	"signalcore/internal/ring"
	"signalcore/internal/risk"
	"signalcore/internal/validator"
)

// MaintenanceCalendar is an optional collaborator that classifies a
// timestamp as falling inside a known exchange maintenance window, so a
// CandleGap caused by a scheduled outage (internal/wsfeed) can be marked
// Expected rather than read as a lost-measurement anomaly.
type MaintenanceCalendar interface {
	Covers(ts int64) (reason string, ok bool)
}

// Pipeline owns the full critical path for one instrument.
type Pipeline struct {
	cfg *config.Config

	validator *validator.Validator
	agg       *aggregator.Aggregator
	ring      *ring.Store
	bank      *kalman.Bank
	sources   []model.SignalSource
	fusion    *fusion.Engine

	emitter  model.Emitter
	sink     model.OrderSink
	log      *slog.Logger
	metrics  *metrics.Metrics
	calendar MaintenanceCalendar

	baseTimeframe string
}

// New constructs a Pipeline from a validated configuration. sources must
// contain at least the mandatory KalmanDirectionalSource; sink may be nil
// if the pipeline is only used to observe emissions (e.g. a dry-run
// dashboard feed). ringStore may be nil, in which case New builds a private
// one from cfg.RingCapacity; pass a shared *ring.Store when a SignalSource
// (e.g. signalsource.TechnicalSource) needs to read the same closed-candle
// history the pipeline is writing.
func New(cfg *config.Config, ringStore *ring.Store, sources []model.SignalSource, emitter model.Emitter, sink model.OrderSink, log *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &model.ConfigError{Field: "sources", Reason: "at least one SignalSource is required"}
	}
	if ringStore == nil {
		ringStore = ring.New(cfg.RingCapacity)
	}

	tfs := make([]model.Timeframe, len(cfg.Timeframes))
	for i, tf := range cfg.Timeframes {
		tfs[i] = model.Timeframe{Label: tf.Label, DurationMs: tf.DurationMs, Rank: cfg.Fusion.TFRanks[tf.Label]}
	}

	// Full notional is the pipeline-level exposure ceiling unless a future
	// config revision exposes it directly (spec §4.7 mentions the cap but
	// the §6.1 schema has no dedicated field for it yet).
	const maxExposureFraction = 1.0
	riskMgr := risk.NewManager(cfg.RiskByRegime, cfg.Fusion.GlobalRiskScalar, maxExposureFraction)

	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		cfg:           cfg,
		validator:     validator.New(),
		agg:           aggregator.New(tfs),
		ring:          ringStore,
		bank:          kalman.NewBank(tfs, cfg.Kalman),
		sources:       sources,
		fusion:        fusion.NewEngine(cfg.Fusion, riskMgr),
		emitter:       emitter,
		sink:          sink,
		log:           log,
		baseTimeframe: tfs[0].Label,
	}, nil
}

// WithMetrics attaches Prometheus instrumentation. Optional; a Pipeline
// built without it runs identically, just unobserved.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithMaintenanceCalendar attaches a maintenance calendar used to mark
// CandleGap events caused by a known scheduled outage as Expected.
func (p *Pipeline) WithMaintenanceCalendar(c MaintenanceCalendar) *Pipeline {
	p.calendar = c
	return p
}

// Partial returns the current in-progress candle for a timeframe, reading
// straight out of the Ring Store, for operational introspection
// (internal/api's ring endpoint) rather than the critical path itself.
func (p *Pipeline) Partial(tf string) (model.Candle, bool) {
	return p.ring.Partial(tf)
}

// RingDepth reports how many closed candles the Ring Store currently
// retains for tf, for the same operational introspection use as Partial.
func (p *Pipeline) RingDepth(tf string) int {
	return p.ring.Len(tf)
}

func (p *Pipeline) emit(e model.Event) {
	if p.emitter != nil {
		p.emitter.Emit(e)
	}
}

// ProcessTick runs exactly one critical-path update: validate, aggregate,
// update the Ring and Kalman Bank for every candle that closed, collect
// signals, and run fusion at most once (spec §4.6: one fused decision per
// validated tick that caused at least one CandleClosed). Returns the
// Trigger produced this cycle, or a hold Trigger if fusion did not run.
func (p *Pipeline) ProcessTick(ctx context.Context, t model.Tick) (model.Trigger, error) {
	start := time.Now()
	if p.metrics != nil {
		defer func() { p.metrics.TickProcessDur.Observe(time.Since(start).Seconds()) }()
	}

	accepted, kind, ok := p.validator.Accept(t)
	if !ok {
		p.log.Debug("tick rejected", "kind", kind, "ts", t.TS)
		if p.metrics != nil {
			p.metrics.TicksRejected.WithLabelValues(string(kind)).Inc()
		}
		return model.Trigger{Action: model.ActionHold}, nil
	}
	if p.metrics != nil {
		p.metrics.TicksAccepted.Inc()
	}

	closed, gaps := p.agg.Process(accepted)

	// The Ring Store's partial slot (spec §4.3) is kept in sync every tick,
	// not only on close, so a caller reading Partial mid-candle (e.g. the
	// operational API) sees the same in-progress candle the Aggregator does.
	for _, tf := range p.cfg.Timeframes {
		if pc, started := p.agg.Partial(tf.Label); started {
			p.ring.SetPartial(tf.Label, pc)
		}
	}

	gapIntervals := make(map[string]int, len(gaps))
	for _, g := range gaps {
		gapIntervals[g.Timeframe] = int(g.Intervals)
		evt := &model.CandleGapEvent{
			Timeframe:   g.Timeframe,
			MissingFrom: g.MissingFrom,
			MissingTo:   g.MissingTo,
		}
		if p.calendar != nil {
			if _, ok := p.calendar.Covers(g.MissingFrom); ok {
				evt.Expected = true
			}
		}
		p.emit(model.Event{Kind: model.KindCandleGap, CandleGap: evt})
		if p.metrics != nil {
			p.metrics.CandleGaps.WithLabelValues(g.Timeframe).Inc()
		}
	}

	for _, c := range closed {
		p.ring.PushClosed(c.Timeframe, c.Candle)
		p.emit(model.Event{Kind: model.KindCandleClosed, CandleClosed: &model.CandleClosedEvent{
			Timeframe: c.Timeframe,
			Candle:    c.Candle,
		}})
		if p.metrics != nil {
			p.metrics.CandlesClosed.WithLabelValues(c.Timeframe).Inc()
		}

		result, _ := p.bank.Update(c.Timeframe, c.Candle.Close, gapIntervals[c.Timeframe])
		if result.WasReset {
			p.emit(model.Event{Kind: model.KindFilterReset, FilterReset: &model.FilterResetEvent{
				Timeframe: c.Timeframe,
				Reason:    "non_finite_state",
			}})
			p.log.Warn("kalman filter reset", logger.WithRegime(result.State.Regime, c.Timeframe)...)
			if p.metrics != nil {
				p.metrics.FilterResets.WithLabelValues(c.Timeframe).Inc()
			}
		}
		if p.metrics != nil {
			p.metrics.FilterConfidence.WithLabelValues(c.Timeframe).Set(result.State.Confidence)
			p.metrics.FilterVelocity.WithLabelValues(c.Timeframe).Set(result.State.Velocity)
		}

		for _, src := range p.sources {
			src.OnCandleClosed(c.Timeframe, c.Candle)
			src.OnKalman(c.Timeframe, result.State)
		}
	}

	if len(closed) == 0 {
		return model.Trigger{Action: model.ActionHold}, nil
	}

	signals := p.collectSignals(accepted.TS)
	regime, _ := p.regimeForDecision()
	coherence := p.bank.Coherence()
	if p.metrics != nil {
		p.metrics.BankCoherence.Set(coherence)
	}

	decision := p.fusion.Decide(signals, regime, coherence, accepted.TS)
	p.emit(model.Event{Kind: model.KindFusedDecision, FusedDecision: &decision})
	if p.metrics != nil {
		p.metrics.FusedConfidence.Set(decision.Confidence)
		p.metrics.FusedMagnitude.Set(decision.Magnitude)
	}

	trigger := p.fusion.Trigger(decision, accepted.Price)
	p.emit(model.Event{Kind: model.KindTrigger, Trigger: &trigger})
	if p.metrics != nil {
		p.metrics.TriggersTotal.WithLabelValues(string(trigger.Action)).Inc()
	}

	if trigger.Action != model.ActionHold && p.sink != nil {
		if err := p.submit(ctx, trigger, regime); err != nil {
			return trigger, err
		}
	}

	return trigger, nil
}

// regimeForDecision reports the market regime driving this cycle's fusion
// pass: the base (smallest-duration) timeframe's filter regime, since it
// is the filter with the most updates and the tightest warm-up.
func (p *Pipeline) regimeForDecision() (model.Regime, bool) {
	snap, ok := p.bank.Snapshot(p.baseTimeframe)
	if !ok {
		return model.RegimeStable, false
	}
	return snap.Regime, true
}

func (p *Pipeline) collectSignals(ts int64) []model.Signal {
	var out []model.Signal
	for _, tf := range p.bank.ActiveTimeframes() {
		for _, src := range p.sources {
			sig, ok := src.Current(tf)
			if !ok {
				continue
			}
			sig.TS = ts
			out = append(out, sig)
		}
	}
	return out
}

// submit hands a Trigger to the OrderSink. A SinkError of either kind
// (transient or permanent) is logged with the regime, counted, and dropped,
// and submit returns nil: the Trigger is not resubmitted at a later fused
// decision and no alert is sent. Any other error is wrapped and returned.
func (p *Pipeline) submit(ctx context.Context, trig model.Trigger, regime model.Regime) error {
	err := p.sink.Submit(ctx, trig)
	if err == nil {
		return nil
	}
	var sinkErr *model.SinkError
	if errors.As(err, &sinkErr) {
		attrs := append([]any{"kind", sinkErr.Kind, "action", trig.Action, "err", sinkErr.Err}, logger.WithRegime(regime, p.baseTimeframe)...)
		p.log.Warn("order sink rejected trigger", attrs...)
		if p.metrics != nil {
			p.metrics.SinkErrorsTotal.WithLabelValues(string(sinkErr.Kind)).Inc()
		}
		return nil
	}
	return fmt.Errorf("order sink: %w", err)
}

// Run drains src until ctx is cancelled or the source is exhausted.
// Cooperative shutdown: the in-flight update is always finished before
// Run returns (spec §5 "finishes the current update... then stops").
func (p *Pipeline) Run(ctx context.Context, src model.TickSource) error {
	for {
		t, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, model.ErrSourceClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := p.ProcessTick(ctx, t); err != nil {
			p.log.Error("process tick failed", "err", err)
		}
	}
}
