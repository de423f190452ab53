// Package kalman implements the Kalman Bank (C4): one constant-acceleration
// Kalman filter per active timeframe, with adaptive process noise, regime
// classification and confidence scoring.
//
// No teacher or pack repository implements state-space filtering — the
// closest analogue is the teacher's internal/indicator.Engine, which keeps
// one indicator instance per (timeframe, token) in a map and exposes a
// Ready()/warm-up convention before a value is trusted. The Bank borrows
// that per-timeframe map shape and warm-up gating; the filter math itself
// is new code built directly from the governing formulas.
package kalman

import (
	"math"

	"signalcore/internal/config"
	"signalcore/internal/model"
)

// vec3 is the filter state (level, velocity, acceleration).
type vec3 = [3]float64

// mat3 is a 3x3 matrix, row-major.
type mat3 = [9]float64

func idx(r, c int) int { return r*3 + c }

// Filter is one timeframe's online constant-acceleration Kalman filter.
type Filter struct {
	timeframe string
	dtSeconds float64

	x vec3
	p mat3

	q0       float64
	r        float64
	pInit    float64
	scaleMin float64
	scaleMax float64

	warmupMin int
	nUpdates  int

	volWindow  []float64 // recent measurements z, fixed length
	volHead    int
	volFilled  bool

	innovations []float64 // recent |innovation|, fixed length
	innHead     int
	innFilled   bool

	lastInnovation float64
	sigma          float64
	regime         model.Regime
	confidence     float64
	lastWasReset   bool

	thresholds config.RegimeThresholds
}

// New creates a Filter for one timeframe. durationMs is the timeframe's
// bar duration; it is converted to seconds for the state-transition matrix
// (spec §4.4: "Δt is the timeframe duration in canonical units (seconds)").
func New(timeframe string, durationMs int64, cfg config.KalmanConfig) *Filter {
	f := &Filter{
		timeframe:   timeframe,
		dtSeconds:   float64(durationMs) / 1000.0,
		q0:          cfg.Q0,
		r:           cfg.R,
		pInit:       cfg.PInit,
		scaleMin:    cfg.ScaleMin,
		scaleMax:    cfg.ScaleMax,
		warmupMin:   cfg.WarmupMin,
		volWindow:   make([]float64, cfg.VolatilityWindowLen),
		innovations: make([]float64, cfg.InnovationWindowLen),
		thresholds:  cfg.RegimeThresholds,
		regime:      model.RegimeStable,
	}
	f.reinitCovariance()
	return f
}

func (f *Filter) reinitCovariance() {
	f.p = mat3{}
	f.p[idx(0, 0)] = f.pInit
	f.p[idx(1, 1)] = f.pInit
	f.p[idx(2, 2)] = f.pInit
}

func (f *Filter) transition() mat3 {
	dt := f.dtSeconds
	return mat3{
		1, dt, dt * dt / 2,
		0, 1, dt,
		0, 0, 1,
	}
}

func matMulVec(m mat3, v vec3) vec3 {
	return vec3{
		m[idx(0, 0)]*v[0] + m[idx(0, 1)]*v[1] + m[idx(0, 2)]*v[2],
		m[idx(1, 0)]*v[0] + m[idx(1, 1)]*v[1] + m[idx(1, 2)]*v[2],
		m[idx(2, 0)]*v[0] + m[idx(2, 1)]*v[1] + m[idx(2, 2)]*v[2],
	}
}

func matMul(a, b mat3) mat3 {
	var out mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[idx(r, k)] * b[idx(k, c)]
			}
			out[idx(r, c)] = sum
		}
	}
	return out
}

func transpose(m mat3) mat3 {
	return mat3{
		m[idx(0, 0)], m[idx(1, 0)], m[idx(2, 0)],
		m[idx(0, 1)], m[idx(1, 1)], m[idx(2, 1)],
		m[idx(0, 2)], m[idx(1, 2)], m[idx(2, 2)],
	}
}

func addMat(a, b mat3) mat3 {
	var out mat3
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}

// Predict advances the state steps timesteps without a measurement — used
// for normal single-step prediction (steps=1) and for skipping ahead over
// a detected gap (spec §7 GapError: "advances Δt by the missing count").
func (f *Filter) predict(steps int, q mat3) (vec3, mat3) {
	x := f.x
	p := f.p
	F := f.transition()
	Ft := transpose(F)
	for i := 0; i < steps; i++ {
		x = matMulVec(F, x)
		p = addMat(matMul(matMul(F, p), Ft), q)
	}
	return x, p
}

func processNoise(q0, scale float64) mat3 {
	var q mat3
	q[idx(0, 0)] = q0 * scale
	q[idx(1, 1)] = q0 * scale
	q[idx(2, 2)] = q0 * scale
	return q
}

// Update folds one closed candle's close price into the filter (spec §4.4
// steps 1-7). gapIntervals is the number of missing boundaries since the
// last update (0 in the normal case); it extends the predict step so the
// covariance correctly inflates across the gap before the single
// measurement update is applied (spec §7 GapError handling).
func (f *Filter) Update(closePrice float64, gapIntervals int) {
	f.lastWasReset = false
	steps := 1 + gapIntervals
	scale := f.currentScale()
	q := processNoise(f.q0, scale)

	xHat, pHat := f.predict(steps, q)

	// Gain: S = H P Ht + r, H = (1,0,0) so H P Ht = P[0][0].
	s := pHat[idx(0, 0)] + f.r
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		f.reset()
		return
	}
	k := vec3{pHat[idx(0, 0)] / s, pHat[idx(1, 0)] / s, pHat[idx(2, 0)] / s}

	innovation := closePrice - xHat[0]

	x := vec3{
		xHat[0] + k[0]*innovation,
		xHat[1] + k[1]*innovation,
		xHat[2] + k[2]*innovation,
	}

	// P = (I - K H) P_hat; K H has first column = K, zero elsewhere.
	var khp mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			khp[idx(r, c)] = k[r] * pHat[idx(0, c)]
		}
	}
	var p mat3
	for i := range p {
		p[i] = pHat[i] - khp[i]
	}
	// Symmetrise.
	for r := 0; r < 3; r++ {
		for c := r + 1; c < 3; c++ {
			avg := (p[idx(r, c)] + p[idx(c, r)]) / 2
			p[idx(r, c)] = avg
			p[idx(c, r)] = avg
		}
	}

	if !finiteVec(x) || !finiteMat(p) || p[idx(0, 0)] <= 0 || p[idx(1, 1)] <= 0 || p[idx(2, 2)] <= 0 {
		f.reset()
		return
	}

	f.x = x
	f.p = p
	f.lastInnovation = innovation
	f.pushInnovation(math.Abs(innovation))
	f.pushVolatility(closePrice)
	f.nUpdates++

	f.sigma = stdev(f.volSnapshot())
	f.classifyRegime()
	f.computeConfidence(closePrice)
}

// Reset reinitialises the filter to a cold covariance with zero velocity
// and acceleration, keeping the last known level as the new anchor. Called
// on numeric non-finiteness (spec §4.4 step 3, §7 NumericError).
func (f *Filter) reset() {
	level := f.x[0]
	if math.IsNaN(level) || math.IsInf(level, 0) {
		level = 0
	}
	f.x = vec3{level, 0, 0}
	f.reinitCovariance()
	f.nUpdates = 0
	f.confidence = 0
	f.lastInnovation = 0
	f.lastWasReset = true
}

// WasReset reports whether the most recent Update call triggered a
// numeric reinitialisation.
func (f *Filter) WasReset() bool { return f.lastWasReset }

// Reset lets a caller force reinitialisation explicitly, e.g. after
// observing non-finite state from a Snapshot. The Bank does not call it:
// the reset behind a FilterReset emission happens inside Update.
func (f *Filter) Reset() { f.reset() }

func finiteVec(v vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func finiteMat(m mat3) bool {
	for _, x := range m {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (f *Filter) pushVolatility(z float64) {
	f.volWindow[f.volHead] = z
	f.volHead = (f.volHead + 1) % len(f.volWindow)
	if f.volHead == 0 {
		f.volFilled = true
	}
}

func (f *Filter) volSnapshot() []float64 {
	if !f.volFilled {
		return f.volWindow[:f.volHead]
	}
	return f.volWindow
}

func (f *Filter) pushInnovation(absInnovation float64) {
	f.innovations[f.innHead] = absInnovation
	f.innHead = (f.innHead + 1) % len(f.innovations)
	if f.innHead == 0 {
		f.innFilled = true
	}
}

func (f *Filter) innSnapshot() []float64 {
	if !f.innFilled {
		return f.innovations[:f.innHead]
	}
	return f.innovations
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func meanAbs(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += math.Abs(x)
	}
	return sum / float64(len(xs))
}

const epsilon = 1e-9

// currentScale computes the volatility scaling factor applied to q0 for
// the *next* predict step (spec §4.4 step 5), using the window as it
// stood after the previous update.
func (f *Filter) currentScale() float64 {
	window := f.volSnapshot()
	if len(window) < 2 {
		return 1.0
	}
	sigma := stdev(window)
	scale := sigma / (meanAbs(window) + epsilon)
	if scale < f.scaleMin {
		scale = f.scaleMin
	}
	if scale > f.scaleMax {
		scale = f.scaleMax
	}
	return scale
}

func (f *Filter) classifyRegime() {
	v := math.Abs(f.x[1])
	t := f.thresholds
	switch {
	case v >= t.TrendingVelocity && f.sigma < t.VolatileSigma:
		f.regime = model.RegimeTrending
	case f.sigma >= t.VolatileSigma:
		f.regime = model.RegimeVolatile
	case f.sigma <= t.StableSigma:
		f.regime = model.RegimeStable
	default:
		f.regime = model.RegimeMeanReverting
	}
}

func trace(p mat3) float64 {
	return p[idx(0, 0)] + p[idx(1, 1)] + p[idx(2, 2)]
}

func (f *Filter) computeConfidence(z float64) {
	innComponent := 1.0
	if z != 0 {
		innComponent = 1 - meanAbs(f.innSnapshot())/math.Abs(z)
	}
	if innComponent < 0 {
		innComponent = 0
	}
	if innComponent > 1 {
		innComponent = 1
	}

	// trace(P) is unbounded above; map to (0,1] via 1/(1+trace) so lower
	// trace (tighter estimate) yields higher confidence.
	traceComponent := 1 / (1 + trace(f.p))

	warmup := 1.0
	if f.nUpdates < f.warmupMin {
		warmup = float64(f.nUpdates) / float64(f.warmupMin)
	}

	conf := innComponent * traceComponent * warmup
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	f.confidence = conf
}

// Ready reports whether the filter has seen enough updates to be past
// cold-start (spec §4.4 "Warm-up").
func (f *Filter) Ready() bool { return f.nUpdates >= f.warmupMin }

// Snapshot returns a read-only copy of the filter's current state.
func (f *Filter) Snapshot() model.KalmanState {
	return model.KalmanState{
		Timeframe:      f.timeframe,
		Level:          f.x[0],
		Velocity:       f.x[1],
		Acceleration:   f.x[2],
		P:              f.p,
		Regime:         f.regime,
		Confidence:     f.confidence,
		NUpdates:       f.nUpdates,
		LastInnovation: f.lastInnovation,
	}
}
