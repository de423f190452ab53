package kalman

import (
	"math"
	"testing"

	"signalcore/internal/config"
)

func testConfig() config.KalmanConfig {
	return config.KalmanConfig{
		Q0:                  0.01,
		R:                   1.0,
		PInit:               10.0,
		WarmupMin:           20,
		VolatilityWindowLen: 20,
		InnovationWindowLen: 50,
		ScaleMin:            0.1,
		ScaleMax:            10.0,
		RegimeThresholds: config.RegimeThresholds{
			TrendingVelocity: 0.05,
			VolatileSigma:    1.5,
			StableSigma:      0.3,
		},
	}
}

func TestFilter_CovarianceStaysSymmetric(t *testing.T) {
	f := New("1m", 60_000, testConfig())
	price := 100.0
	for i := 0; i < 50; i++ {
		price += 0.1
		f.Update(price, 0)
		p := f.p
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				if math.Abs(p[idx(r, c)]-p[idx(c, r)]) > 1e-9 {
					t.Fatalf("step %d: P not symmetric: %v", i, p)
				}
			}
		}
	}
}

func TestFilter_TracksSteadyUptrend(t *testing.T) {
	f := New("1m", 60_000, testConfig())
	price := 100.0
	for i := 0; i < 60; i++ {
		price += 1.0
		f.Update(price, 0)
	}
	snap := f.Snapshot()
	if snap.Velocity <= 0 {
		t.Fatalf("expected positive velocity after sustained uptrend, got %v", snap.Velocity)
	}
	if !f.Ready() {
		t.Fatalf("expected filter ready after warmup updates")
	}
}

func TestFilter_ConfidenceAttenuatedBeforeWarmup(t *testing.T) {
	f := New("1m", 60_000, testConfig())
	f.Update(100, 0)
	if f.Ready() {
		t.Fatal("expected not ready after single update")
	}
	snap := f.Snapshot()
	if snap.Confidence >= 1.0 {
		t.Fatalf("expected attenuated confidence pre-warmup, got %v", snap.Confidence)
	}
}

func TestFilter_ResetOnNonFiniteMeasurement(t *testing.T) {
	f := New("1m", 60_000, testConfig())
	f.Update(100, 0)
	f.Update(math.NaN(), 0)
	if !f.WasReset() {
		t.Fatal("expected reset after non-finite measurement")
	}
	snap := f.Snapshot()
	if snap.Confidence != 0 || snap.NUpdates != 0 {
		t.Fatalf("expected confidence=0 and n_updates=0 after reset, got %+v", snap)
	}
}

func TestFilter_GapAdvancesMultipleSteps(t *testing.T) {
	noGap := New("1m", 60_000, testConfig())
	gapped := New("1m", 60_000, testConfig())

	for i := 0; i < 5; i++ {
		noGap.Update(100+float64(i), 0)
		gapped.Update(100+float64(i), 0)
	}

	// One candle close after a 3-interval gap should inflate covariance
	// more than a normal single-step update would.
	beforeTrace := trace(gapped.p)
	gapped.Update(106, 3)
	afterTrace := trace(gapped.p)
	noGap.Update(106, 0)

	if afterTrace <= beforeTrace {
		t.Fatalf("expected covariance to grow across a gap, before=%v after=%v", beforeTrace, afterTrace)
	}
	if noGapTrace := trace(noGap.p); afterTrace <= noGapTrace {
		t.Fatalf("expected gapped covariance above single-step covariance, gapped=%v single=%v", afterTrace, noGapTrace)
	}
}

func TestFilter_SnapshotNeverNonFinite(t *testing.T) {
	f := New("1m", 60_000, testConfig())
	for i := 0; i < 30; i++ {
		f.Update(100+float64(i)*0.01, 0)
	}
	snap := f.Snapshot()
	if math.IsNaN(snap.Level) || math.IsInf(snap.Level, 0) {
		t.Fatalf("non-finite level in snapshot: %v", snap.Level)
	}
}
