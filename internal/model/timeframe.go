package model

// Timeframe is a labelled aggregation duration in whole milliseconds.
// The recognised base set is {1m, 5m, 15m, 30m, 1h}; a pipeline may be
// configured with any set of durations provided every higher frame is an
// integer multiple of the base (smallest) duration.
type Timeframe struct {
	Label      string
	DurationMs int64

	// Rank is the timeframe's position in the ascending hierarchy used by
	// the Fusion Engine (1m=1, 5m=2, ...). Assigned by pipeline.New from
	// the configured tf_ranks map.
	Rank int
}

// Boundary returns the timeframe-aligned bucket start for a millisecond
// timestamp: t - (t mod duration).
func (tf Timeframe) Boundary(t int64) int64 {
	return t - floorMod(t, tf.DurationMs)
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
