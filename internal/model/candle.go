package model

// Candle is one OHLCV bar for a single timeframe. OpenTS is the timeframe
// boundary the bar covers (OpenTS mod duration == 0). Closed is true once
// the bar has been finalised by the Aggregator and pushed to the Ring; a
// Candle with Closed == false is the currently-forming partial bar.
type Candle struct {
	OpenTS int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Closed bool
}

// Valid reports whether the candle satisfies the universal OHLCV invariants
// from spec §8: low <= min(open,close) <= max(open,close) <= high and
// volume >= 0.
func (c Candle) Valid() bool {
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High && c.Volume >= 0
}

// NewPartial starts a fresh one-tick candle at the given boundary.
func NewPartial(openTS int64, price, volume float64) Candle {
	return Candle{
		OpenTS: openTS,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
		Closed: false,
	}
}

// Update folds a new tick into an in-progress (not yet closed) candle.
func (c *Candle) Update(price, volume float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
}
