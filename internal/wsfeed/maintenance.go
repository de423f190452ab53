package wsfeed

import "time"

// Window is one scheduled maintenance outage, given as a millisecond Unix
// timestamp half-open interval [StartMs, EndMs).
type Window struct {
	StartMs int64
	EndMs   int64
	Reason  string
}

// MaintenanceCalendar classifies gaps caused by known, scheduled exchange
// downtime rather than an unexplained feed drop. Recast from the
// teacher's internal/markethours holiday/session-window shape: a
// continuously-trading perpetual has no daily open/close, but exchanges
// still publish maintenance windows (upgrades, failovers), so the shape
// (a list of named date ranges) survives even though the concrete NSE
// holiday table does not transfer.
type MaintenanceCalendar struct {
	windows []Window
}

// NewMaintenanceCalendar builds a calendar from configured windows.
func NewMaintenanceCalendar(windows []Window) *MaintenanceCalendar {
	return &MaintenanceCalendar{windows: windows}
}

// Covers implements pipeline.MaintenanceCalendar: reports whether tsMs
// falls inside a configured maintenance window, and why.
func (c *MaintenanceCalendar) Covers(tsMs int64) (string, bool) {
	for _, w := range c.windows {
		if tsMs >= w.StartMs && tsMs < w.EndMs {
			return w.Reason, true
		}
	}
	return "", false
}

// Add appends a maintenance window given as UTC start/end times.
func (c *MaintenanceCalendar) Add(start, end time.Time, reason string) {
	c.windows = append(c.windows, Window{
		StartMs: start.UnixMilli(),
		EndMs:   end.UnixMilli(),
		Reason:  reason,
	})
}
