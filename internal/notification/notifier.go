// Package notification delivers operator alerts when the pipeline hits a
// condition it cannot recover from on its own: a permanent OrderSink/
// publisher failure or a fatal configuration error at startup.
package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signalcore/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts; also the fallback used
// when a Dispatcher's real Notifier fails to deliver.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Dispatcher wraps a Notifier with per-title rate limiting, so a permanent
// sink outage that rejects every subsequent tick doesn't flood the channel
// with one alert per tick.
type Dispatcher struct {
	notifier Notifier
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDispatcher wraps notifier with a cooldown between repeated alerts of
// the same title.
func NewDispatcher(notifier Notifier, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// Notify sends alert unless an alert with the same title was sent within
// the cooldown window. Delivery failures are logged, never returned, since
// a broken notification channel must not affect the pipeline's critical
// path.
func (d *Dispatcher) Notify(ctx context.Context, alert Alert) {
	d.mu.Lock()
	if last, ok := d.last[alert.Title]; ok && time.Since(last) < d.cooldown {
		d.mu.Unlock()
		return
	}
	d.last[alert.Title] = time.Now()
	d.mu.Unlock()

	if err := d.notifier.Send(ctx, alert); err != nil {
		log.Printf("[notify] delivery failed, falling back to log: %v", err)
		(&LogNotifier{}).Send(ctx, alert)
	}
}

// FromSinkError builds an Alert for a permanent OrderSink/publisher
// failure. Transient failures are not alerted on: the pipeline's own
// retry/circuit-breaker machinery handles those.
func FromSinkError(err *model.SinkError) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "sink failure",
		Message: fmt.Sprintf("permanent sink error: %v", err.Err),
	}
}

// FromConfigError builds an Alert for a fatal startup configuration error.
func FromConfigError(err *model.ConfigError) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "config error",
		Message: fmt.Sprintf("%s: %s", err.Field, err.Reason),
	}
}
