package alert

import (
	"fmt"
	"time"

	"github.com/luki/hydromonitor/internal/sensor"
)

// rule fires when match reports true; message formats the alert text.
type rule struct {
	name     string
	severity Severity
	match    func(r sensor.Reading) bool
	message  func(r sensor.Reading) string
}

// ── Rule table ──────────────────────────────────────────────

const (
	phLow    = 5.5
	phHigh   = 7.5
	tempHigh = 30.0
)

var rules = []rule{
	{
		name:     "ph_range",
		severity: SeverityError,
		match:    func(r sensor.Reading) bool { return r.PH < phLow || r.PH > phHigh },
		message:  func(r sensor.Reading) string { return fmt.Sprintf("critical pH: %.1f", r.PH) },
	},
	{
		name:     "temperature_high",
		severity: SeverityWarning,
		match:    func(r sensor.Reading) bool { return r.Temperature > tempHigh },
		message:  func(r sensor.Reading) string { return fmt.Sprintf("high temperature: %.1f°C", r.Temperature) },
	},
}

// Evaluate applies every rule to r independently, in table order. It does
// no I/O and returns nil when nothing fires.
func Evaluate(r sensor.Reading, now time.Time) []Notification {
	var out []Notification
	for _, rl := range rules {
		if rl.match(r) {
			n := New(rl.severity, rl.message(r), now)
			n.Rule = rl.name
			out = append(out, n)
		}
	}
	return out
}
