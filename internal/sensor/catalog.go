package sensor

import "fmt"

// Metric keys, also used as history keys.
const (
	KeyPH           = "ph"
	KeyTemperature  = "temperature"
	KeyHumidity     = "humidity"
	KeyConductivity = "conductivity"
	KeySalinity     = "salinity"
	KeyDistance     = "distance"
)

// Status is the badge shown next to a metric value.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Metric describes how one reading field is labelled and judged.
type Metric struct {
	Key    string
	Label  string
	Unit   string
	Format string // value format, unit excluded
	Min    float64
	Max    float64
	Ranged bool // false: the dashboard has no healthy band for it
}

// Metrics is the display order of the dashboard cards.
var Metrics = []Metric{
	{Key: KeyPH, Label: "pH", Format: "%.1f", Min: 5.5, Max: 7.5, Ranged: true},
	{Key: KeySalinity, Label: "Salinity", Unit: "ppt", Format: "%.1f"},
	{Key: KeyTemperature, Label: "Temperature", Unit: "°C", Format: "%.1f", Min: 18, Max: 28, Ranged: true},
	{Key: KeyHumidity, Label: "Humidity", Unit: "%", Format: "%.0f"},
	{Key: KeyConductivity, Label: "Conductivity", Unit: "mS/cm", Format: "%.1f"},
	{Key: KeyDistance, Label: "Water level", Unit: "mm", Format: "%.0f"},
}

// Lookup returns the metric for a key.
func Lookup(key string) (Metric, bool) {
	for _, m := range Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// Status classifies v against the metric's band. Values outside [Min, Max]
// are errors and values inside the outer 10% of the band are warnings.
func (m Metric) Status(v float64) Status {
	if !m.Ranged {
		return StatusNormal
	}
	if v < m.Min || v > m.Max {
		return StatusError
	}
	margin := (m.Max - m.Min) * 0.1
	if v < m.Min+margin || v > m.Max-margin {
		return StatusWarning
	}
	return StatusNormal
}

// FormatValue renders v with the metric's precision and unit.
func (m Metric) FormatValue(v float64) string {
	s := fmt.Sprintf(m.Format, v)
	if m.Unit == "" {
		return s
	}
	if m.Unit == "%" || m.Unit == "°C" {
		return s + m.Unit
	}
	return s + " " + m.Unit
}
