// Package sensor holds the canonical hydroponic reading and the decoding of
// the controller's payload variants into it.
package sensor

import "time"

// Source names the payload shape a reading was produced from.
type Source string

const (
	SourceArray  Source = "array"  // legacy /api/dados list, Portuguese field names
	SourceLatest Source = "latest" // single object with stringified fields
	SourceManual Source = "manual" // typed in by an operator
)

// Reading is one canonical snapshot of the controller's sensors.
// Every numeric field is finite; fields that could not be parsed are 0.
type Reading struct {
	PH           float64   `json:"ph"`           // pH units
	Temperature  float64   `json:"temperature"`  // water temperature in Celsius
	Humidity     float64   `json:"humidity"`     // relative humidity in percent
	Conductivity float64   `json:"conductivity"` // mS/cm
	Distance     float64   `json:"distance"`     // water-level distance in mm (0 if not available)
	Salinity     float64   `json:"salinity"`     // conductivity proxy in older payloads (0 if not available)
	HasDistance  bool      `json:"has_distance"`
	HasSalinity  bool      `json:"has_salinity"`
	ObservedAt   time.Time `json:"observed_at"`
	Source       Source    `json:"source"`
}

// Value returns the reading's value for a metric key and whether the reading
// carries that metric at all.
func (r Reading) Value(key string) (float64, bool) {
	switch key {
	case KeyPH:
		return r.PH, true
	case KeyTemperature:
		return r.Temperature, true
	case KeyHumidity:
		return r.Humidity, true
	case KeyConductivity:
		return r.Conductivity, true
	case KeySalinity:
		return r.Salinity, r.HasSalinity
	case KeyDistance:
		return r.Distance, r.HasDistance
	}
	return 0, false
}

// RankingEntry is one row of the temperature ranking feed.
type RankingEntry struct {
	ID          string  `json:"id"`
	Temperature float64 `json:"temperature"`
}
