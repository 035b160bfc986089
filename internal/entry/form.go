// Package entry validates readings typed in by the operator.
package entry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/luki/hydromonitor/internal/sensor"
)

// Form holds the raw text of the manual data-entry fields. Empty optional
// fields are allowed; empty required fields are not.
type Form struct {
	PH           string `json:"ph" form:"ph"`
	Temperature  string `json:"temperature" form:"temperature"`
	Humidity     string `json:"humidity" form:"humidity"`
	Salinity     string `json:"salinity" form:"salinity"`
	Conductivity string `json:"conductivity" form:"conductivity"`
}

// FieldError names one invalid field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// ValidationError lists every invalid field of a form.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return "invalid reading: " + strings.Join(parts, "; ")
}

type bound struct {
	field    string
	required bool
	min, max float64
	hasMax   bool
}

var bounds = []bound{
	{field: "ph", required: true, min: 0, max: 14, hasMax: true},
	{field: "temperature", required: true, min: -50, max: 100, hasMax: true},
	{field: "humidity", required: true, min: 0, max: 100, hasMax: true},
	{field: "salinity", min: 0},
	{field: "conductivity", required: true, min: 0},
}

func (f Form) raw(field string) string {
	switch field {
	case "ph":
		return f.PH
	case "temperature":
		return f.Temperature
	case "humidity":
		return f.Humidity
	case "salinity":
		return f.Salinity
	case "conductivity":
		return f.Conductivity
	}
	return ""
}

// Reading validates the form and converts it to a reading stamped with at.
// The returned error is a ValidationError.
func (f Form) Reading(at time.Time) (sensor.Reading, error) {
	var errs ValidationError
	vals := make(map[string]float64, len(bounds))
	present := make(map[string]bool, len(bounds))

	for _, b := range bounds {
		text := strings.TrimSpace(strings.ReplaceAll(f.raw(b.field), ",", "."))
		if text == "" {
			if b.required {
				errs = append(errs, FieldError{b.field, "required"})
			}
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, FieldError{b.field, "not a number"})
			continue
		}
		if v < b.min || (b.hasMax && v > b.max) {
			errs = append(errs, FieldError{b.field, rangeText(b)})
			continue
		}
		vals[b.field] = v
		present[b.field] = true
	}
	if len(errs) > 0 {
		return sensor.Reading{}, errs
	}

	return sensor.Reading{
		PH:           vals["ph"],
		Temperature:  vals["temperature"],
		Humidity:     vals["humidity"],
		Conductivity: vals["conductivity"],
		Salinity:     vals["salinity"],
		HasSalinity:  present["salinity"],
		ObservedAt:   at,
		Source:       sensor.SourceManual,
	}, nil
}

func rangeText(b bound) string {
	if b.hasMax {
		return fmt.Sprintf("must be between %g and %g", b.min, b.max)
	}
	return fmt.Sprintf("must be at least %g", b.min)
}
