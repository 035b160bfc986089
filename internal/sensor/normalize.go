package sensor

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Shape identifies which known payload variant a raw body matched.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeArray
	ShapeLatest
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// arrayRow is one element of the legacy list payload.
type arrayRow struct {
	PH          json.RawMessage `json:"ph"`
	Temperatura json.RawMessage `json:"temperatura"`
	Umidade     json.RawMessage `json:"umidade"`
	EC          json.RawMessage `json:"eletrocondutividade"`
}

// latestObject is the single-object payload of /api/latest.
type latestObject struct {
	PH           json.RawMessage `json:"ph"`
	Temperature  json.RawMessage `json:"temperature"`
	Humidity     json.RawMessage `json:"humidity"`
	Conductivity json.RawMessage `json:"conductivity"`
	Distance     json.RawMessage `json:"distance"`
	Timestamp    json.RawMessage `json:"timestamp"`
}

// decoder tries one shape; ok is false when raw is not that shape.
type decoder func(raw []byte, now time.Time) (r Reading, ok bool)

var shapeDecoders = []struct {
	shape  Shape
	decode decoder
}{
	{ShapeArray, decodeArray},
	{ShapeLatest, decodeLatest},
}

// Normalize maps a raw controller payload onto a Reading. It never fails:
// numeric fields that are missing or unparsable become 0, and a body that
// matches no known shape yields a zero reading stamped with now and
// ShapeUnknown.
func Normalize(raw json.RawMessage, now time.Time) (Reading, Shape) {
	body := bytes.TrimSpace(raw)
	for _, d := range shapeDecoders {
		if r, ok := d.decode(body, now); ok {
			return r, d.shape
		}
	}
	return Reading{ObservedAt: now}, ShapeUnknown
}

func decodeArray(raw []byte, now time.Time) (Reading, bool) {
	if len(raw) == 0 || raw[0] != '[' {
		return Reading{}, false
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
		return Reading{}, false
	}
	first := bytes.TrimSpace(rows[0])
	if len(first) == 0 || first[0] != '{' {
		return Reading{}, false
	}
	var row arrayRow
	if err := json.Unmarshal(first, &row); err != nil {
		return Reading{}, false
	}
	ec := numberOrZero(row.EC)
	return Reading{
		PH:           numberOrZero(row.PH),
		Temperature:  numberOrZero(row.Temperatura),
		Humidity:     numberOrZero(row.Umidade),
		Conductivity: ec,
		Salinity:     ec,
		HasSalinity:  true,
		ObservedAt:   now,
		Source:       SourceArray,
	}, true
}

func decodeLatest(raw []byte, now time.Time) (Reading, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return Reading{}, false
	}
	var obj latestObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Reading{}, false
	}
	r := Reading{
		PH:           numberOrZero(obj.PH),
		Temperature:  numberOrZero(obj.Temperature),
		Humidity:     numberOrZero(obj.Humidity),
		Conductivity: numberOrZero(obj.Conductivity),
		ObservedAt:   parseTimestamp(obj.Timestamp, now),
		Source:       SourceLatest,
	}
	if len(obj.Distance) > 0 && !isNull(obj.Distance) {
		r.Distance = numberOrZero(obj.Distance)
		r.HasDistance = true
	}
	return r, true
}

// Number extracts a finite float from a JSON number or a string holding one.
func Number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func numberOrZero(raw json.RawMessage) float64 {
	v, _ := Number(raw)
	return v
}

func isNull(raw []byte) bool {
	return bytes.Equal(raw, []byte("null"))
}

// maxEpochMillis is 10000-01-01T00:00:00Z in milliseconds.
const maxEpochMillis = 253402300800000

// parseTimestamp reads an epoch value (seconds, or milliseconds above 1e12)
// or an RFC3339 string. Anything else, or a time outside years 1970-9999,
// falls back to now.
func parseTimestamp(raw json.RawMessage, now time.Time) time.Time {
	if v, ok := Number(raw); ok {
		if v <= 0 || v >= maxEpochMillis {
			return now
		}
		var t time.Time
		if v > 1e12 {
			t = time.UnixMilli(int64(v))
		} else {
			sec, frac := math.Modf(v)
			t = time.Unix(int64(sec), int64(frac*1e9))
		}
		return plausibleOr(t, now)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(text)); err == nil {
			return plausibleOr(t, now)
		}
	}
	return now
}

func plausibleOr(t, now time.Time) time.Time {
	if y := t.UTC().Year(); y < 1970 || y > 9999 {
		return now
	}
	return t
}

// ErrNotRanking is returned when the ranking body is not a JSON array.
var ErrNotRanking = errors.New("sensor: ranking payload is not an array")

type rankingRow struct {
	ID          json.RawMessage `json:"id"`
	Temperature json.RawMessage `json:"temperature"`
}

// DecodeRanking decodes the ranking feed, keeping the server's order.
func DecodeRanking(raw json.RawMessage) ([]RankingEntry, error) {
	var rows []rankingRow
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || body[0] != '[' {
		return nil, ErrNotRanking
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	entries := make([]RankingEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, RankingEntry{
			ID:          idString(row.ID),
			Temperature: numberOrZero(row.Temperature),
		})
	}
	return entries, nil
}

func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
