package domain

import "math"

// Station is a fixed physical weather-reporting site. NWSID is the external
// registry identifier; ID is the local surrogate key assigned on first
// successful resolution. Stations are created lazily and never mutated.
type Station struct {
	ID        int64
	NWSID     string
	Name      string
	Timezone  *string
	Latitude  *float64
	Longitude *float64
}

// StationMetadata is the upstream view of a station before it has a local row.
type StationMetadata struct {
	NWSID     string
	Name      string
	Timezone  *string
	Latitude  *float64
	Longitude *float64
}

// Measurement is the nested {"value": <number|null>} wrapper used by every
// quantity in an NWS observation. Value is decoded loosely so a non-numeric
// payload normalizes to nil instead of failing the whole feature.
type Measurement struct {
	Value any `json:"value"`
}

// ObservationProperties holds the measured fields of one observation feature.
type ObservationProperties struct {
	Timestamp          string      `json:"timestamp"`
	Temperature        Measurement `json:"temperature"`
	RelativeHumidity   Measurement `json:"relativeHumidity"`
	WindSpeed          Measurement `json:"windSpeed"`
	WindDirection      Measurement `json:"windDirection"`
	BarometricPressure Measurement `json:"barometricPressure"`
	Dewpoint           Measurement `json:"dewpoint"`
	Visibility         Measurement `json:"visibility"`
}

// RawObservation is a single GeoJSON Feature from the observations endpoint.
type RawObservation struct {
	Properties ObservationProperties `json:"properties"`
}

// Observation is the flat record shape persisted to the store. Timestamp is
// kept verbatim as reported upstream; all numeric fields are independently
// nullable and rounded to two decimal places.
type Observation struct {
	StationID     int64
	Timestamp     string
	Temperature   *float64 // °C
	Humidity      *float64 // %
	WindSpeed     *float64 // km/h
	WindDirection *float64 // degrees
	Pressure      *float64 // Pa
	Dewpoint      *float64 // °C
	Visibility    *float64 // meters
}

// Normalize flattens a raw observation feature into an Observation. It never
// fails: a missing or non-numeric value yields nil for that field, and the
// timestamp is extracted verbatim without reformatting. StationID is left
// zero; the ingestion pipeline attaches the resolved station key.
func Normalize(raw RawObservation) Observation {
	p := raw.Properties
	return Observation{
		Timestamp:     p.Timestamp,
		Temperature:   extractValue(p.Temperature),
		Humidity:      extractValue(p.RelativeHumidity),
		WindSpeed:     extractValue(p.WindSpeed),
		WindDirection: extractValue(p.WindDirection),
		Pressure:      extractValue(p.BarometricPressure),
		Dewpoint:      extractValue(p.Dewpoint),
		Visibility:    extractValue(p.Visibility),
	}
}

// extractValue rounds a numeric measurement to 2 decimal places, or returns
// nil when the value is absent or not a number. encoding/json decodes all JSON
// numbers into float64 for an `any` target, so a single case suffices.
func extractValue(m Measurement) *float64 {
	v, ok := m.Value.(float64)
	if !ok {
		return nil
	}
	r := math.Round(v*100) / 100
	return &r
}

// MaxConsecutiveWindDelta returns the largest absolute difference between
// successive non-null wind-speed readings, in reading order. Returns nil when
// fewer than two readings carry a value.
func MaxConsecutiveWindDelta(speeds []*float64) *float64 {
	var prev *float64
	var maxDelta *float64
	for _, s := range speeds {
		if s == nil {
			continue
		}
		if prev != nil {
			d := math.Abs(*s - *prev)
			if maxDelta == nil || d > *maxDelta {
				maxDelta = &d
			}
		}
		prev = s
	}
	return maxDelta
}
