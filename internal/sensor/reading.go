package sensor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Reading is the latest known value of every vital sign the device reports.
type Reading struct {
	HeartRate    int     `json:"heart_rate"`
	Temperature  float64 `json:"temperature"`
	Moisture     int     `json:"moisture"`
	RawHeartbeat int     `json:"raw_heartbeat"`
}

// Update is one decoded telemetry record. Nil fields were absent on the wire
// and leave the cached value untouched.
type Update struct {
	HeartRate    *int
	Temperature  *float64
	Moisture     *int
	RawHeartbeat *int
}

var (
	ErrNotObject  = errors.New("telemetry record is not a JSON object")
	ErrOutOfRange = errors.New("telemetry value out of integer range")
)

type wireUpdate struct {
	HeartRate    *float64 `json:"heart_rate"`
	Temperature  *float64 `json:"temperature"`
	Moisture     *float64 `json:"moisture"`
	RawHeartbeat *float64 `json:"raw_heartbeat"`
}

// ParseUpdate decodes a single serial line. Integer fields accept fractional
// numbers and round them; unknown keys are ignored.
func ParseUpdate(line []byte) (Update, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Update{}, ErrNotObject
	}

	var w wireUpdate
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Update{}, fmt.Errorf("decode telemetry: %w", err)
	}

	u := Update{Temperature: w.Temperature}
	for _, f := range []struct {
		name string
		src  *float64
		dst  **int
	}{
		{"heart_rate", w.HeartRate, &u.HeartRate},
		{"moisture", w.Moisture, &u.Moisture},
		{"raw_heartbeat", w.RawHeartbeat, &u.RawHeartbeat},
	} {
		if f.src == nil {
			continue
		}
		v, ok := roundInt(*f.src)
		if !ok {
			return Update{}, fmt.Errorf("%w: %s", ErrOutOfRange, f.name)
		}
		*f.dst = &v
	}
	return u, nil
}

// Empty reports whether the update carries no known field.
func (u Update) Empty() bool {
	return u.HeartRate == nil && u.Temperature == nil && u.Moisture == nil && u.RawHeartbeat == nil
}

func (r *Reading) apply(u Update) {
	if u.HeartRate != nil {
		r.HeartRate = *u.HeartRate
	}
	if u.Temperature != nil {
		r.Temperature = *u.Temperature
	}
	if u.Moisture != nil {
		r.Moisture = *u.Moisture
	}
	if u.RawHeartbeat != nil {
		r.RawHeartbeat = *u.RawHeartbeat
	}
}

// roundInt rounds f to the nearest int; ok is false when the result does not
// fit in an int.
func roundInt(f float64) (int, bool) {
	r := math.Round(f)
	if math.IsNaN(r) || r < math.MinInt || r >= -math.MinInt {
		return 0, false
	}
	return int(r), true
}
