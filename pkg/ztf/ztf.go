// Package ztf holds helpers for consuming Zwicky Transient Facility alerts:
// the light field projection, the star/galaxy score filter and the mapping to
// a compact alert summary.
package ztf

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/streampull"
	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// Parameter keys read by FilterCallback.
const (
	ParamClassStarThreshold = "classtar_threshold"
	ParamClassStarCompare   = "classtar_gt_lt"
)

// Comparison values for the class-star filter.
const (
	LessThan    = "lt"
	GreaterThan = "gt"
)

// unixEpochJD is the Julian date of 1970-01-01T00:00:00Z.
const unixEpochJD = 2440587.5

// LightFields returns the projection that flattens an alert to the fields
// needed for a summary.
func LightFields() types.FieldSpec {
	return types.FieldSpec{
		types.TopLevelGroup: {"objectId", "candid"},
		"candidate":         {"jd", "ra", "dec", "magpsf", "classtar"},
	}
}

// ClassStarFilter keeps alerts by their star/galaxy score. A nil Threshold
// keeps everything. With LessThan an alert passes when classtar < Threshold,
// with GreaterThan when classtar >= Threshold.
type ClassStarFilter struct {
	Threshold  *float64
	Comparison string
}

// Validate reports an unusable comparison.
func (f ClassStarFilter) Validate() error {
	if f.Threshold == nil {
		return nil
	}
	if f.Comparison != LessThan && f.Comparison != GreaterThan {
		return fmt.Errorf("%w: classtar comparison must be %q or %q, got %q",
			types.ErrConfiguration, LessThan, GreaterThan, f.Comparison)
	}
	return nil
}

// Keep reports whether a light record passes the filter.
func (f ClassStarFilter) Keep(rec types.Record) (bool, error) {
	if f.Threshold == nil {
		return true, nil
	}
	score, err := Float(rec, "classtar")
	if err != nil {
		return false, err
	}
	below := score < *f.Threshold
	switch f.Comparison {
	case LessThan:
		return below, nil
	case GreaterThan:
		return !below, nil
	default:
		return false, f.Validate()
	}
}

// Callback acknowledges every alert, counting only those that pass.
func (f ClassStarFilter) Callback() streampull.Callback {
	return func(_ context.Context, rec types.Record, _ map[string]interface{}) (streampull.CallbackResult, error) {
		keep, err := f.Keep(rec)
		if err != nil {
			return streampull.Reject(), err
		}
		if !keep {
			return streampull.Exclude(), nil
		}
		return streampull.Accept(nil), nil
	}
}

// FilterCallback builds the filter from the run's params on every call, so one
// callback serves runs with different thresholds.
func FilterCallback(ctx context.Context, rec types.Record, params map[string]interface{}) (streampull.CallbackResult, error) {
	f, err := FilterFromParams(params)
	if err != nil {
		return streampull.Reject(), err
	}
	return f.Callback()(ctx, rec, params)
}

// FilterFromParams reads ParamClassStarThreshold and ParamClassStarCompare.
// A missing or nil threshold disables the filter.
func FilterFromParams(params map[string]interface{}) (ClassStarFilter, error) {
	var f ClassStarFilter
	raw, ok := params[ParamClassStarThreshold]
	if !ok || raw == nil {
		return f, nil
	}
	threshold, ok := toFloat(raw)
	if !ok {
		return f, fmt.Errorf("%w: %s must be numeric, got %T", types.ErrConfiguration, ParamClassStarThreshold, raw)
	}
	f.Threshold = &threshold
	f.Comparison, _ = params[ParamClassStarCompare].(string)
	return f, f.Validate()
}

// JDToTime converts a Julian date to UTC, rounded to the microsecond.
func JDToTime(jd float64) time.Time {
	secs := (jd - unixEpochJD) * 86400
	whole, frac := math.Modf(secs)
	nanos := math.Round(frac*1e6) * 1e3
	return time.Unix(int64(whole), int64(nanos)).UTC()
}

// Summary is the compact view of a light alert.
type Summary struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	RA        float64   `json:"ra"`
	Dec       float64   `json:"dec"`
	Mag       float64   `json:"mag"`
	Score     float64   `json:"score"`
}

// ToSummary maps a light record to a Summary. url is the subscription's pull
// URL, or empty.
func ToSummary(rec types.Record, url string) (Summary, error) {
	s := Summary{URL: url}
	name, ok := rec["objectId"].(string)
	if !ok {
		return s, fmt.Errorf("%w: objectId missing or not a string", types.ErrDecode)
	}
	s.Name = name

	candid, err := Float(rec, "candid")
	if err != nil {
		return s, err
	}
	s.ID = int64(candid)
	if v, ok := rec["candid"].(int64); ok {
		s.ID = v
	}

	jd, err := Float(rec, "jd")
	if err != nil {
		return s, err
	}
	s.Timestamp = JDToTime(jd)

	for key, dst := range map[string]*float64{"ra": &s.RA, "dec": &s.Dec, "magpsf": &s.Mag, "classtar": &s.Score} {
		if *dst, err = Float(rec, key); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Float reads a numeric field, accepting JSON and Avro number types.
func Float(rec types.Record, key string) (float64, error) {
	v, ok := rec[key]
	if !ok {
		return 0, fmt.Errorf("%w: field %q missing", types.ErrDecode, key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is %T, not a number", types.ErrDecode, key, v)
	}
	return f, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
