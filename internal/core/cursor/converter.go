package cursor

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrUnparsableValue is returned when a raw cursor value cannot be parsed.
var ErrUnparsableValue = errors.New("unparsable cursor value")

// StateConverter parses raw cursor values into comparable values and formats
// them back for state. Compare must be a total order over parsed values.
type StateConverter interface {
	ParseValue(raw any) (any, error)
	OutputFormat(v any) any
	Compare(a, b any) int
}

// TimeConverter is a StateConverter whose parsed values are time.Time.
type TimeConverter interface {
	StateConverter
	ParseTime(raw any) (time.Time, error)
	FormatTime(t time.Time) any
}

// =============================================================================
// Datetime
// =============================================================================

// DatetimeConverter handles cursor values stored as formatted datetimes.
type DatetimeConverter struct {
	Layout string
}

// NewDatetimeConverter creates a converter for the given Go time layout.
func NewDatetimeConverter(layout string) *DatetimeConverter {
	if layout == "" {
		layout = time.RFC3339
	}
	return &DatetimeConverter{Layout: layout}
}

func (c *DatetimeConverter) ParseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(c.Layout, v)
		if err == nil {
			return t.UTC(), nil
		}
		if t, nerr := time.Parse(time.RFC3339Nano, v); nerr == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("%w: %q does not match layout %q", ErrUnparsableValue, v, c.Layout)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrUnparsableValue, raw)
	}
}

func (c *DatetimeConverter) FormatTime(t time.Time) any {
	return t.UTC().Format(c.Layout)
}

func (c *DatetimeConverter) ParseValue(raw any) (any, error) {
	return c.ParseTime(raw)
}

func (c *DatetimeConverter) OutputFormat(v any) any {
	return formatTimeValue(c, v)
}

func (c *DatetimeConverter) Compare(a, b any) int {
	return compareTimes(a, b)
}

// =============================================================================
// Epoch
// =============================================================================

// EpochConverter handles cursor values stored as unix seconds.
type EpochConverter struct{}

func (EpochConverter) ParseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	default:
		f, err := toFloat(raw)
		if err != nil {
			return time.Time{}, err
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
}

func (EpochConverter) FormatTime(t time.Time) any {
	return t.Unix()
}

func (c EpochConverter) ParseValue(raw any) (any, error) {
	return c.ParseTime(raw)
}

func (c EpochConverter) OutputFormat(v any) any {
	return formatTimeValue(c, v)
}

func (EpochConverter) Compare(a, b any) int {
	return compareTimes(a, b)
}

// =============================================================================
// Numeric
// =============================================================================

// NumericConverter handles monotonically increasing numeric cursors such as
// sequence ids. Integral values stay int64 so ids above 2^53 compare exactly.
type NumericConverter struct{}

func (NumericConverter) ParseValue(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
	}
	return toFloat(raw)
}

func (NumericConverter) OutputFormat(v any) any {
	return v
}

func (NumericConverter) Compare(a, b any) int {
	ia, aInt := a.(int64)
	ib, bInt := b.(int64)
	if aInt && bInt {
		return cmp.Compare(ia, ib)
	}
	return cmp.Compare(asFloat(a), asFloat(b))
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return math.Inf(-1)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func formatTimeValue(c TimeConverter, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	return c.FormatTime(t)
}

func compareTimes(a, b any) int {
	ta, _ := a.(time.Time)
	tb, _ := b.(time.Time)
	return ta.Compare(tb)
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%w: NaN", ErrUnparsableValue)
		}
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnparsableValue, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrUnparsableValue, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrUnparsableValue, raw)
	}
}
