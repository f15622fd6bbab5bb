// Package typeconv converts values between database wire representations and
// native application types. Conversions are keyed by a semantic type tag
// rather than the storage type, so a driver can label a column "decimal"
// regardless of whether its protocol delivers text or binary.
package typeconv

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
)

// Tag selects a conversion function independent of a value's storage type.
type Tag string

const (
	TagDefault  Tag = "default"
	TagInteger  Tag = "integer"
	TagDecimal  Tag = "decimal"
	TagFloat    Tag = "float"
	TagDatetime Tag = "datetime"
)

// Direction distinguishes driver-to-application (outbound) conversion from
// application-to-driver (inbound) conversion.
type Direction int

const (
	// Outbound converts wire values read from a driver into native types.
	Outbound Direction = iota
	// Inbound converts native values into driver-ready wire strings.
	Inbound
)

// Func converts a single non-nil value. Nil handling is done by Convert
// before any Func runs, so converters never see nil.
type Func func(v any) (any, error)

// Registry maps tags to converters for one direction. Registries returned by
// Build always contain TagDefault; Convert falls back to it for unknown tags.
type Registry map[Tag]Func

// Build returns a fresh registry for the given direction. Registries hold no
// shared state and are cheap to rebuild, so callers may construct one per
// use site.
func Build(d Direction) Registry {
	if d == Inbound {
		return Registry{
			TagInteger:  inboundInteger,
			TagDecimal:  inboundDecimal,
			TagFloat:    inboundFloat,
			TagDatetime: inboundDatetime,
			TagDefault:  inboundDefault,
		}
	}
	return Registry{
		TagInteger:  outboundInteger,
		TagDecimal:  outboundDecimal,
		TagDatetime: outboundDatetime,
		TagDefault:  identity,
	}
}

// Convert applies the converter registered for tag to v, falling back to
// TagDefault when the tag is absent. Nil passes through unchanged for every
// tag in both directions.
func Convert(v any, tag Tag, reg Registry) (any, error) {
	if v == nil {
		return nil, nil
	}
	fn, ok := reg[tag]
	if !ok {
		fn = reg[TagDefault]
	}
	if fn == nil {
		return v, nil
	}
	return fn(v)
}

// TagOf reports the inbound tag for a native value's kind. Used by callers
// that bind values without explicit column metadata.
func TagOf(v any) Tag {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagInteger
	case decimal.Decimal, *decimal.Decimal:
		return TagDecimal
	case float32, float64:
		return TagFloat
	case time.Time:
		return TagDatetime
	default:
		return TagDefault
	}
}

// ToWire converts a native value to its driver-ready wire string using the
// inbound registry. Returns nil for nil input.
func ToWire(v any) (any, error) {
	return Convert(v, TagOf(v), Build(Inbound))
}

func identity(v any) (any, error) { return v, nil }

func outboundInteger(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case []byte:
		return parseInteger(string(n))
	case string:
		return parseInteger(n)
	default:
		return nil, apperrors.NewConversionError(string(TagInteger), v,
			fmt.Errorf("unsupported source type %T", v))
	}
}

func parseInteger(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, apperrors.NewConversionError(string(TagInteger), s, err)
	}
	return n, nil
}

func outboundDecimal(v any) (any, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case []byte:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(n)
	default:
		return nil, apperrors.NewConversionError(string(TagDecimal), v,
			fmt.Errorf("unsupported source type %T", v))
	}
}

func parseDecimal(s string) (any, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, apperrors.NewConversionError(string(TagDecimal), s, err)
	}
	return d, nil
}

// datetimeLayouts are tried in order for wire-format timestamps. Drivers
// that deliver native time.Time values bypass parsing entirely.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func outboundDatetime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parseDatetime(string(t))
	case string:
		return parseDatetime(t)
	default:
		// Already-typed values (floats from epoch columns, etc.) pass through.
		return v, nil
	}
}

func parseDatetime(s string) (any, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, apperrors.NewConversionError(string(TagDatetime), s,
		fmt.Errorf("unrecognized timestamp format"))
}

func inboundInteger(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int8:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	default:
		return nil, apperrors.NewConversionError(string(TagInteger), v,
			fmt.Errorf("not an integer kind: %T", v))
	}
}

func inboundDecimal(v any) (any, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		// decimal.String preserves scale: NewFromString("1.0") renders "1.0".
		return d.String(), nil
	case *decimal.Decimal:
		if d == nil {
			return nil, nil
		}
		return d.String(), nil
	default:
		return nil, apperrors.NewConversionError(string(TagDecimal), v,
			fmt.Errorf("not a decimal: %T", v))
	}
}

func inboundFloat(v any) (any, error) {
	switch f := v.(type) {
	case float32:
		return formatFloat(float64(f)), nil
	case float64:
		return formatFloat(f), nil
	default:
		return nil, apperrors.NewConversionError(string(TagFloat), v,
			fmt.Errorf("not a float kind: %T", v))
	}
}

// formatFloat renders a float with a guaranteed decimal point, so 1.0
// round-trips as "1.0" rather than collapsing to "1".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") && !strings.ContainsAny(s, "nN") { // NaN/Inf left alone
		s += ".0"
	}
	return s
}

func inboundDatetime(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, apperrors.NewConversionError(string(TagDatetime), v,
			fmt.Errorf("not a time.Time: %T", v))
	}
	return t.Format(time.RFC3339Nano), nil
}

// inboundDefault stringifies anything not covered by a kind-specific
// converter. Strings pass through untouched. Never fails.
func inboundDefault(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}
