// Package lineprotocol encodes points in the InfluxDB line protocol.
//
//	<measurement>[,<tag>=<value>...] <field>=<value>[,<field>=<value>...] [<timestamp ns>]
package lineprotocol

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	measurementEscaper = strings.NewReplacer(`,`, `\,`, ` `, `\ `)
	keyEscaper         = strings.NewReplacer(`,`, `\,`, `=`, `\=`, ` `, `\ `)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// EscapeMeasurement escapes commas and spaces.
func EscapeMeasurement(s string) string {
	return measurementEscaper.Replace(s)
}

// EscapeKey escapes commas, equals signs and spaces. It applies to tag keys,
// tag values and field keys. Backslashes and newlines are left as is, so
// Encode rejects keys and tag values that end in a backslash or contain a
// newline.
func EscapeKey(s string) string {
	return keyEscaper.Replace(s)
}

func checkKey(kind, s string) error {
	if strings.HasSuffix(s, `\`) || strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("line protocol: %s %q ends in a backslash or contains a newline", kind, s)
	}
	return nil
}

// QuoteString wraps a string field value in double quotes, escaping
// embedded quotes and backslashes.
func QuoteString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// Tag is a key/value pair indexed by the database.
type Tag struct {
	Key   string
	Value string
}

// Field is a key/value pair. Value must be a float, integer, bool or string.
type Field struct {
	Key   string
	Value any
}

// Point is one line.
type Point struct {
	Measurement string
	Tags        []Tag
	Fields      []Field
	// TimestampMillis is converted to nanoseconds on the wire. Zero omits
	// the timestamp so the server assigns one.
	TimestampMillis int64
}

// NewPoint builds a point with tags and fields sorted by key.
func NewPoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) Point {
	p := Point{Measurement: measurement}
	for k, v := range tags {
		p.Tags = append(p.Tags, Tag{Key: k, Value: v})
	}
	for k, v := range fields {
		p.Fields = append(p.Fields, Field{Key: k, Value: v})
	}
	sort.Slice(p.Tags, func(i, j int) bool { return p.Tags[i].Key < p.Tags[j].Key })
	sort.Slice(p.Fields, func(i, j int) bool { return p.Fields[i].Key < p.Fields[j].Key })
	if !ts.IsZero() {
		p.TimestampMillis = ts.UnixMilli()
	}
	return p
}

// Encode renders p as a single line without a trailing newline.
func Encode(p Point) (string, error) {
	if p.Measurement == "" {
		return "", fmt.Errorf("line protocol: measurement is required")
	}
	if len(p.Fields) == 0 {
		return "", fmt.Errorf("line protocol: at least one field is required")
	}

	var b strings.Builder
	b.WriteString(EscapeMeasurement(p.Measurement))
	for _, t := range p.Tags {
		if t.Key == "" || t.Value == "" {
			continue
		}
		if err := checkKey("tag key", t.Key); err != nil {
			return "", err
		}
		if err := checkKey("tag value", t.Value); err != nil {
			return "", err
		}
		b.WriteByte(',')
		b.WriteString(EscapeKey(t.Key))
		b.WriteByte('=')
		b.WriteString(EscapeKey(t.Value))
	}
	for i, f := range p.Fields {
		if f.Key == "" {
			return "", fmt.Errorf("line protocol: empty field key")
		}
		if err := checkKey("field key", f.Key); err != nil {
			return "", err
		}
		v, err := formatValue(f.Value)
		if err != nil {
			return "", fmt.Errorf("line protocol: field %q: %w", f.Key, err)
		}
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(EscapeKey(f.Key))
		b.WriteByte('=')
		b.WriteString(v)
	}
	if p.TimestampMillis != 0 {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(p.TimestampMillis*int64(time.Millisecond), 10))
	}
	return b.String(), nil
}

func formatValue(v any) (string, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", fmt.Errorf("non-finite value %v", t)
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return formatValue(float64(t))
	case int:
		return strconv.Itoa(t) + "i", nil
	case int64:
		return strconv.FormatInt(t, 10) + "i", nil
	case bool:
		return strconv.FormatBool(t), nil
	case string:
		return QuoteString(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
