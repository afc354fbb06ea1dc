package docstore

import (
	"maps"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField names the document id inside a Filter.
const IDField = "_id"

// Document is one stored record. Field values are limited to strings,
// integers, booleans, string slices, times and nil; backends may hand them
// back in their native encodings, so read them through the accessors.
type Document struct {
	ID     string
	Fields map[string]any
}

// Clone returns a deep copy safe to mutate.
func (d Document) Clone() Document {
	out := Document{ID: d.ID, Fields: maps.Clone(d.Fields)}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	for k, v := range out.Fields {
		switch vv := v.(type) {
		case []string:
			out.Fields[k] = append([]string(nil), vv...)
		case []any:
			out.Fields[k] = append([]any(nil), vv...)
		}
	}
	return out
}

func (d Document) String(key string) string {
	s, _ := d.Fields[key].(string)
	return s
}

// OptString returns nil when key is absent, null or not a string.
func (d Document) OptString(key string) *string {
	s, ok := d.Fields[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func (d Document) Int(key string) int64 {
	switch v := d.Fields[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func (d Document) Strings(key string) []string {
	switch v := d.Fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		return anyStrings(v)
	case primitive.A:
		return anyStrings(v)
	default:
		return nil
	}
}

func anyStrings(v []any) []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Time reads a time stored natively, as a BSON datetime or as RFC 3339 text.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v.UTC(), true
	case primitive.DateTime:
		return v.Time().UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}
