package store

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Fields is the field map of one document. Values are JSON encodable; integers
// come back from the store as json.Number and should be read through Snapshot.
type Fields map[string]any

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder replaced by the transaction
// timestamp at commit.
var ServerTimestamp any = serverTimestamp{}

// Path joins escaped segments into a document path. Segments may contain any
// character, including "/".
func Path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// Snapshot is the state of a document as read by Get.
type Snapshot struct {
	Path   string
	Exists bool
	fields Fields
}

// Fields returns a copy of the document fields.
func (s Snapshot) Fields() Fields {
	return s.fields.clone()
}

// Int returns an integer field.
func (s Snapshot) Int(field string) (int64, bool) {
	switch v := s.fields[field].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// String returns a string field.
func (s Snapshot) String(field string) (string, bool) {
	v, ok := s.fields[field].(string)
	return v, ok
}

// Time returns a timestamp field.
func (s Snapshot) Time(field string) (time.Time, bool) {
	switch v := s.fields[field].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func encodeFields(f Fields) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFields(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f Fields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// apply returns the document produced by writing w over base.
func apply(base Fields, w write) Fields {
	out := Fields{}
	if w.merge {
		for k, v := range base {
			out[k] = v
		}
	}
	for k, v := range w.fields {
		out[k] = v
	}
	return out
}
