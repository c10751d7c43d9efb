package msgroute

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a payload is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector examines a raw payload and returns a View for field queries.
// Different inspectors handle different formats (JSON, protobuf, etc.).
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View provides format-agnostic field access to a message payload. Route
// guards match against it, and handler methods may declare a View
// parameter to read fields without decoding the whole payload.
type View interface {
	// HasField returns true if the path exists in the payload.
	HasField(path string) bool

	// GetString returns the string value at path, or false if not found
	// or not a string.
	GetString(path string) (string, bool)

	// GetInt returns the numeric value at path as an int64, or false if
	// not found or not a number.
	GetInt(path string) (int64, bool)

	// GetBytes returns the raw bytes at path, or false if not found.
	// For JSON, this returns the raw JSON value (including quotes for strings).
	GetBytes(path string) ([]byte, bool)
}

// JSONInspector returns an Inspector that uses gjson for field access.
// An empty payload is inspected as an empty object.
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if len(raw) == 0 {
		return jsonView{raw: []byte("{}")}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: raw}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) HasField(path string) bool {
	return gjson.GetBytes(v.raw, path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetInt(path string) (int64, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() || r.Type != gjson.Number {
		return 0, false
	}
	return r.Int(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}
