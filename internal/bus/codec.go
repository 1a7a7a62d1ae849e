package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/k1networth/users-bus/internal/shared/correlation"
	"github.com/k1networth/users-bus/internal/shared/errs"
)

const fieldCorrelationID = "correlationId"

// Fields is a decoded request envelope.
type Fields map[string]any

// Decode parses raw as a JSON object. Numbers are kept as json.Number so ids survive exactly.
func Decode(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var f Fields
	if err := dec.Decode(&f); err != nil {
		return nil, errs.Wrap(errs.ErrMalformedPayload, err, "Failed to parse request: %s", err.Error())
	}
	if f == nil {
		return nil, errs.New(errs.ErrMalformedPayload, "Failed to parse request: payload is not a JSON object")
	}
	if dec.More() {
		return nil, errs.New(errs.ErrMalformedPayload, "Failed to parse request: trailing data after JSON object")
	}
	return f, nil
}

// Require extracts a typed field and is what every operation handler uses.
func Require[T string | int64](f Fields, key string) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *string:
		v, err := RequireString(f, key)
		if err != nil {
			return out, err
		}
		*p = v
	case *int64:
		v, err := RequireInt(f, key)
		if err != nil {
			return out, err
		}
		*p = v
	}
	return out, nil
}

// RequireString returns the field as sent. Absent, non-string or blank values are rejected.
func RequireString(f Fields, key string) (string, error) {
	s, ok := f[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errs.InvalidArgument("%s must not be null or empty", key)
	}
	return s, nil
}

// RequireInt accepts JSON numbers and numeric strings.
func RequireInt(f Fields, key string) (int64, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, errs.InvalidArgument("%s must not be null", key)
	}
	n, err := strconv.ParseInt(fmt.Sprint(v), 10, 64)
	if err != nil {
		return 0, errs.InvalidArgument("%s must be a valid number", key)
	}
	return n, nil
}

func OptionalString(f Fields, key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// ExtractCorrelationID never fails: anything unusable yields correlation.Unknown.
// Only the leading JSON value is looked at, so trailing garbage does not hide the id.
func ExtractCorrelationID(raw []byte) string {
	var f Fields
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil || f == nil {
		return correlation.Unknown
	}
	id, err := RequireString(f, fieldCorrelationID)
	if err != nil {
		return correlation.Unknown
	}
	return id
}
