package bus_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/k1networth/users-bus/internal/bus"
	"github.com/k1networth/users-bus/internal/shared/errs"
)

func TestDecodeRejectsNonObjects(t *testing.T) {
	cases := []string{``, `not json`, `null`, `[1,2]`, `"str"`, `{"a":1} {"b":2}`}
	for _, raw := range cases {
		_, err := bus.Decode([]byte(raw))
		require.Error(t, err, "raw=%q", raw)
		require.True(t, errors.Is(err, errs.ErrMalformedPayload), "raw=%q err=%v", raw, err)
		require.Contains(t, err.Error(), "Failed to parse request: ")
	}
}

func TestDecodeKeepsNumbersExact(t *testing.T) {
	f, err := bus.Decode([]byte(`{"id": 9007199254740993}`))
	require.NoError(t, err)

	id, err := bus.RequireInt(f, "id")
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740993), id)
}

func TestRequireStringBoundaries(t *testing.T) {
	f, err := bus.Decode([]byte(`{"blank":"  ","empty":"","ok":"x","num":5,"nil":null}`))
	require.NoError(t, err)

	for _, key := range []string{"blank", "empty", "num", "nil", "absent"} {
		_, err := bus.RequireString(f, key)
		require.Error(t, err, "key=%s", key)
		require.True(t, errors.Is(err, errs.ErrInvalidArgument))
		require.Equal(t, key+" must not be null or empty", err.Error())
	}

	v, err := bus.RequireString(f, "ok")
	require.NoError(t, err)
	require.Equal(t, "x", v)

	_, err = bus.RequireString(bus.Fields{}, "email")
	require.EqualError(t, err, "email must not be null or empty")
}

func TestRequireIntAcceptsNumbersAndNumericStrings(t *testing.T) {
	f, err := bus.Decode([]byte(`{"a":42,"b":"17","c":"x","d":1.5,"e":null}`))
	require.NoError(t, err)

	a, err := bus.Require[int64](f, "a")
	require.NoError(t, err)
	require.Equal(t, int64(42), a)

	b, err := bus.Require[int64](f, "b")
	require.NoError(t, err)
	require.Equal(t, int64(17), b)

	_, err = bus.Require[int64](f, "c")
	require.EqualError(t, err, "c must be a valid number")

	_, err = bus.Require[int64](f, "d")
	require.EqualError(t, err, "d must be a valid number")

	_, err = bus.Require[int64](f, "e")
	require.EqualError(t, err, "e must not be null")

	_, err = bus.Require[int64](f, "missing")
	require.EqualError(t, err, "missing must not be null")
}

func TestExtractCorrelationIDIsBestEffort(t *testing.T) {
	cases := map[string]string{
		`{"correlationId":"c9"}`: "c9",
		`{"correlationId":"  "}`: "unknown",
		`{"correlationId":7}`:    "unknown",
		`{"other":"x"}`:          "unknown",
		`garbage`:                "unknown",
		`["correlationId","c9"]`: "unknown",
	}
	for raw, want := range cases {
		require.Equal(t, want, bus.ExtractCorrelationID([]byte(raw)), "raw=%s", raw)
	}
}

func TestOptionalString(t *testing.T) {
	f := bus.Fields{"name": "Alice", "id": 3}

	v, ok := bus.OptionalString(f, "name")
	require.True(t, ok)
	require.Equal(t, "Alice", v)

	_, ok = bus.OptionalString(f, "id")
	require.False(t, ok)

	_, ok = bus.OptionalString(f, "missing")
	require.False(t, ok)
}
