package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInt(t *testing.T) {
	n, err := ValidateInt("-42")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), n)

	_, err = ValidateInt("abc")
	assert.Error(t, err)
}

func TestValidateDecimal(t *testing.T) {
	d, err := ValidateDecimal("123.45", 2)
	require.NoError(t, err)
	assert.Equal(t, "123.45", d.String())

	_, err = ValidateDecimal("not-a-number", 2)
	assert.Error(t, err)
}

func TestValidateUTCTimestamp(t *testing.T) {
	ts, err := ValidateUTCTimestamp("20250124-12:00:00")
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())

	ts2, err := ValidateUTCTimestamp("20250124-12:00:00.500")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts2.Nanosecond()))

	_, err = ValidateUTCTimestamp("not-a-timestamp")
	assert.Error(t, err)
}

func TestValidateChar(t *testing.T) {
	c, err := ValidateChar("Y")
	require.NoError(t, err)
	assert.Equal(t, byte('Y'), c)

	_, err = ValidateChar("YY")
	assert.Error(t, err)
}

func TestValidateString(t *testing.T) {
	s, err := ValidateString("hello", 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = ValidateString("too long a value", 5)
	assert.Error(t, err)

	_, err = ValidateString("bad\x01value", 0)
	assert.Error(t, err)
}

func TestFormatUTCTimestampRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 24, 12, 0, 0, 0, time.UTC)
	s := FormatUTCTimestamp(now)
	parsed, err := ValidateUTCTimestamp(s)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}
