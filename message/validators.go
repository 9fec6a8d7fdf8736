package message

import (
	"strconv"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/kprime/fixengine/fixerr"
)

// ValidateInt parses value as an optionally-signed base-10 integer (spec
// §4.1 field type validators).
func ValidateInt(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fixerr.ParseErr("invalid integer field: " + value)
	}
	return n, nil
}

// ValidateDecimal parses value as a decimal with the given precision
// (number of fractional digits expected on the wire), returning both the
// parsed decimal.Decimal (so callers working with prices/quantities don't
// re-parse) and an error if malformed or imprecise.
func ValidateDecimal(value string, precision int) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fixerr.ParseErr("invalid decimal field: " + value)
	}
	if precision >= 0 && d.Exponent() < int32(-precision) {
		return decimal.Decimal{}, fixerr.ParseErr("decimal field exceeds precision: " + value)
	}
	return d, nil
}

// utcTimestampLayout and utcTimestampLayoutMs are the FIX UTCTimestamp
// wire format, without and with the optional millisecond component.
const (
	utcTimestampLayout    = "20060102-15:04:05"
	utcTimestampLayoutMs  = "20060102-15:04:05.000"
)

// ValidateUTCTimestamp parses a FIX UTCTimestamp (YYYYMMDD-HH:MM:SS[.sss]).
func ValidateUTCTimestamp(value string) (time.Time, error) {
	if len(value) == len(utcTimestampLayoutMs) {
		t, err := time.Parse(utcTimestampLayoutMs, value)
		if err != nil {
			return time.Time{}, fixerr.ParseErr("invalid UTCTimestamp: " + value)
		}
		return t, nil
	}
	t, err := time.Parse(utcTimestampLayout, value)
	if err != nil {
		return time.Time{}, fixerr.ParseErr("invalid UTCTimestamp: " + value)
	}
	return t, nil
}

// FormatUTCTimestamp renders t in the FIX wire format with millisecond
// precision, the form Session uses to stamp SendingTime.
func FormatUTCTimestamp(t time.Time) string {
	return t.UTC().Format(utcTimestampLayoutMs)
}

// ValidateChar requires value to be exactly one printable character.
func ValidateChar(value string) (byte, error) {
	if len(value) != 1 {
		return 0, fixerr.ParseErr("char field must be exactly one character: " + value)
	}
	if value[0] < 0x20 || value[0] > 0x7e {
		return 0, fixerr.ParseErr("char field must be a printable character")
	}
	return value[0], nil
}

// ValidateString enforces a maximum length and rejects control characters
// and SOH, which can never legally appear in a field value.
func ValidateString(value string, maxLen int) (string, error) {
	if maxLen > 0 && len(value) > maxLen {
		return "", fixerr.ParseErr("string field exceeds maximum length")
	}
	for _, r := range value {
		if r == rune(soh) || unicode.IsControl(r) {
			return "", fixerr.ParseErr("string field contains illegal control character")
		}
	}
	return value, nil
}
