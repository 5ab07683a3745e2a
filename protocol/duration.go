package protocol

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// ErrDurationGrammar is returned by ParseDuration when the input does not
// match the "{N unit}" repeated-group grammar.
var ErrDurationGrammar = xerrors.New("duration: invalid duration string")

// DurationFromTime converts a time.Duration into its wire representation.
func DurationFromTime(d time.Duration) Duration {
	return Duration{
		Secs:  uint64(d / time.Second),
		Nanos: uint32(d % time.Second),
	}
}

// ToTime converts a wire Duration back into a time.Duration.
func (d Duration) ToTime() time.Duration {
	return time.Duration(d.Secs)*time.Second + time.Duration(d.Nanos)
}

// unitScale maps every accepted unit spelling to the time.Duration it
// scales by.
var unitScale = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

// ParseDuration parses the CLI's -T duration grammar: whitespace-and-
// digit-separated "{N unit}" groups summed together, where unit is one of
// s|sec[s]|second[s], m|min[s]|minute[s], h|hour[s]. A bare number (no unit)
// is a grammar error, as is an empty string.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, xerrors.Errorf("%w: empty duration", ErrDurationGrammar)
	}

	var total time.Duration
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}

		digitsStart := i
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == digitsStart {
			return 0, xerrors.Errorf("%w: expected a number at position %d in %q", ErrDurationGrammar, digitsStart, s)
		}
		count, err := strconv.ParseUint(s[digitsStart:i], 10, 64)
		if err != nil {
			return 0, xerrors.Errorf("%w: %v", ErrDurationGrammar, err)
		}

		for i < n && isSpace(s[i]) {
			i++
		}

		unitStart := i
		for i < n && !isSpace(s[i]) && !(s[i] >= '0' && s[i] <= '9') {
			i++
		}
		if i == unitStart {
			return 0, xerrors.Errorf("%w: missing unit after %d in %q", ErrDurationGrammar, count, s)
		}
		unit := s[unitStart:i]
		scale, ok := unitScale[unit]
		if !ok {
			return 0, xerrors.Errorf("%w: unknown unit %q in %q", ErrDurationGrammar, unit, s)
		}

		total += time.Duration(count) * scale
	}

	return total, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
