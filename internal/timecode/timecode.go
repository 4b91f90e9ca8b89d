// Package timecode parses and formats the delay, target and clock-style
// duration strings used on the command line, in container tags and on the
// ffmpeg command line.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse is returned when a delay, target or clock string cannot be parsed.
var ErrParse = errors.New("parse error")

// bareSecondsLimit is the value under which a bare decimal delay with a
// fractional part is read as seconds ("2.5" means 2500 ms, "250" means 250 ms).
const bareSecondsLimit = 100

var (
	numberRe  = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
	integerRe = regexp.MustCompile(`^\d+$`)
)

// ParseDelay parses a signed delay and returns it in milliseconds.
//
// Accepted forms: "2000", "2000ms", "2s", "2.0" (seconds, bare decimal under
// 100 with a fraction), each optionally prefixed with "-".
func ParseDelay(s string) (float64, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty delay", ErrParse)
	}

	negative := strings.HasPrefix(raw, "-")
	raw = strings.ReplaceAll(strings.TrimPrefix(raw, "-"), " ", "")

	var ms float64
	switch {
	case strings.HasSuffix(raw, "ms"):
		v, err := parseNumber(strings.TrimSuffix(raw, "ms"))
		if err != nil {
			return 0, fmt.Errorf("%w: delay %q", ErrParse, s)
		}
		ms = v
	case strings.HasSuffix(raw, "s"):
		v, err := parseNumber(strings.TrimSuffix(raw, "s"))
		if err != nil {
			return 0, fmt.Errorf("%w: delay %q", ErrParse, s)
		}
		ms = v * 1000
	default:
		v, err := parseNumber(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: delay %q", ErrParse, s)
		}
		if v < bareSecondsLimit && strings.Contains(raw, ".") {
			v *= 1000
		}
		ms = v
	}

	if negative {
		ms = -ms
	}
	return ms, nil
}

// ParseTarget parses an absolute target duration and returns it in seconds.
//
// Accepted forms: "HH:MM:SS[.mmm]", "MM:SS[.mmm]" and "[.]SS[.mmm]".
func ParseTarget(s string) (float64, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if raw == "" {
		return 0, fmt.Errorf("%w: empty target", ErrParse)
	}

	var seconds float64
	if strings.Contains(raw, ":") {
		v, err := ParseClock(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: target %q", ErrParse, s)
		}
		seconds = v
	} else {
		v, err := parseNumber(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: target %q", ErrParse, s)
		}
		seconds = v
	}

	if seconds <= 0 {
		return 0, fmt.Errorf("%w: target %q must be positive", ErrParse, s)
	}
	return seconds, nil
}

// ParseClock parses a "[[H:]M:]S[.frac]" duration, as found in Matroska
// DURATION tags ("00:01:35.500000000"), and returns seconds.
func ParseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: clock %q has too many fields", ErrParse, s)
	}

	seconds, err := parseNumber(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: clock %q", ErrParse, s)
	}

	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		if !integerRe.MatchString(parts[i]) {
			return 0, fmt.Errorf("%w: clock %q", ErrParse, s)
		}
		v, _ := strconv.Atoi(parts[i])
		seconds += float64(v) * multiplier
		multiplier *= 60
	}
	return seconds, nil
}

func parseNumber(s string) (float64, error) {
	if !numberRe.MatchString(s) {
		return 0, ErrParse
	}
	return strconv.ParseFloat(s, 64)
}

// FFmpeg formats seconds as "HH:MM:SS.uuuuuu" for -ss arguments.
// Microsecond precision keeps frame-aligned offsets such as 0.041666 s exact
// enough for stream-copy cuts.
func FFmpeg(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	us := int64(math.Round(seconds * 1e6))
	h := us / 3_600_000_000
	us -= h * 3_600_000_000
	m := us / 60_000_000
	us -= m * 60_000_000
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, us/1_000_000, us%1_000_000)
}

// Friendly formats seconds as "HH:MM:SS.mmm (S.sss s)" for reports.
func Friendly(seconds float64) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	return fmt.Sprintf("%s%02d:%02d:%02d.%03d (%s%.3f s)", sign, h, m, ms/1000, ms%1000, sign, seconds)
}
