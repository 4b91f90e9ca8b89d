package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maauso/delayfix/internal/timecode"
)

// ErrFrameDurationUndetermined is returned when no strategy could derive the
// samples-per-frame of a track.
var ErrFrameDurationUndetermined = errors.New("frame duration undetermined")

// UndeterminedError carries the metadata that was available when every
// strategy failed, so it can be reported for diagnosis.
type UndeterminedError struct {
	Codec      string
	SampleRate float64
	FrameRate  string
	Channels   int
	Tried      []string
}

func (e *UndeterminedError) Error() string {
	frameRate := e.FrameRate
	if frameRate == "" {
		frameRate = "n/a"
	}
	return fmt.Sprintf("%v: codec=%s sample_rate=%.0f frame_rate=%s channels=%d tried=%s",
		ErrFrameDurationUndetermined, e.Codec, e.SampleRate, frameRate, e.Channels, strings.Join(e.Tried, ","))
}

func (e *UndeterminedError) Unwrap() error {
	return ErrFrameDurationUndetermined
}

// Track is the normalized key-value view of one audio track's metadata.
type Track struct {
	Codec      string
	SampleRate float64
	Channels   int
	// FrameRate may be a decimal ("31.25") or a rational ("3000/96").
	FrameRate string
	// Tags holds container/stream tags, e.g. NUMBER_OF_FRAMES-eng, DURATION.
	Tags map[string]string
	// Attributes holds every other scalar field reported by the prober.
	Attributes map[string]string
	// TagText is the raw tag block, scanned when Tags has no usable key.
	TagText string
}

// Strategy derives samples-per-frame from a Track. Each strategy either
// succeeds on its own or reports false.
type Strategy struct {
	Name    string
	Resolve func(Track) (spf int, ok bool)
}

// DefaultStrategies returns the fallback chain, most reliable first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "frame_count_duration", Resolve: spfFromFrameCount},
		{Name: "samples_per_frame_key", Resolve: spfFromKey},
		{Name: "frame_rate", Resolve: spfFromFrameRate},
		{Name: "codec_constant", Resolve: spfFromCodec},
	}
}

// Resolution is a resolved Clock and the strategy that produced it.
type Resolution struct {
	Clock    Clock
	Strategy string
}

// Resolver runs strategies in order; the first success wins.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver creates a Resolver. With no strategies, DefaultStrategies is used.
func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve derives the frame clock of t.
// It returns an *UndeterminedError when every strategy fails.
func (r *Resolver) Resolve(t Track) (Resolution, error) {
	tried := make([]string, 0, len(r.strategies))
	if t.SampleRate > 0 {
		for _, s := range r.strategies {
			tried = append(tried, s.Name)
			spf, ok := s.Resolve(t)
			if !ok || spf <= 0 {
				continue
			}
			clock, err := NewClock(spf, t.SampleRate)
			if err != nil {
				continue
			}
			r.logger.Debug("frame clock resolved",
				slog.String("strategy", s.Name),
				slog.Int("spf", spf),
				slog.Float64("sample_rate", t.SampleRate),
				slog.Float64("frame_duration_ms", clock.FrameDurationMs()),
			)
			return Resolution{Clock: clock, Strategy: s.Name}, nil
		}
	}

	return Resolution{}, &UndeterminedError{
		Codec:      t.Codec,
		SampleRate: t.SampleRate,
		FrameRate:  t.FrameRate,
		Channels:   t.Channels,
		Tried:      tried,
	}
}

var (
	frameCountTextRe = regexp.MustCompile(`(?i)NUMBER_OF_FRAMES[\w-]*"?\s*[:=]?\s*"?(\d+)`)
	durationTextRe   = regexp.MustCompile(`(?i)\bDURATION[\w-]*"?\s*[:=]?\s*"?([\d:.]+)`)
	spfTextRe        = regexp.MustCompile(`(?i)(?:sample_per_frame|samples_per_frame|spf)"?\s*[:=]?\s*"?(\d+)`)
	digitsRe         = regexp.MustCompile(`\d+`)
)

// frameCountAttributes are prober fields that count frames (packets) directly.
var frameCountAttributes = []string{"nb_frames", "nb_read_frames", "nb_read_packets"}

var spfKeywords = []string{"sample_per_frame", "samples_per_frame", "spf"}

func spfFromFrameCount(t Track) (int, bool) {
	count, ok := frameCount(t)
	if !ok {
		return 0, false
	}
	durationS, ok := totalDuration(t)
	if !ok {
		return 0, false
	}
	spf := int(math.Round(t.SampleRate * durationS / float64(count)))
	return spf, spf > 0
}

func frameCount(t Track) (int, bool) {
	for _, k := range sortedKeys(t.Tags) {
		if strings.Contains(strings.ToUpper(k), "NUMBER_OF_FRAMES") {
			if n, ok := firstInt(t.Tags[k]); ok {
				return n, true
			}
		}
	}
	for _, k := range frameCountAttributes {
		if n, ok := firstInt(t.Attributes[k]); ok {
			return n, true
		}
	}
	if m := frameCountTextRe.FindStringSubmatch(t.TagText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func totalDuration(t Track) (float64, bool) {
	for _, k := range sortedKeys(t.Tags) {
		upper := strings.ToUpper(k)
		if upper == "DURATION" || strings.HasPrefix(upper, "DURATION-") {
			if d, err := timecode.ParseClock(t.Tags[k]); err == nil && d > 0 {
				return d, true
			}
		}
	}
	if d, err := timecode.ParseClock(t.Attributes["duration"]); err == nil && d > 0 {
		return d, true
	}
	if m := durationTextRe.FindStringSubmatch(t.TagText); m != nil {
		if d, err := timecode.ParseClock(m[1]); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}

func spfFromKey(t Track) (int, bool) {
	for _, set := range []map[string]string{t.Attributes, t.Tags} {
		for _, k := range sortedKeys(set) {
			lower := strings.ToLower(k)
			for _, kw := range spfKeywords {
				if !strings.Contains(lower, kw) {
					continue
				}
				if n, err := strconv.Atoi(strings.ReplaceAll(set[k], " ", "")); err == nil && n > 0 {
					return n, true
				}
			}
		}
	}
	if m := spfTextRe.FindStringSubmatch(t.TagText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func spfFromFrameRate(t Track) (int, bool) {
	fps, ok := parseFrameRate(t.FrameRate)
	if !ok {
		return 0, false
	}
	spf := int(math.Round(t.SampleRate / fps))
	return spf, spf > 0
}

func parseFrameRate(s string) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if raw == "" {
		return 0, false
	}
	if num, den, found := strings.Cut(raw, "/"); found {
		n, err1 := strconv.Atoi(num)
		d, err2 := strconv.Atoi(den)
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return 0, false
		}
		return float64(n) / float64(d), true
	}
	fps, err := strconv.ParseFloat(raw, 64)
	if err != nil || fps <= 0 || math.IsInf(fps, 0) || math.IsNaN(fps) {
		return 0, false
	}
	return fps, true
}

// Dolby TrueHD / MLP carry no frame metadata; at 48 kHz an access unit is 40
// samples. This is a documented special case, not a general rule.
func spfFromCodec(t Track) (int, bool) {
	codec := strings.ToLower(t.Codec)
	if (strings.Contains(codec, "truehd") || strings.Contains(codec, "mlp")) && t.SampleRate == 48000 {
		return 40, true
	}
	return 0, false
}

func firstInt(s string) (int, bool) {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
