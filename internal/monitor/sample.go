package monitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
)

// Marker identifies the counter lines the watchdog cares about.
const Marker = "ThreadPool Thread Count"

const (
	ErrIrrelevantLine  = errors.ErrorCode("monitor_irrelevant_line")
	ErrMalformedSample = errors.ErrorCode("monitor_malformed_sample")
)

// Layouts accepted for the timestamp field, dotnet-counters CSV first.
var timestampLayouts = []string{
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

const clockLayout = "15:04:05"

// Sample is one parsed thread count observation.
type Sample struct {
	Raw     string // timestamp field as written by the source
	Time    time.Time
	Counter string
	Value   float64
}

// ParseSample extracts a Sample from a counter stream line. Lines without the
// marker fail with ErrIrrelevantLine; a non-numeric last field fails with
// ErrMalformedSample. now resolves timestamps that are missing or carry no
// date.
func ParseSample(line string, now time.Time) (Sample, error) {
	errFactory := errors.New()

	if !strings.Contains(line, Marker) {
		return Sample{}, errFactory.New(ErrIrrelevantLine)
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Sample{}, errFactory.WithData(ErrMalformedSample, line)
	}

	rawValue := strings.TrimSpace(fields[len(fields)-1])
	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrMalformedSample, err)
	}

	raw := strings.TrimSpace(fields[0])

	return Sample{
		Raw:     raw,
		Time:    ParseTimestamp(raw, now),
		Counter: Marker,
		Value:   value,
	}, nil
}

// ParseTimestamp interprets raw in local time. A bare clock time takes now's
// date; anything unparseable yields now.
func ParseTimestamp(raw string, now time.Time) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}

	if t, err := time.ParseInLocation(clockLayout, raw, time.Local); err == nil {
		y, m, d := now.Local().Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.Local)
	}

	return now
}

// FormatValue renders a sample value without a trailing fraction for whole
// numbers.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LogLine renders the hourly log entry for s.
func (s Sample) LogLine() string {
	return s.Raw + ": Thread Pool Thread Count: " + FormatValue(s.Value)
}

// Exceeds reports whether value breaches threshold.
func Exceeds(value float64, threshold int) bool {
	return value >= float64(threshold)
}
