// Package candle aggregates trades into multi-timeframe OHLCV candles.
package candle

import (
	"time"

	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// Timeframe is a named, fixed candle interval.
type Timeframe struct {
	Name     string
	Interval time.Duration
}

var knownTimeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// DefaultTimeframes are aggregated when no list is configured.
var DefaultTimeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// ParseTimeframes resolves names such as "1m" or "4h". Duplicates are dropped.
func ParseTimeframes(names []string) ([]Timeframe, error) {
	if len(names) == 0 {
		names = DefaultTimeframes
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]Timeframe, 0, len(names))
	for _, name := range names {
		d, ok := knownTimeframes[name]
		if !ok {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "unknown timeframe %q", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, Timeframe{Name: name, Interval: d})
	}
	return out, nil
}

// Bucket returns the start, in unix milliseconds, of the candle containing ts.
func (tf Timeframe) Bucket(ts int64) int64 {
	ms := tf.Interval.Milliseconds()
	if ms <= 0 {
		return ts
	}
	b := ts / ms * ms
	if ts < 0 && ts%ms != 0 {
		b -= ms
	}
	return b
}
