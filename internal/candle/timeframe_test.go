package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/pkg/exception"
)

func TestParseTimeframes(t *testing.T) {
	tfs, err := ParseTimeframes(nil)
	require.NoError(t, err)
	require.Len(t, tfs, len(DefaultTimeframes))
	assert.Equal(t, "1m", tfs[0].Name)
	assert.Equal(t, 24*time.Hour, tfs[len(tfs)-1].Interval)

	tfs, err = ParseTimeframes([]string{"5m", "1h", "5m"})
	require.NoError(t, err)
	require.Len(t, tfs, 2)
	assert.Equal(t, time.Hour, tfs[1].Interval)

	_, err = ParseTimeframes([]string{"7m"})
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestTimeframeBucket(t *testing.T) {
	m := Timeframe{Name: "1m", Interval: time.Minute}
	h := Timeframe{Name: "1h", Interval: time.Hour}

	testCases := []struct {
		desc string
		tf   Timeframe
		ts   int64
		want int64
	}{
		{desc: "start of bucket", tf: m, ts: 120_000, want: 120_000},
		{desc: "inside bucket", tf: m, ts: 179_999, want: 120_000},
		{desc: "hour", tf: h, ts: 1_700_000_123_456, want: 1_699_999_200_000},
		{desc: "negative", tf: m, ts: -1, want: -60_000},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tf.Bucket(tc.ts))
		})
	}
}
