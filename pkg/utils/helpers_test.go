package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractDomain(t *testing.T) {
	require.Equal(t, "github.com", ExtractDomain("https://github.com/golang/go"))
	require.Equal(t, "github.com", ExtractDomain("https://www.github.com/"))
	require.Equal(t, "news.ycombinator.com", ExtractDomain("https://news.ycombinator.com/item?id=1"))
	require.Equal(t, "", ExtractDomain(""))
	require.Equal(t, "", ExtractDomain("://bad url"))
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2026, 8, 31, 15, 4, 5, 0, time.Local)
	require.Equal(t, "2026-08-31", DayKey(ts))

	// 午夜前一秒仍属于当天
	ts = time.Date(2026, 8, 31, 23, 59, 59, 0, time.Local)
	require.Equal(t, "2026-08-31", DayKey(ts))
}

func TestFormatCountdown(t *testing.T) {
	require.Equal(t, "25:00", FormatCountdown(25*60))
	require.Equal(t, "00:09", FormatCountdown(9))
	require.Equal(t, "00:00", FormatCountdown(0))
	require.Equal(t, "00:00", FormatCountdown(-5))
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "short", TruncateString("short", 10))
	require.Equal(t, "long st...", TruncateString("long string here", 10))
}
