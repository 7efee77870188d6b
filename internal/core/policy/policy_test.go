package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowHours(t *testing.T) {
	w := DefaultWindow()
	ist := time.FixedZone("IST", 5*3600+1800)
	for h := 0; h < 24; h++ {
		now := time.Date(2026, 10, 15, h, 30, 0, 0, ist)
		assert.Equal(t, h >= 6 && h < 18, w.IsOpen(now), "hour %d", h)
	}
}

func TestWindowBoundaries(t *testing.T) {
	w := DefaultWindow()
	assert.True(t, w.IsOpen(time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)))
	assert.False(t, w.IsOpen(time.Date(2026, 1, 1, 5, 59, 59, 999, time.UTC)))
	assert.True(t, w.IsOpen(time.Date(2026, 1, 1, 17, 59, 59, 0, time.UTC)))
	assert.False(t, w.IsOpen(time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)))
}

func TestWindowUsesDeviceOffsetNotUTC(t *testing.T) {
	w := DefaultWindow()
	// 07:00 in Hyderabad is 01:30 UTC.
	ist := time.FixedZone("IST", 5*3600+1800)
	local := time.Date(2026, 10, 15, 7, 0, 0, 0, ist)
	assert.True(t, w.IsOpen(local))
	assert.False(t, w.IsOpen(local.UTC()))
}

func TestWindowLocalFallback(t *testing.T) {
	w, err := NewWindow(6, 18, "Asia/Kolkata")
	require.NoError(t, err)

	server := time.Date(2026, 10, 15, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, 7, w.Local(nil, server).Hour())

	device := time.Date(2026, 10, 15, 20, 0, 0, 0, time.FixedZone("X", 0))
	assert.Equal(t, 20, w.Local(&device, server).Hour())
}

func TestNewWindowRejectsBadHours(t *testing.T) {
	_, err := NewWindow(18, 6, "")
	assert.Error(t, err)
	_, err = NewWindow(6, 18, "Not/AZone")
	assert.Error(t, err)
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(3, time.Minute).(*KeyedLimiter)
	fixed := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("dev-a"), "request %d", i)
	}
	assert.False(t, l.Allow("dev-a"))
	assert.True(t, l.Allow("dev-b"), "keys are independent")

	fixed = fixed.Add(20 * time.Second)
	assert.True(t, l.Allow("dev-a"), "one token refills every 20s")
}

func TestNoLimitWhenDisabled(t *testing.T) {
	l := NewKeyedLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("k"))
	}
}
