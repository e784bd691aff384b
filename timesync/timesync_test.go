package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSource_ZeroOffsetFallsBackToLocalClock(t *testing.T) {
	source := NewSource()

	assert.Equal(t, time.Duration(0), source.Offset())
	assert.WithinDuration(t, time.Now(), source.Now(), 100*time.Millisecond,
		"Without an NTP sample Now should track the local clock")
}

func TestSource_StopIsIdempotent(t *testing.T) {
	source := NewSource()
	source.Stop()
	source.Stop() // must not panic

	assert.WithinDuration(t, time.Now(), source.Now(), 100*time.Millisecond,
		"Now keeps working after Stop")
}
