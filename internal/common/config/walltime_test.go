package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseWalltime_SchedulerSyntax(t *testing.T) {
	d, err := ParseWalltime("02:30:00")
	assert.NoError(t, err)
	assert.Equal(t, 2*time.Hour+30*time.Minute, d)

	d, err = ParseWalltime("40:00:00")
	assert.NoError(t, err)
	assert.Equal(t, 40*time.Hour, d)

	d, err = ParseWalltime("100:00:30")
	assert.NoError(t, err)
	assert.Equal(t, 100*time.Hour+30*time.Second, d)
}

func TestParseWalltime_GoDurationSyntax(t *testing.T) {
	d, err := ParseWalltime("90m")
	assert.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	d, err = ParseWalltime("10h")
	assert.NoError(t, err)
	assert.Equal(t, 10*time.Hour, d)
}

func TestParseWalltime_Invalid(t *testing.T) {
	for _, value := range []string{"", "nope", "10:99:00", "10:00:61", "1:2:3"} {
		_, err := ParseWalltime(value)
		assert.Error(t, err, "value %q", value)
	}
}

func TestFormatWalltime(t *testing.T) {
	assert.Equal(t, "01:30:00", FormatWalltime(90*time.Minute))
	assert.Equal(t, "40:00:00", FormatWalltime(40*time.Hour))
	assert.Equal(t, "00:00:05", FormatWalltime(5*time.Second))
}

func TestWalltimeRoundTrip(t *testing.T) {
	d, err := ParseWalltime(FormatWalltime(10*time.Hour + 10*time.Minute + 10*time.Second))
	assert.NoError(t, err)
	assert.Equal(t, 10*time.Hour+10*time.Minute+10*time.Second, d)
}
