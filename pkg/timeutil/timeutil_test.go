package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatLongDate(t *testing.T) {
	assert.Equal(t, "Wednesday, February 18, 2026", FormatLongDate(time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Sunday, March 01, 2026", FormatLongDate(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSetClock(t *testing.T) {
	pinned := time.Date(2026, 3, 14, 22, 15, 0, 0, time.UTC)
	restore := SetClock(func() time.Time { return pinned })

	assert.Equal(t, pinned, Now())

	restore()
	assert.NotEqual(t, pinned, Now())
}
