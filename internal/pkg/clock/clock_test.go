package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayIgnoresZoneAndTimeOfDay(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*3600)
	late := time.Date(2026, 3, 1, 23, 59, 0, 0, moscow)
	early := time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, Day(late), Day(early))
	assert.Equal(t, time.UTC, Day(late).Location())
}

func TestFixedAdvance(t *testing.T) {
	c := NewFixed(time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC))
	c.AdvanceDays(1)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), c.Today())

	c.Set(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), c.Today())
}

func TestSystemUsesLocation(t *testing.T) {
	c := NewSystem(time.UTC)
	assert.Equal(t, Day(time.Now().UTC()), c.Today())
}
