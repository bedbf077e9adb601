package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/cellsim/clock"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
)

func TestClockTick(t *testing.T) {
	c := clock.New(config.ControlStep{Total: 2, DT: 1800})
	assert.False(t, c.Finished())
	c.Tick()
	assert.Equal(t, uint64(1), c.InternalStep)
	assert.Equal(t, "00:30:00", c.String())
	c.Tick()
	assert.True(t, c.Finished())
	h, m, s := c.GetHourMinuteSecond()
	assert.Equal(t, 1, h)
	assert.Equal(t, 0, m)
	assert.Equal(t, 0., s)

	c.Init()
	assert.Equal(t, uint64(0), c.InternalStep)
	assert.False(t, c.Finished())
}

func TestClockUnlimited(t *testing.T) {
	c := clock.New(config.ControlStep{})
	assert.Equal(t, config.DefaultDT, c.DT)
	for range 1000 {
		c.Tick()
	}
	assert.False(t, c.Finished())
}
