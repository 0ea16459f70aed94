package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 60 frames of ~16.7ms each add up to just over one second.
	for i := 0; i < 60; i++ {
		m.Update(1.0 / 59.0)
	}
	assert.Equal(t, float64(60), m.FPS())
}

func TestMetricsFrameTimeAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-6)

	// the window slides: half old, half new frames
	for i := 0; i < int(AVG_COUNT)/2; i++ {
		m.Update(0.020)
	}
	assert.InDelta(t, 15.0, m.FrameTime(), 1e-6)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.020)
	}
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-6)
}

func TestClockElapsed(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed(), "a clock that was never started does not move")

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)

	c.Stop()
	before := c.Elapsed()
	c.Update()
	assert.Equal(t, before, c.Elapsed())
}
