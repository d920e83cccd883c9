package timing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/timing"
)

func TestAdvanceFiresDueEventsInDeadlineOrder(t *testing.T) {
	c := timing.New()

	var order []string
	c.Schedule(10, func() { order = append(order, "a") })
	c.Schedule(5, func() { order = append(order, "b") })
	c.Schedule(5, func() { order = append(order, "c") }) // tie with b, inserted after

	c.Advance(10)

	require.Equal(t, []string{"b", "c", "a"}, order)
}

func TestIdleAdvancesToNextDeadline(t *testing.T) {
	c := timing.New()
	fired := false
	c.Schedule(50, func() { fired = true })

	c.Idle()

	require.True(t, fired)
	require.Equal(t, timing.Tick(50), c.Now())
}

func TestIdleWithEmptyHeapUsesQuantum(t *testing.T) {
	c := timing.New()
	c.Idle()
	require.Equal(t, timing.IdleQuantum, c.Now())
}
