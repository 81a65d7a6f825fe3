package cachestore_test

import (
	"testing"
	"time"

	"github.com/IsaacDSC/gquery/internal/cachestore"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_PurgesOnInterval(t *testing.T) {
	clk := testclock.NewClock(epoch)
	s := cachestore.New(cachestore.Options{Clock: clk})
	sw := cachestore.NewSweeper(s, clk, time.Minute, 90*time.Second)

	s.Set("old", []byte(`0`))
	sw.Start()
	t.Cleanup(func() { _ = sw.Stop() })

	// first tick: "old" is 1m old, below max age
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	s.Set("new", []byte(`0`))

	// second tick: "old" is 2m old and goes, "new" is 1m old and stays
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"new"}, s.Keys())
}

func TestSweeper_StartStop(t *testing.T) {
	clk := testclock.NewClock(epoch)
	s := cachestore.New(cachestore.Options{Clock: clk})
	sw := cachestore.NewSweeper(s, clk, time.Minute, time.Minute)

	assert.False(t, sw.Running())
	assert.NoError(t, sw.Stop(), "stopping a stopped sweeper is harmless")

	sw.Start()
	sw.Start()
	assert.True(t, sw.Running())

	require.NoError(t, sw.Stop())
	assert.False(t, sw.Running())

	// stopped sweeper never touches the store
	s.Set("a", []byte(`0`))
	clk.Advance(time.Hour)
	assert.Equal(t, 1, s.Len())

	// and can be restarted
	sw.Start()
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sw.Stop())
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := cachestore.New(cachestore.Options{})
	sw := cachestore.NewSweeper(s, nil, 0, 0)

	sw.Start()
	assert.True(t, sw.Running())
	assert.NoError(t, sw.Stop())
}
