package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
)

type firing struct {
	turn  int
	token uint64
}

func TestRegistryRejectsDuplicateTurn(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	reg := NewRegistry(clk.AfterFunc)

	var fired []firing
	record := func(turn int, token uint64) { fired = append(fired, firing{turn, token}) }

	first, ok := reg.Add(0, "a", time.Second, record)
	require.True(t, ok)
	_, ok = reg.Add(0, "b", time.Second, record)
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(time.Second)
	require.Len(t, fired, 1)
	assert.Equal(t, first.Token, fired[0].token)
}

func TestRegistryClaimOnce(t *testing.T) {
	reg := NewRegistry(clock.NewManual(time.Unix(0, 0)).AfterFunc)
	entry, ok := reg.Add(2, "a", time.Second, func(int, uint64) {})
	require.True(t, ok)

	claimed, ok := reg.Claim(2, entry.Token)
	require.True(t, ok)
	assert.True(t, claimed.Fired)
	assert.Equal(t, "a", claimed.AgentID)

	_, ok = reg.Claim(2, entry.Token)
	assert.False(t, ok, "a fired entry cannot be claimed twice")
	assert.True(t, reg.Has(2), "claimed entry stays registered until released")

	assert.True(t, reg.Release(2, entry.Token))
	assert.False(t, reg.Has(2))
}

func TestRegistryReplacedEntryRejectsOldToken(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	reg := NewRegistry(clk.AfterFunc)

	old, _ := reg.Add(1, "a", time.Second, func(int, uint64) {})
	require.True(t, reg.Cancel(1))
	fresh, ok := reg.Add(1, "b", time.Second, func(int, uint64) {})
	require.True(t, ok)
	assert.NotEqual(t, old.Token, fresh.Token)

	_, ok = reg.Claim(1, old.Token)
	assert.False(t, ok)
	assert.False(t, reg.Release(1, old.Token))
	assert.True(t, reg.Has(1))
	assert.Equal(t, 1, clk.Pending())
}

func TestRegistryCancelAllStopsTimers(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	reg := NewRegistry(clk.AfterFunc)

	fired := 0
	for turn := 0; turn < 3; turn++ {
		reg.Add(turn, "a", time.Second, func(int, uint64) { fired++ })
	}

	assert.Equal(t, 3, reg.CancelAll())
	assert.Equal(t, 0, reg.Len())
	clk.Advance(time.Minute)
	assert.Zero(t, fired)
}
