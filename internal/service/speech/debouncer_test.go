package speech

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
)

type utteranceLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *utteranceLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, s)
}

func (l *utteranceLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen...)
}

func newTestDebouncer() (*Debouncer, *clock.Manual, *utteranceLog) {
	clk := clock.NewManual(time.Unix(0, 0))
	out := &utteranceLog{}
	return NewDebouncer(0, clk.AfterFunc, out.add), clk, out
}

func TestDebouncerWaitsForSilence(t *testing.T) {
	d, clk, out := newTestDebouncer()

	d.Push("Tell me", true)
	clk.Advance(time.Second)
	d.Push("about yourself", true)
	clk.Advance(DefaultSilenceWindow - time.Millisecond)
	assert.Empty(t, out.all())

	clk.Advance(time.Millisecond)
	assert.Equal(t, []string{"Tell me about yourself"}, out.all())
	assert.Empty(t, d.Pending())
}

func TestDebouncerInterimReplacesTail(t *testing.T) {
	d, clk, out := newTestDebouncer()

	d.Push("I worked", true)
	d.Push("at a", false)
	d.Push("at a startup", false)
	assert.Equal(t, "I worked at a startup", d.Pending())

	clk.Advance(DefaultSilenceWindow)
	assert.Equal(t, []string{"I worked at a startup"}, out.all())
}

func TestDebouncerDropsEmptyUtterance(t *testing.T) {
	d, clk, out := newTestDebouncer()

	d.Push("   ", true)
	d.Push("", false)
	clk.Advance(5 * time.Second)
	assert.Empty(t, out.all())
}

func TestDebouncerFlushAndReset(t *testing.T) {
	d, clk, out := newTestDebouncer()

	d.Push("first answer", true)
	d.Flush()
	require.Equal(t, []string{"first answer"}, out.all())

	// the timer armed by Push must not emit again
	clk.Advance(5 * time.Second)
	assert.Len(t, out.all(), 1)

	d.Push("discarded", true)
	d.Reset()
	clk.Advance(5 * time.Second)
	assert.Len(t, out.all(), 1)
	assert.Equal(t, 0, clk.Pending())
}
