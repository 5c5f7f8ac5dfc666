package speech

import (
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
)

// DefaultSilenceWindow is how long the recognizer must stay quiet before an utterance is submitted.
const DefaultSilenceWindow = 1500 * time.Millisecond

// Debouncer 把语音识别片段合并成一句完整的话，静默超过窗口后再提交。
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	after   clock.AfterFunc
	emit    func(utterance string)
	final   []string
	interim string
	timer   clock.Timer
	gen     uint64
}

// NewDebouncer creates a debouncer. emit runs on the timer goroutine.
func NewDebouncer(window time.Duration, after clock.AfterFunc, emit func(string)) *Debouncer {
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	if after == nil {
		after = clock.Real
	}
	return &Debouncer{window: window, after: after, emit: emit}
}

// Push records a recognition fragment. Final fragments accumulate; an interim fragment replaces the
// previous interim tail. Every fragment restarts the silence window.
func (d *Debouncer) Push(text string, isFinal bool) {
	text = strings.TrimSpace(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	if isFinal {
		if text != "" {
			d.final = append(d.final, text)
		}
		d.interim = ""
	} else {
		d.interim = text
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.after(d.window, func() { d.fire(gen) })
}

// Flush submits whatever is pending without waiting for silence.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	utterance := d.takeLocked()
	d.mu.Unlock()

	if utterance != "" {
		d.emit(utterance)
	}
}

// Reset drops pending fragments.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.final = nil
	d.interim = ""
}

// Pending returns the text that would be submitted now.
func (d *Debouncer) Pending() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joinLocked()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	utterance := d.takeLocked()
	d.mu.Unlock()

	// 静默期间没有有效内容时不提交空消息
	if utterance != "" {
		d.emit(utterance)
	}
}

func (d *Debouncer) takeLocked() string {
	utterance := d.joinLocked()
	d.final = nil
	d.interim = ""
	return utterance
}

func (d *Debouncer) joinLocked() string {
	parts := make([]string, 0, len(d.final)+1)
	parts = append(parts, d.final...)
	if d.interim != "" {
		parts = append(parts, d.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
