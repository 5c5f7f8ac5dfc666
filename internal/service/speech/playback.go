package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// Utterance is one agent message waiting to be spoken.
type Utterance struct {
	Text         string  `json:"text"`
	SpeakerLabel string  `json:"speakerLabel"`
	MessageID    string  `json:"messageId"`
	VoiceHandle  string  `json:"voiceHandle,omitempty"`
	Tone         string  `json:"tone,omitempty"`
	Rate         float64 `json:"rate,omitempty"`
	Pitch        float64 `json:"pitch,omitempty"`
}

// ErrPlaybackTimeout is returned by a synthesizer when the client never confirmed playback.
var ErrPlaybackTimeout = errors.New("playback not confirmed in time")

// Synthesizer plays an utterance and returns once playback finished or ctx was cancelled.
type Synthesizer interface {
	Synthesize(ctx context.Context, u Utterance) error
}

// PlaybackQueue 按顺序播放智能体消息，同一条消息最多播放一次。
type PlaybackQueue struct {
	mu        sync.Mutex
	queue     []Utterance
	seen      map[string]struct{}
	synth     Synthesizer
	playing   string
	cancelCur context.CancelFunc
	closed    bool
	lastUser  string

	wake   chan struct{}
	done   chan struct{}
	logger zerolog.Logger
}

// NewPlaybackQueue starts the playback worker.
func NewPlaybackQueue(sessionID string) *PlaybackQueue {
	q := &PlaybackQueue{
		seen:   make(map[string]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: log.With().Str("component", "playback").Str("session", sessionID).Logger(),
	}
	go q.run()
	return q
}

// Attach makes s the active synthesizer, replacing any previous one.
func (q *PlaybackQueue) Attach(s Synthesizer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.synth != nil && q.synth != s {
		q.cancelAllLocked()
	}
	q.synth = s
}

// Detach removes s if it is still the active synthesizer and drops everything queued for it.
func (q *PlaybackQueue) Detach(s Synthesizer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.synth != s {
		return
	}
	q.synth = nil
	q.cancelAllLocked()
}

// Enqueue adds u to the queue. It reports false for duplicates, for utterances without a message id
// or text, and when no synthesizer is attached.
func (q *PlaybackQueue) Enqueue(u Utterance) bool {
	if u.MessageID == "" || u.Text == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.synth == nil {
		return false
	}
	if _, dup := q.seen[u.MessageID]; dup {
		return false
	}
	q.seen[u.MessageID] = struct{}{}
	q.queue = append(q.queue, u)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// ObserveUserMessage records what the user last said so the next reply can answer in tone.
func (q *PlaybackQueue) ObserveUserMessage(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastUser = text
}

// Speak enqueues an agent message.
func (q *PlaybackQueue) Speak(msg chat.Message, voiceHandle string) bool {
	q.mu.Lock()
	lastUser := q.lastUser
	q.mu.Unlock()

	delivery := tone.Analyze(lastUser, msg.Content)
	return q.Enqueue(Utterance{
		Text:         msg.Content,
		SpeakerLabel: msg.SpeakerName,
		MessageID:    msg.ID,
		VoiceHandle:  voiceHandle,
		Tone:         string(delivery.Tone),
		Rate:         delivery.Rate,
		Pitch:        delivery.Pitch,
	})
}

// CancelAll drops queued utterances and interrupts the one playing.
func (q *PlaybackQueue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelAllLocked()
}

// Len returns the number of utterances waiting, excluding the one playing.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Playing returns the message id being spoken, if any.
func (q *PlaybackQueue) Playing() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close cancels playback and stops the worker.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cancelAllLocked()
	q.mu.Unlock()

	close(q.wake)
	<-q.done
}

func (q *PlaybackQueue) cancelAllLocked() {
	q.queue = nil
	if q.cancelCur != nil {
		q.cancelCur()
	}
}

func (q *PlaybackQueue) run() {
	defer close(q.done)
	for range q.wake {
		for q.playNext() {
		}
	}
}

// playNext plays the head of the queue and reports whether it found one.
func (q *PlaybackQueue) playNext() bool {
	q.mu.Lock()
	if len(q.queue) == 0 || q.synth == nil {
		q.mu.Unlock()
		return false
	}
	u := q.queue[0]
	q.queue = q.queue[1:]
	synth := q.synth
	ctx, cancel := context.WithCancel(context.Background())
	q.playing = u.MessageID
	q.cancelCur = cancel
	q.mu.Unlock()

	err := synth.Synthesize(ctx, u)
	cancel()

	q.mu.Lock()
	q.playing = ""
	q.cancelCur = nil
	q.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn().Err(err).Str("message", u.MessageID).Msg("playback failed")
	}
	return true
}
