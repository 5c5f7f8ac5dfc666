package session_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	"github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/internal/service/speech"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

const replyDelay = 3 * time.Second

type harness struct {
	svc     *session.Service
	clock   *clock.Manual
	history *store.SQLiteStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	history, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := session.NewService(session.Options{
		Scenarios: scenario.NewMemoryStore(scenario.Seed()),
		History:   history,
		Responders: func(sc scenario.Scenario) conversation.Responder {
			return ai.NewHeuristicResponder(sc.Questions)
		},
		AfterFunc: clk.AfterFunc,
		Now:       clk.Now,
		Delay:     func(conversation.Difficulty) time.Duration { return replyDelay },
	})
	t.Cleanup(svc.Close)

	return &harness{svc: svc, clock: clk, history: history}
}

func (h *harness) waitForMessages(t *testing.T, sessionID string, n int) conversation.Snapshot {
	t.Helper()
	var snap conversation.Snapshot
	require.Eventually(t, func() bool {
		var err error
		_, snap, err = h.svc.GetSession(context.Background(), sessionID)
		return err == nil && len(snap.Messages) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestCreateSessionDeliversOpeningLine(t *testing.T) {
	h := newHarness(t)

	info, snap, err := h.svc.CreateSession(context.Background(), session.CreateRequest{
		ScenarioID: "job-interview",
		Difficulty: "hard",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "hard", info.Difficulty)

	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "sarah", snap.Messages[0].SpeakerID)
	assert.Equal(t, 1, snap.State.TurnIndex)
	assert.Equal(t, 1, h.svc.Active())
}

func TestCreateSessionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.CreateSession(ctx, session.CreateRequest{})
	require.ErrorIs(t, err, session.ErrScenarioRequired)

	_, _, err = h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "karaoke"})
	require.ErrorIs(t, err, session.ErrScenarioNotFound)

	_, _, err = h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview", Difficulty: "brutal"})
	require.ErrorIs(t, err, conversation.ErrInvalidDifficulty)

	_, _, err = h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview", Strategy: "random"})
	require.ErrorIs(t, err, conversation.ErrInvalidStrategy)

	assert.Equal(t, 0, h.svc.Active())
}

func TestSessionConversationRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, _, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview"})
	require.NoError(t, err)

	events, cancel, err := h.svc.Subscribe(info.ID)
	require.NoError(t, err)
	defer cancel()

	msg, err := h.svc.SubmitMessage(ctx, info.ID, "I am a backend engineer with six years of experience in payments")
	require.NoError(t, err)
	assert.Equal(t, chat.UserSpeaker, msg.SpeakerID)

	h.clock.Advance(replyDelay)
	snap := h.waitForMessages(t, info.ID, 3)

	reply := snap.Messages[2]
	assert.Equal(t, "marcus", reply.SpeakerID)
	assert.Contains(t, reply.Content, "What drew you to this role?")
	assert.Equal(t, 2, snap.State.TurnIndex)

	seen := map[conversation.EventType]bool{}
	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				seen[e.Type] = true
			default:
				return seen[conversation.EventMessage] && seen[conversation.EventScheduled] && seen[conversation.EventState]
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSetDifficulty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, _, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "presentation"})
	require.NoError(t, err)
	assert.Equal(t, "medium", info.Difficulty)

	got, err := h.svc.SetDifficulty(ctx, info.ID, "easy")
	require.NoError(t, err)
	assert.Equal(t, conversation.Easy, got)

	info, snap, err := h.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "easy", info.Difficulty)
	assert.Equal(t, conversation.Easy, snap.Difficulty)

	_, err = h.svc.SetDifficulty(ctx, info.ID, "nightmare")
	require.ErrorIs(t, err, conversation.ErrInvalidDifficulty)
	_, err = h.svc.SetDifficulty(ctx, "missing", "easy")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEndSessionPersistsSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, _, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview"})
	require.NoError(t, err)
	_, err = h.svc.SubmitMessage(ctx, info.ID, "I led the rewrite of our billing system and as a result cut costs")
	require.NoError(t, err)
	h.clock.Advance(replyDelay)
	h.waitForMessages(t, info.ID, 3)

	h.clock.Advance(2 * time.Minute)
	summary, err := h.svc.EndSession(ctx, info.ID, true)
	require.NoError(t, err)
	assert.Equal(t, info.ID, summary.SessionID)
	assert.Equal(t, "Job Interview Panel", summary.ScenarioTitle)
	assert.Equal(t, int64(123), summary.Duration)
	assert.Positive(t, summary.Score)
	require.NotNil(t, summary.Transcript)
	assert.Len(t, *summary.Transcript, 3)

	stored, err := h.history.Get(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.Score, stored.Score)
	require.NotNil(t, stored.Transcript)

	_, _, err = h.svc.GetSession(ctx, info.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Equal(t, 0, h.svc.Active())
}

func TestEndSessionWithoutTranscript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, _, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "salary-negotiation"})
	require.NoError(t, err)
	_, err = h.svc.SubmitMessage(ctx, info.ID, "I was hoping for something closer to the market rate")
	require.NoError(t, err)

	summary, err := h.svc.EndSession(ctx, info.ID, false)
	require.NoError(t, err)
	assert.Nil(t, summary.Transcript)

	// the pending reply was cancelled with the session
	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.clock.Pending())

	stored, err := h.history.Get(ctx, summary.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Transcript)

	_, err = h.svc.EndSession(ctx, info.ID, false)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEndSessionClosesSubscribers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, _, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview"})
	require.NoError(t, err)
	events, cancel, err := h.svc.Subscribe(info.ID)
	require.NoError(t, err)
	defer cancel()

	_, err = h.svc.EndSession(ctx, info.ID, false)
	require.NoError(t, err)

	var last conversation.Event
	for e := range events {
		last = e
	}
	assert.Equal(t, conversation.EventEnded, last.Type)
}

func TestNotifyIsKeptInSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, snap, err := h.svc.CreateSession(ctx, session.CreateRequest{ScenarioID: "job-interview"})
	require.NoError(t, err)
	assert.Empty(t, snap.Notices)

	require.NoError(t, h.svc.Notify(ctx, info.ID, speech.RecognitionUnavailableNotice))
	require.NoError(t, h.svc.Notify(ctx, info.ID, speech.RecognitionUnavailableNotice))

	_, snap, err = h.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{speech.RecognitionUnavailableNotice}, snap.Notices)
}
