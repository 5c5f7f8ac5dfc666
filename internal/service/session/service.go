// Package session owns live practice sessions: one conversation driver, event hub and playback
// queue per session, plus the summary written to history when a session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/analysis/feedback"
	"github.com/zhouzirui/z-practice/backend/internal/clock"
	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/speech"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

var (
	ErrScenarioRequired = errors.New("scenario id is required")
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrSessionNotFound  = errors.New("session not found")
)

// ResponderFactory returns the text-generation collaborator for a session in sc.
type ResponderFactory func(sc scenario.Scenario) conversation.Responder

// Options configures a Service.
type Options struct {
	Scenarios         scenario.Store
	History           store.Repository
	Responders        ResponderFactory
	DefaultDifficulty conversation.Difficulty
	DefaultStrategy   conversation.Strategy

	// Advisor adds user-state guidance to reply prompts. Nil leaves prompts unchanged.
	Advisor conversation.ToneAdvisor

	// Overrides used by tests.
	AfterFunc clock.AfterFunc
	Now       func() time.Time
	Delay     func(conversation.Difficulty) time.Duration
}

// CreateRequest starts a session.
type CreateRequest struct {
	ScenarioID string `json:"scenarioId"`
	Difficulty string `json:"difficulty"`
	Strategy   string `json:"strategy,omitempty"`
}

type liveSession struct {
	info     chat.Session
	scenario scenario.Scenario
	driver   *conversation.Driver
	hub      *Hub
	playback *speech.PlaybackQueue
}

// Service manages live sessions.
type Service struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// NewService creates a session service.
func NewService(opts Options) *Service {
	if opts.DefaultDifficulty == "" {
		opts.DefaultDifficulty = conversation.Medium
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		opts:     opts,
		sessions: make(map[string]*liveSession),
	}
}

// CreateSession provisions a session bound to a scenario and lets the host deliver the opening line.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (chat.Session, conversation.Snapshot, error) {
	scenarioID := strings.TrimSpace(req.ScenarioID)
	if scenarioID == "" {
		return chat.Session{}, conversation.Snapshot{}, ErrScenarioRequired
	}
	sc, ok := s.opts.Scenarios.FindByID(scenarioID)
	if !ok {
		return chat.Session{}, conversation.Snapshot{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioID)
	}

	difficulty := s.opts.DefaultDifficulty
	if strings.TrimSpace(req.Difficulty) != "" {
		parsed, err := conversation.ParseDifficulty(req.Difficulty)
		if err != nil {
			return chat.Session{}, conversation.Snapshot{}, err
		}
		difficulty = parsed
	}

	strategy, err := conversation.ParseStrategy(req.Strategy)
	if err != nil {
		return chat.Session{}, conversation.Snapshot{}, err
	}
	if strategy == "" {
		strategy = s.opts.DefaultStrategy
	}

	responder := s.responderFor(sc)
	if responder == nil {
		return chat.Session{}, conversation.Snapshot{}, fmt.Errorf("no responder available for scenario %s", sc.ID)
	}

	id := uuid.NewString()
	hub := NewHub(0)
	playback := speech.NewPlaybackQueue(id)
	driver, err := conversation.NewDriver(conversation.Options{
		SessionID:  id,
		Scenario:   sc,
		Difficulty: difficulty,
		Strategy:   strategy,
		Responder:  responder,
		Advisor:    s.opts.Advisor,
		Speaker:    playback,
		Sink:       newSessionSink(hub, playback),
		AfterFunc:  s.opts.AfterFunc,
		Now:        s.opts.Now,
		Delay:      s.opts.Delay,
	})
	if err != nil {
		playback.Close()
		return chat.Session{}, conversation.Snapshot{}, fmt.Errorf("start session driver: %w", err)
	}

	info := chat.Session{
		ID:         id,
		ScenarioID: sc.ID,
		Difficulty: string(difficulty),
		Strategy:   string(strategy),
		CreatedAt:  s.opts.Now().UTC(),
	}
	live := &liveSession{info: info, scenario: sc, driver: driver, hub: hub, playback: playback}

	s.mu.Lock()
	s.sessions[id] = live
	s.mu.Unlock()

	if err := driver.Begin(ctx); err != nil {
		s.discard(id)
		return chat.Session{}, conversation.Snapshot{}, fmt.Errorf("begin session: %w", err)
	}

	snap, err := driver.Snapshot(ctx)
	if err != nil {
		s.discard(id)
		return chat.Session{}, conversation.Snapshot{}, err
	}

	log.Info().Str("component", "session").Str("session", id).Str("scenario", sc.ID).
		Str("difficulty", string(difficulty)).Msg("session created")
	return info, snap, nil
}

// newSessionSink fans driver events out to subscribers and lets playback hear the user.
func newSessionSink(hub *Hub, playback *speech.PlaybackQueue) conversation.EventSink {
	return conversation.SinkFunc(func(e conversation.Event) {
		if e.Type == conversation.EventMessage && e.Message != nil && e.Message.FromUser() {
			playback.ObserveUserMessage(e.Message.Content)
		}
		hub.Publish(e)
	})
}

func (s *Service) responderFor(sc scenario.Scenario) conversation.Responder {
	if s.opts.Responders == nil {
		return nil
	}
	return s.opts.Responders(sc)
}

func (s *Service) lookup(sessionID string) (*liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

// GetSession returns session metadata and a snapshot of its conversation.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, conversation.Snapshot, error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, conversation.Snapshot{}, err
	}
	snap, err := live.driver.Snapshot(ctx)
	if err != nil {
		return chat.Session{}, conversation.Snapshot{}, err
	}
	info := live.info
	info.Difficulty = string(snap.Difficulty)
	return info, snap, nil
}

// Scenario returns the scenario a live session runs.
func (s *Service) Scenario(sessionID string) (scenario.Scenario, error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return scenario.Scenario{}, err
	}
	return live.scenario, nil
}

// SubmitMessage appends a user message and schedules the reply.
func (s *Service) SubmitMessage(ctx context.Context, sessionID, content string) (chat.Message, error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return chat.Message{}, err
	}
	return live.driver.SubmitUserMessage(ctx, content)
}

// SetDifficulty changes the response delay band of a live session.
func (s *Service) SetDifficulty(ctx context.Context, sessionID, raw string) (conversation.Difficulty, error) {
	difficulty, err := conversation.ParseDifficulty(raw)
	if err != nil {
		return "", err
	}
	live, err := s.lookup(sessionID)
	if err != nil {
		return "", err
	}
	if err := live.driver.SetDifficulty(ctx, difficulty); err != nil {
		return "", err
	}
	return difficulty, nil
}

// Notify shows a notice to every subscriber of the session.
func (s *Service) Notify(ctx context.Context, sessionID, notice string) error {
	live, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return live.driver.Notify(ctx, notice)
}

// Subscribe streams the session's events until cancel is called or the session ends.
func (s *Service) Subscribe(sessionID string) (<-chan conversation.Event, func(), error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := live.hub.Subscribe()
	return ch, cancel, nil
}

// Playback returns the session's TTS queue so a client connection can attach a synthesizer.
func (s *Service) Playback(sessionID string) (*speech.PlaybackQueue, error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return live.playback, nil
}

// EndSession stops the session, scores it and appends the summary to history. Without
// saveTranscript the summary is stored with no transcript.
func (s *Service) EndSession(ctx context.Context, sessionID string, saveTranscript bool) (store.Summary, error) {
	live, err := s.lookup(sessionID)
	if err != nil {
		return store.Summary{}, err
	}

	snap, err := live.driver.End(ctx)
	if err != nil {
		return store.Summary{}, err
	}
	s.discard(sessionID)

	report := feedback.Analyze(snap.Messages)
	summary := store.Summary{
		ID:            uuid.NewString(),
		SessionID:     snap.SessionID,
		ScenarioID:    snap.ScenarioID,
		ScenarioTitle: live.scenario.Title,
		Date:          snap.EndedAt,
		Score:         report.Score,
		Duration:      int64(snap.Duration(snap.EndedAt).Seconds()),
		Difficulty:    string(snap.Difficulty),
		Highlights:    report.Highlights,
	}
	if saveTranscript {
		transcript := snap.Messages
		summary.Transcript = &transcript
	}

	logger := log.With().Str("component", "session").Str("session", sessionID).Logger()
	if s.opts.History != nil {
		if err := s.opts.History.Append(ctx, summary); err != nil {
			logger.Error().Err(err).Msg("failed to persist session summary")
			return summary, fmt.Errorf("save session summary: %w", err)
		}
	}

	logger.Info().Int("score", summary.Score).Int64("duration", summary.Duration).
		Bool("transcript", saveTranscript).Msg("session ended")
	return summary, nil
}

// discard removes a session and releases its goroutines.
func (s *Service) discard(sessionID string) {
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}

	live.driver.Close()
	live.playback.Close()
	live.hub.Close()
}

// Active returns the number of live sessions.
func (s *Service) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close ends every live session without writing summaries.
func (s *Service) Close() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.discard(id)
	}
}
