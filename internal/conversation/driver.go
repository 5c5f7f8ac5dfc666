package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
)

var (
	ErrSessionEnded = errors.New("session has ended")
	ErrEmptyMessage = errors.New("message content is empty")
	ErrDriverClosed = errors.New("session driver closed")
)

// ErrorReplyPrefix starts the agent message shown when reply generation fails.
const ErrorReplyPrefix = "Sorry, I encountered an error: "

const defaultGenerateTimeout = 45 * time.Second

// Options configures a Driver.
type Options struct {
	SessionID  string
	Scenario   scenario.Scenario
	Difficulty Difficulty
	Strategy   Strategy
	Responder  Responder
	Speaker    Speaker
	Sink       EventSink
	// Advisor is optional. When set, its guidance is added to every reply prompt.
	Advisor ToneAdvisor

	// AfterFunc and Now default to the real clock.
	AfterFunc clock.AfterFunc
	Now       func() time.Time
	// Delay defaults to ResponseDelay.
	Delay           func(Difficulty) time.Duration
	GenerateTimeout time.Duration
}

// Snapshot is a consistent copy of a session's conversation.
type Snapshot struct {
	SessionID  string         `json:"sessionId"`
	ScenarioID string         `json:"scenarioId"`
	Difficulty Difficulty     `json:"difficulty"`
	Strategy   Strategy       `json:"strategy"`
	State      State          `json:"state"`
	Messages   []chat.Message `json:"messages"`
	Pending    int            `json:"pending"`
	Ended      bool           `json:"ended"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    time.Time      `json:"endedAt,omitempty"`
	// Notices are the standing notices raised during the session, oldest first.
	Notices []string `json:"notices,omitempty"`
}

// Duration returns how long the session ran, or has run so far when now is passed for a live one.
func (s Snapshot) Duration(now time.Time) time.Duration {
	end := s.EndedAt
	if end.IsZero() {
		end = now
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Driver owns one session's conversation state and message log. Every mutation runs as a command
// on a single goroutine, so no field below is shared with other goroutines.
type Driver struct {
	id        string
	scenario  scenario.Scenario
	responder Responder
	advisor   ToneAdvisor
	speaker   Speaker
	sink      EventSink
	now       func() time.Time
	delay     func(Difficulty) time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	cmds      chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	state      State
	messages   []chat.Message
	registry   *Registry
	difficulty Difficulty
	strategy   Strategy
	notices    []string
	ended      bool
	startedAt  time.Time
	endedAt    time.Time
}

// NewDriver validates opts and starts the command loop.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Responder == nil {
		return nil, fmt.Errorf("session driver requires a responder")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Difficulty == "" {
		opts.Difficulty = Medium
	}
	difficulty, err := ParseDifficulty(string(opts.Difficulty))
	if err != nil {
		return nil, err
	}
	opts.Difficulty = difficulty
	if opts.Speaker == nil {
		opts.Speaker = silentSpeaker{}
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Delay == nil {
		opts.Delay = ResponseDelay
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		id:         opts.SessionID,
		scenario:   opts.Scenario,
		responder:  opts.Responder,
		advisor:    opts.Advisor,
		speaker:    opts.Speaker,
		sink:       opts.Sink,
		now:        opts.Now,
		delay:      opts.Delay,
		timeout:    opts.GenerateTimeout,
		logger:     log.With().Str("component", "driver").Str("session", opts.SessionID).Logger(),
		cmds:       make(chan func(), 32),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		state:      InitState(),
		messages:   make([]chat.Message, 0, 16),
		registry:   NewRegistry(opts.AfterFunc),
		difficulty: opts.Difficulty,
		strategy:   opts.Strategy,
		startedAt:  opts.Now().UTC(),
	}

	go d.loop()
	return d, nil
}

// ID returns the session identifier.
func (d *Driver) ID() string {
	return d.id
}

func (d *Driver) loop() {
	defer close(d.done)
	for {
		select {
		case cmd := <-d.cmds:
			cmd()
		case <-d.stop:
			return
		}
	}
}

// exec runs fn on the driver goroutine and waits for it to finish. fn is skipped when ctx is
// already done by the time the command is dequeued, so a caller that sees ctx.Err() never has its
// command applied afterwards.
func (d *Driver) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	var ctxErr error
	cmd := func() {
		defer close(finished)
		if ctxErr = ctx.Err(); ctxErr != nil {
			return
		}
		fn()
	}

	select {
	case d.cmds <- cmd:
	case <-d.done:
		return ErrDriverClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return ctxErr
	case <-d.done:
		return ErrDriverClosed
	case <-ctx.Done():
	}
	// fn may already be running; wait so the result reported matches what happened.
	select {
	case <-finished:
		return ctxErr
	case <-d.done:
		return ErrDriverClosed
	}
}

// post enqueues fn without waiting. Used by timer and generation callbacks.
func (d *Driver) post(fn func()) {
	select {
	case d.cmds <- fn:
	case <-d.done:
	}
}

// Close stops the command loop and aborts in-flight generation. Pending timers that fire later
// find the loop gone and do nothing.
func (d *Driver) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		close(d.stop)
	})
	<-d.done
}

// Begin lets the first agent deliver the scenario's opening line. It is a no-op once any message
// exists.
func (d *Driver) Begin(ctx context.Context) error {
	var err error
	execErr := d.exec(ctx, func() {
		if d.ended {
			err = ErrSessionEnded
			return
		}
		opening := strings.TrimSpace(d.scenario.OpeningLine)
		if opening == "" || len(d.messages) > 0 {
			return
		}
		agent := SelectAgentToSpeak(d.messages, &d.scenario, d.scenario.Agents, d.strategy)
		if agent == nil {
			return
		}
		d.appendAgentMessage(*agent, opening, false)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// SubmitUserMessage appends a user message and schedules the agent reply. A schedule still pending
// for the current turn is superseded so the reply accounts for everything the user said.
//
// If ctx is cancelled before the driver picks the command up, nothing is appended and ctx.Err() is
// returned. Once the command has started it completes and the message is returned.
func (d *Driver) SubmitUserMessage(ctx context.Context, content string) (chat.Message, error) {
	var (
		msg chat.Message
		err error
	)
	execErr := d.exec(ctx, func() {
		if d.ended {
			err = ErrSessionEnded
			return
		}
		content = strings.TrimSpace(content)
		if content == "" {
			err = ErrEmptyMessage
			return
		}

		msg = chat.Message{
			ID:          uuid.NewString(),
			SessionID:   d.id,
			SpeakerID:   chat.UserSpeaker,
			SpeakerName: "You",
			Content:     content,
			CreatedAt:   d.now().UTC(),
		}
		d.messages = append(d.messages, msg)
		d.publish(Event{Type: EventMessage, Message: &msg})

		if d.registry.Cancel(d.state.TurnIndex) {
			d.logger.Debug().Int("turn", d.state.TurnIndex).Msg("superseded pending agent reply")
		}
		d.state = UpdateOnUserMessage(d.state)
		d.publishState()
		d.scheduleAgentResponse()
	})
	if execErr != nil {
		return chat.Message{}, execErr
	}
	return msg, err
}

// ScheduleAgentResponse schedules a reply for the current turn if one is allowed and none is
// pending. It reports whether a new schedule was created.
func (d *Driver) ScheduleAgentResponse(ctx context.Context) (bool, error) {
	var scheduled bool
	if err := d.exec(ctx, func() { scheduled = d.scheduleAgentResponse() }); err != nil {
		return false, err
	}
	return scheduled, nil
}

// SetDifficulty changes the delay band used by future schedules.
func (d *Driver) SetDifficulty(ctx context.Context, difficulty Difficulty) error {
	difficulty, err := ParseDifficulty(string(difficulty))
	if err != nil {
		return err
	}
	execErr := d.exec(ctx, func() {
		if d.ended {
			err = ErrSessionEnded
			return
		}
		d.difficulty = difficulty
		d.publish(Event{Type: EventNotice, Notice: fmt.Sprintf("difficulty set to %s", difficulty)})
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// Notify publishes a standing notice and keeps it for later snapshots. Repeats of a notice already
// raised are published again but stored once. Conversation state is untouched.
func (d *Driver) Notify(ctx context.Context, notice string) error {
	notice = strings.TrimSpace(notice)
	if notice == "" {
		return nil
	}
	return d.exec(ctx, func() {
		if !slices.Contains(d.notices, notice) {
			d.notices = append(d.notices, notice)
		}
		d.publish(Event{Type: EventNotice, Notice: notice})
	})
}

// End marks the session ended, cancels every pending schedule and flushes playback. When End
// returns no late timer can append a message.
func (d *Driver) End(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	execErr := d.exec(ctx, func() {
		if d.ended {
			err = ErrSessionEnded
			return
		}
		d.ended = true
		d.endedAt = d.now().UTC()
		cancelled := d.registry.CancelAll()
		d.speaker.CancelAll()
		d.logger.Info().Int("cancelled", cancelled).Int("messages", len(d.messages)).Msg("session ended")
		d.publish(Event{Type: EventEnded})
		snap = d.snapshot()
	})
	if execErr != nil {
		return Snapshot{}, execErr
	}
	return snap, err
}

// Snapshot returns a copy of the current conversation.
func (d *Driver) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := d.exec(ctx, func() { snap = d.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (d *Driver) snapshot() Snapshot {
	messages := make([]chat.Message, len(d.messages))
	copy(messages, d.messages)
	return Snapshot{
		SessionID:  d.id,
		ScenarioID: d.scenario.ID,
		Difficulty: d.difficulty,
		Strategy:   d.strategy,
		State:      d.state,
		Messages:   messages,
		Pending:    d.registry.Len(),
		Ended:      d.ended,
		StartedAt:  d.startedAt,
		EndedAt:    d.endedAt,
		Notices:    slices.Clone(d.notices),
	}
}

func (d *Driver) scheduleAgentResponse() bool {
	if len(d.scenario.Agents) == 0 || d.ended || !CanGenerateAgentResponse(d.state) {
		return false
	}
	turn := d.state.TurnIndex
	if d.registry.Has(turn) {
		return false
	}

	agent := SelectAgentToSpeak(d.messages, &d.scenario, d.scenario.Agents, d.strategy)
	if agent == nil {
		return false
	}

	delay := d.delay(d.difficulty)
	entry, ok := d.registry.Add(turn, agent.ID, delay, func(turn int, token uint64) {
		d.post(func() { d.onFire(turn, token) })
	})
	if !ok {
		return false
	}

	band := Band(d.difficulty)
	d.logger.Debug().Int("turn", turn).Str("agent", agent.ID).Dur("delay", delay).Msg("agent reply scheduled")
	d.publish(Event{Type: EventScheduled, Schedule: &ScheduleInfo{
		TurnIndex:  entry.TurnIndex,
		AgentID:    agent.ID,
		AgentName:  agent.DisplayName,
		DelayMs:    delay.Milliseconds(),
		BandMinMs:  band.Min.Milliseconds(),
		BandMaxMs:  band.Max.Milliseconds(),
		Difficulty: string(d.difficulty),
	}})
	return true
}

func (d *Driver) onFire(turn int, token uint64) {
	entry, ok := d.registry.Claim(turn, token)
	if !ok {
		d.logger.Debug().Int("turn", turn).Msg("dropping superseded timer")
		return
	}
	if d.ended || IsStale(turn, d.state) {
		d.registry.Release(turn, token)
		d.logger.Debug().Int("turn", turn).Int("current", d.state.TurnIndex).Msg("dropping stale timer")
		return
	}

	agent, ok := d.scenario.FindAgent(entry.AgentID)
	if !ok {
		d.registry.Release(turn, token)
		return
	}

	req := d.buildRequest(agent)
	go d.generate(turn, token, d.scenario, agent, req)
}

// generate runs off the driver goroutine. sc is the driver's scenario passed by value.
func (d *Driver) generate(turn int, token uint64, sc scenario.Scenario, agent scenario.Agent, req chat.Request) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	if d.advisor != nil && req.UserInput != "" {
		if guidance := d.advisor.Advise(ctx, req.ConversationHistory, req.UserInput); guidance != "" {
			req.CustomSystemPrompt = BuildSystemPrompt(&sc, agent, guidance)
		}
	}

	resp, err := d.responder.Respond(ctx, req)
	d.post(func() { d.onGenerated(turn, token, agent, resp.Response, err) })
}

func (d *Driver) onGenerated(turn int, token uint64, agent scenario.Agent, text string, genErr error) {
	if !d.registry.Release(turn, token) || d.ended || IsStale(turn, d.state) {
		d.logger.Debug().Int("turn", turn).Msg("discarding reply for stale turn")
		return
	}

	text = strings.TrimSpace(text)
	if genErr == nil && text == "" {
		genErr = errors.New("empty response from model")
	}
	if genErr != nil {
		d.logger.Warn().Err(genErr).Int("turn", turn).Str("agent", agent.ID).Msg("agent reply failed")
		d.appendAgentMessage(agent, ErrorReplyPrefix+genErr.Error(), true)
		return
	}
	d.appendAgentMessage(agent, text, false)
}

func (d *Driver) appendAgentMessage(agent scenario.Agent, content string, isError bool) {
	msg := chat.Message{
		ID:          uuid.NewString(),
		SessionID:   d.id,
		SpeakerID:   agent.ID,
		SpeakerName: agent.DisplayName,
		Content:     content,
		IsError:     isError,
		CreatedAt:   d.now().UTC(),
	}
	d.messages = append(d.messages, msg)
	d.state = AdvanceAfterAgentResponse(d.state, agent.ID)

	d.publish(Event{Type: EventMessage, Message: &msg})
	d.publishState()

	if !isError {
		d.speaker.Speak(msg, agent.VoiceHandle)
	}
}

// buildRequest shapes the transcript into the conversational endpoint request: the latest user
// message is the input and everything before it is history.
func (d *Driver) buildRequest(agent scenario.Agent) chat.Request {
	last := -1
	for i := len(d.messages) - 1; i >= 0; i-- {
		if d.messages[i].FromUser() {
			last = i
			break
		}
	}

	req := chat.Request{CustomSystemPrompt: BuildSystemPrompt(&d.scenario, agent, "")}
	if last == -1 {
		req.ConversationHistory = chat.HistoryFromMessages(d.messages)
		return req
	}
	req.UserInput = d.messages[last].Content
	req.ConversationHistory = chat.HistoryFromMessages(d.messages[:last])
	return req
}

func (d *Driver) publish(e Event) {
	e.SessionID = d.id
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}
	d.sink.Publish(e)
}

func (d *Driver) publishState() {
	state := d.state
	d.publish(Event{Type: EventState, State: &state})
}
