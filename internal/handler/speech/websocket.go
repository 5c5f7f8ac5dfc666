package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	speechsvc "github.com/zhouzirui/z-practice/backend/internal/service/speech"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Inbound frame types.
const (
	frameTranscript   = "transcript"
	frameText         = "text"
	frameCapabilities = "capabilities"
	frameSpoken       = "spoken"
)

// Outbound frame types.
const (
	frameConnected = "connected"
	frameEvent     = "event"
	frameSpeak     = "speak"
	frameStop      = "stop"
	frameError     = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TranscriptMessage 浏览器语音识别片段
type TranscriptMessage struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// TextMessage 文本输入
type TextMessage struct {
	Text string `json:"text"`
}

// SpokenMessage 浏览器播放完成的确认
type SpokenMessage struct {
	MessageID string `json:"messageId"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connection is one browser tab bound to a session. It doubles as the session's synthesizer: a
// speak frame is sent and playback counts as finished once the browser acknowledges it.
type connection struct {
	sessionID    string
	conn         *websocket.Conn
	speakTimeout time.Duration
	logger       zerolog.Logger

	writeMu sync.Mutex

	ackMu sync.Mutex
	acks  map[string]chan struct{}
}

func newConnection(sessionID string, conn *websocket.Conn, speakTimeout time.Duration) *connection {
	return &connection{
		sessionID:    sessionID,
		conn:         conn,
		speakTimeout: speakTimeout,
		logger:       log.With().Str("component", "websocket").Str("session", sessionID).Logger(),
		acks:         make(map[string]chan struct{}),
	}
}

func (c *connection) send(frameType string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      frameType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *connection) sendError(message string) {
	if err := c.send(frameError, map[string]string{"message": message}); err != nil {
		c.logger.Debug().Err(err).Msg("write error frame failed")
	}
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Synthesize implements speech.Synthesizer.
func (c *connection) Synthesize(ctx context.Context, u speechsvc.Utterance) error {
	ack := make(chan struct{})
	c.ackMu.Lock()
	c.acks[u.MessageID] = ack
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.acks, u.MessageID)
		c.ackMu.Unlock()
	}()

	if err := c.send(frameSpeak, u); err != nil {
		return err
	}

	timer := time.NewTimer(c.speakTimeout)
	defer timer.Stop()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		// 打断浏览器正在播放的语音
		_ = c.send(frameStop, SpokenMessage{MessageID: u.MessageID})
		return ctx.Err()
	case <-timer.C:
		return speechsvc.ErrPlaybackTimeout
	}
}

func (c *connection) acknowledge(messageID string) bool {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	ack, ok := c.acks[messageID]
	if !ok {
		return false
	}
	close(ack)
	delete(c.acks, messageID)
	return true
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	events, unsubscribe, err := h.sessions.Subscribe(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	defer unsubscribe()

	playback, err := h.sessions.Playback(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Str("session", sessionID).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	c := newConnection(sessionID, conn, h.opts.SpeakTimeout)
	c.logger.Info().Msg("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	debouncer := speechsvc.NewDebouncer(h.opts.SilenceWindow, h.opts.AfterFunc, func(utterance string) {
		h.submit(ctx, c, utterance)
	})
	defer debouncer.Reset()

	playback.Attach(c)
	defer playback.Detach(c)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)
	go h.forwardEvents(ctx, cancel, c, events)

	if err := c.send(frameConnected, map[string]any{
		"silenceWindowMs": h.opts.SilenceWindow.Milliseconds(),
	}); err != nil {
		return
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			c.logger.Info().Msg("client disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}
		h.handleMessage(ctx, c, debouncer, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, debouncer *speechsvc.Debouncer, msg *inboundMessage) {
	switch msg.Type {
	case frameTranscript:
		var fragment TranscriptMessage
		if err := json.Unmarshal(msg.Data, &fragment); err != nil {
			c.sendError("invalid transcript payload")
			return
		}
		debouncer.Push(fragment.Text, fragment.IsFinal)
	case frameText:
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		// 未提交的语音先落地，保持消息顺序
		debouncer.Flush()
		h.submit(ctx, c, text.Text)
	case frameCapabilities:
		var caps speechsvc.Capabilities
		if err := json.Unmarshal(msg.Data, &caps); err != nil {
			c.sendError("invalid capabilities payload")
			return
		}
		h.applyCapabilities(ctx, c, caps)
	case frameSpoken:
		var spoken SpokenMessage
		if err := json.Unmarshal(msg.Data, &spoken); err != nil {
			c.sendError("invalid spoken payload")
			return
		}
		if !c.acknowledge(spoken.MessageID) {
			c.logger.Debug().Str("message", spoken.MessageID).Msg("ack for message not playing")
		}
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) submit(ctx context.Context, c *connection, text string) {
	if _, err := h.sessions.SubmitMessage(ctx, c.sessionID, text); err != nil {
		if errors.Is(err, conversation.ErrEmptyMessage) {
			return
		}
		c.sendError(err.Error())
	}
}

func (h *Handler) applyCapabilities(ctx context.Context, c *connection, caps speechsvc.Capabilities) {
	if caps.RecognitionUnavailable() {
		if err := h.sessions.Notify(ctx, c.sessionID, speechsvc.RecognitionUnavailableNotice); err != nil {
			c.logger.Debug().Err(err).Msg("notice not delivered")
		}
	}
	if caps.SynthesisUnavailable() {
		if playback, err := h.sessions.Playback(c.sessionID); err == nil {
			playback.Detach(c)
		}
	}
}

// forwardEvents relays driver events until the session ends or the client leaves.
func (h *Handler) forwardEvents(ctx context.Context, cancel context.CancelFunc, c *connection, events <-chan conversation.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.writeMu.Lock()
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(writeTimeout))
				c.writeMu.Unlock()
				cancel()
				_ = c.conn.Close()
				return
			}
			if err := c.send(frameEvent, ev); err != nil {
				c.logger.Debug().Err(err).Msg("write event failed")
				cancel()
				return
			}
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
