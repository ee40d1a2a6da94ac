package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/gateway"
	"github.com/ingelean/inge-go/internal/logger"
	"github.com/ingelean/inge-go/internal/persist"
	"github.com/ingelean/inge-go/internal/store"
)

// FSM States
type FSMState stateless.State

var (
	StateIdle          FSMState = "Idle"
	StateAwaitingReply FSMState = "AwaitingReply"
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerSend     FSMTrigger = "Send"
	TriggerResolved FSMTrigger = "Resolved"
)

// ErrConversationBusy is returned when Send is invoked while a prior
// round-trip for the same session is still in flight. Sends are rejected
// rather than queued; see DESIGN.md.
var ErrConversationBusy = errors.New("a message is already being processed")

// ErrSessionSuperseded is returned when the session was reset while the
// round-trip was in flight, so the reply had no conversation to land in.
var ErrSessionSuperseded = errors.New("the conversation was reset while the message was in flight")

// DefaultTimeout bounds the gateway call when no override is configured.
const DefaultTimeout = 30 * time.Second

// Controller owns the live conversation: it drives the request/response
// cycle to the gateway, maintains metrics, and mirrors every state change
// to local persistence and (best-effort) to the conversation store.
// In-memory state is authoritative; the stores never override it while the
// session is alive.
type Controller struct {
	gateway gateway.Client
	local   persist.Store
	mirror  *store.Mirror
	timeout time.Duration

	fsm *stateless.StateMachine

	// mu guards state mutation; it is not held across the network call so
	// snapshots and toggles stay responsive while a request is in flight.
	mu      sync.Mutex
	conv    chat.Conversation
	loading bool

	// presentation-only flags, not part of the durable model
	panelOpen      bool
	metricsVisible bool
}

// New restores the controller from local persistence when a cached session
// exists, otherwise starts a fresh conversation with the greeting. No
// network call is made.
func New(gw gateway.Client, local persist.Store, mirror *store.Mirror, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mirror == nil {
		mirror = store.NewMirror(nil, 0, 0)
	}
	c := &Controller{
		gateway: gw,
		local:   local,
		mirror:  mirror,
		timeout: timeout,
	}

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).Permit(TriggerSend, StateAwaitingReply)
	fsm.Configure(StateAwaitingReply).Permit(TriggerResolved, StateIdle)
	c.fsm = fsm

	c.conv = c.restore()
	c.persistLocal()
	return c
}

// restore resumes a cached session verbatim, or falls back to a fresh one
// when the cache is absent or malformed.
func (c *Controller) restore() chat.Conversation {
	id, ok, err := c.local.Load(persist.KeyConversationID)
	if err != nil || !ok || id == "" {
		return chat.NewConversation()
	}

	raw, ok, err := c.local.Load(persist.KeyHistory)
	if err != nil || !ok {
		// Known id but no cached transcript: keep the id, start over.
		conv := chat.NewConversation()
		conv.ID = id
		return conv
	}

	var messages []chat.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil || len(messages) == 0 {
		logger.L.Warn("cached transcript unreadable, starting fresh", "error", err)
		return chat.NewConversation()
	}

	metrics := chat.NewMetrics()
	if raw, ok, err := c.local.Load(persist.KeyMetrics); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
			logger.L.Warn("cached metrics unreadable, resetting counters", "error", err)
			metrics = chat.NewMetrics()
		}
	}

	now := time.Now().UTC()
	return chat.Conversation{
		ID:        id,
		Messages:  messages,
		Metrics:   metrics,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Send runs one round-trip: append the user message, relay input plus the
// pre-append transcript to the gateway, append the reply, update metrics.
// Whitespace-only input is a silent no-op. A Send while another is in
// flight returns ErrConversationBusy. Gateway failures surface as a fixed
// error message in the transcript, never as a returned error, and leave
// metrics untouched.
func (c *Controller) Send(ctx context.Context, text string) (chat.Message, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return chat.Message{}, nil
	}

	c.mu.Lock()
	if err := c.fsm.Fire(TriggerSend); err != nil {
		c.mu.Unlock()
		return chat.Message{}, ErrConversationBusy
	}
	c.loading = true

	history := c.conv.Transcript() // pre-append snapshot sent to the gateway
	userMsg := chat.Message{Sender: chat.SenderUser, Text: input}
	c.conv.Append(userMsg)
	userMsg = c.conv.Messages[len(c.conv.Messages)-1]
	convID := c.conv.ID
	c.persistLocal()
	c.mirror.SaveMessage(convID, userMsg)
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	start := time.Now()
	reply, err := c.gateway.Generate(callCtx, input, history)
	duration := float64(time.Since(start)) / float64(time.Millisecond)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.loading = false
		if fireErr := c.fsm.Fire(TriggerResolved); fireErr != nil {
			logger.L.Warn("FSM fire error", "error", fireErr)
		}
	}()

	if c.conv.ID != convID {
		logger.L.Warn("dropping reply for superseded conversation", "conversation", convID)
		return chat.Message{}, ErrSessionSuperseded
	}

	var botMsg chat.Message
	if err != nil {
		logger.L.Error("gateway call failed", "conversation", convID, "error", err)
		botMsg = chat.Message{Sender: chat.SenderBot, Text: chat.ConnectionErrorReply}
		c.conv.Append(botMsg)
	} else {
		if reply == "" {
			reply = chat.FallbackReply
		}
		botMsg = chat.Message{Sender: chat.SenderBot, Text: reply}
		c.conv.Append(botMsg)
		// A measured round-trip counts even when the reply field was
		// missing; only transport failures skip the statistics.
		c.conv.Metrics.Record(duration)
	}
	botMsg = c.conv.Messages[len(c.conv.Messages)-1]

	c.persistLocal()
	c.mirror.SaveMessage(convID, botMsg)
	if err == nil {
		c.mirror.UpsertMetrics(convID, c.conv.Metrics, c.conv.UpdatedAt)
	}
	return botMsg, nil
}

// Reset archives the current session and starts a fresh one with the
// greeting and zeroed metrics. It never fails; archival writes are
// fire-and-forget.
func (c *Controller) Reset() chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.conv.Snapshot()
	c.archiveLocal(snapshot)
	c.mirror.SaveArchive(snapshot)

	c.conv = chat.NewConversation()
	if err := c.local.Delete(persist.KeyHistory); err != nil {
		logger.L.Warn("failed to clear cached transcript", "error", err)
	}
	if err := c.local.Delete(persist.KeyMetrics); err != nil {
		logger.L.Warn("failed to clear cached metrics", "error", err)
	}
	c.persistLocal()
	return c.conv
}

// archiveLocal appends the snapshot to the local archive list.
func (c *Controller) archiveLocal(snapshot chat.Archive) {
	var archives []chat.Archive
	if raw, ok, err := c.local.Load(persist.KeyArchives); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &archives); err != nil {
			logger.L.Warn("archive list unreadable, starting a new one", "error", err)
			archives = nil
		}
	}
	archives = append(archives, snapshot)
	blob, err := json.Marshal(archives)
	if err != nil {
		logger.L.Error("failed to encode archive list", "error", err)
		return
	}
	if err := c.local.Save(persist.KeyArchives, string(blob)); err != nil {
		logger.L.Warn("failed to persist archive list", "error", err)
	}
}

// persistLocal mirrors the full session to local persistence. Failures are
// logged only; durability is best-effort and never rolls back the
// transcript.
func (c *Controller) persistLocal() {
	if err := c.local.Save(persist.KeyConversationID, c.conv.ID); err != nil {
		logger.L.Warn("failed to persist conversation id", "error", err)
	}
	if blob, err := json.Marshal(c.conv.Messages); err == nil {
		if err := c.local.Save(persist.KeyHistory, string(blob)); err != nil {
			logger.L.Warn("failed to persist transcript", "error", err)
		}
	}
	if blob, err := json.Marshal(c.conv.Metrics); err == nil {
		if err := c.local.Save(persist.KeyMetrics, string(blob)); err != nil {
			logger.L.Warn("failed to persist metrics", "error", err)
		}
	}
}

// Snapshot returns a copy of the live session.
func (c *Controller) Snapshot() chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.conv
	conv.Messages = c.conv.Transcript()
	return conv
}

// Metrics returns the current counters.
func (c *Controller) Metrics() chat.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Metrics
}

// Loading reports whether a round-trip is in flight. Advisory only.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// TogglePanel flips the widget panel visibility flag.
func (c *Controller) TogglePanel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panelOpen = !c.panelOpen
	return c.panelOpen
}

// ToggleMetrics flips the metrics panel visibility flag.
func (c *Controller) ToggleMetrics() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricsVisible = !c.metricsVisible
	return c.metricsVisible
}
