package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/persist"
	"github.com/ingelean/inge-go/internal/store"
)

// mockGateway scripts gateway replies; each call consumes the next
// configured response.
type mockGateway struct {
	mu      sync.Mutex
	calls   int
	history [][]chat.Message
	replies []string
	err     error
	block   chan struct{} // when set, Generate waits until the channel closes
}

func (m *mockGateway) Generate(ctx context.Context, input string, history []chat.Message) (string, error) {
	m.mu.Lock()
	m.calls++
	m.history = append(m.history, history)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return "ok", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingStore captures mirror writes.
type recordingStore struct {
	mu       sync.Mutex
	messages []chat.Message
	metrics  []chat.Metrics
	archives []chat.Archive
}

func (r *recordingStore) SaveMessage(_ context.Context, _ string, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingStore) UpsertMetrics(_ context.Context, _ string, m chat.Metrics, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	return nil
}

func (r *recordingStore) SaveArchive(_ context.Context, a chat.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives = append(r.archives, a)
	return nil
}

func (r *recordingStore) ListConversations(_ context.Context) ([]store.ConversationRecord, error) {
	return nil, nil
}

func (r *recordingStore) Close() error { return nil }

func newController(gw *mockGateway) (*Controller, *persist.MemoryStore) {
	local := persist.NewMemoryStore()
	return New(gw, local, nil, time.Second), local
}

func TestSendAppendsUserAndBotMessages(t *testing.T) {
	gw := &mockGateway{replies: []string{"sure, happy to help"}}
	ctrl, _ := newController(gw)

	reply, err := ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, chat.SenderBot, reply.Sender)
	require.Equal(t, "sure, happy to help", reply.Text)

	conv := ctrl.Snapshot()
	require.Len(t, conv.Messages, 3)
	require.Equal(t, chat.Greeting, conv.Messages[0].Text)
	require.Equal(t, chat.SenderUser, conv.Messages[1].Sender)
	require.Equal(t, "hello", conv.Messages[1].Text)
	require.Equal(t, chat.SenderBot, conv.Messages[2].Sender)

	m := ctrl.Metrics()
	require.Equal(t, uint64(1), m.TotalUserMessages)
	require.Equal(t, uint64(2), m.TotalBotMessages)
	require.False(t, ctrl.Loading())
}

func TestSendTrimsInputAndSendsPreAppendHistory(t *testing.T) {
	gw := &mockGateway{replies: []string{"a", "b"}}
	ctrl, _ := newController(gw)

	_, err := ctrl.Send(context.Background(), "  first  ")
	require.NoError(t, err)
	_, err = ctrl.Send(context.Background(), "second")
	require.NoError(t, err)

	// First call: history is the greeting only; the new input travels in
	// its own field.
	require.Len(t, gw.history[0], 1)
	require.Equal(t, chat.Greeting, gw.history[0][0].Text)

	// Second call: greeting, user "first", bot "a".
	require.Len(t, gw.history[1], 3)
	require.Equal(t, "first", gw.history[1][1].Text)
	require.Equal(t, "a", gw.history[1][2].Text)
}

func TestSendWhitespaceIsNoOp(t *testing.T) {
	gw := &mockGateway{}
	ctrl, _ := newController(gw)

	reply, err := ctrl.Send(context.Background(), "   ")
	require.NoError(t, err)
	require.Equal(t, chat.Message{}, reply)
	require.Equal(t, 0, gw.callCount())
	require.Len(t, ctrl.Snapshot().Messages, 1)
	require.False(t, ctrl.Loading())
}

func TestSendTransportFailureLeavesMetricsUnchanged(t *testing.T) {
	gw := &mockGateway{err: errors.New("connection refused")}
	ctrl, _ := newController(gw)

	before := ctrl.Metrics()
	reply, err := ctrl.Send(context.Background(), "hello?")
	require.NoError(t, err)
	require.Equal(t, chat.ConnectionErrorReply, reply.Text)

	conv := ctrl.Snapshot()
	require.Len(t, conv.Messages, 3)
	require.Equal(t, chat.ConnectionErrorReply, conv.Messages[2].Text)
	require.Equal(t, before, ctrl.Metrics())
	require.False(t, ctrl.Loading())
}

func TestSendEmptyReplyUsesFallbackAndCountsRoundTrip(t *testing.T) {
	gw := &mockGateway{replies: []string{""}}
	ctrl, _ := newController(gw)

	reply, err := ctrl.Send(context.Background(), "anyone there?")
	require.NoError(t, err)
	require.Equal(t, chat.FallbackReply, reply.Text)

	// Missing reply field still counts as a measured round-trip.
	m := ctrl.Metrics()
	require.Equal(t, uint64(1), m.TotalUserMessages)
	require.Equal(t, uint64(2), m.TotalBotMessages)
}

func TestSendRejectsConcurrentCall(t *testing.T) {
	block := make(chan struct{})
	gw := &mockGateway{replies: []string{"late"}, block: block}
	ctrl, _ := newController(gw)

	firstErr := make(chan error, 1)
	go func() {
		_, err := ctrl.Send(context.Background(), "first")
		firstErr <- err
	}()

	require.Eventually(t, ctrl.Loading, time.Second, time.Millisecond)

	_, err := ctrl.Send(context.Background(), "second")
	require.ErrorIs(t, err, ErrConversationBusy)

	close(block)
	require.NoError(t, <-firstErr)
	require.False(t, ctrl.Loading())
	require.Equal(t, 1, gw.callCount())
}

func TestResetThenSend(t *testing.T) {
	gw := &mockGateway{replies: []string{"warmup", "fresh reply"}}
	ctrl, _ := newController(gw)

	_, err := ctrl.Send(context.Background(), "warm up")
	require.NoError(t, err)
	oldID := ctrl.Snapshot().ID

	conv := ctrl.Reset()
	require.NotEqual(t, oldID, conv.ID)

	_, err = ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)

	got := ctrl.Snapshot()
	require.Len(t, got.Messages, 3)
	require.Equal(t, chat.Greeting, got.Messages[0].Text)
	require.Equal(t, "hi", got.Messages[1].Text)
	require.Equal(t, "fresh reply", got.Messages[2].Text)

	m := ctrl.Metrics()
	require.Equal(t, uint64(1), m.TotalUserMessages)
	require.Equal(t, uint64(2), m.TotalBotMessages)
}

func TestResetArchivesPreviousSession(t *testing.T) {
	gw := &mockGateway{replies: []string{"bye"}}
	ctrl, local := newController(gw)

	_, err := ctrl.Send(context.Background(), "archive me")
	require.NoError(t, err)
	oldID := ctrl.Snapshot().ID

	ctrl.Reset()

	raw, ok, err := local.Load(persist.KeyArchives)
	require.NoError(t, err)
	require.True(t, ok)

	var archives []chat.Archive
	require.NoError(t, json.Unmarshal([]byte(raw), &archives))
	require.Len(t, archives, 1)
	require.Equal(t, oldID, archives[0].ID)
	require.Len(t, archives[0].Messages, 3)
	require.Equal(t, uint64(1), archives[0].Metrics.TotalUserMessages)
}

func TestRestoreResumesCachedSession(t *testing.T) {
	local := persist.NewMemoryStore()

	messages := []chat.Message{
		{Sender: chat.SenderBot, Text: chat.Greeting},
		{Sender: chat.SenderUser, Text: "one"},
		{Sender: chat.SenderBot, Text: "two"},
		{Sender: chat.SenderUser, Text: "three"},
		{Sender: chat.SenderBot, Text: "four"},
	}
	metrics := chat.Metrics{
		TotalUserMessages:   2,
		TotalBotMessages:    3,
		LastResponseTime:    150,
		AverageResponseTime: 90,
	}

	msgBlob, err := json.Marshal(messages)
	require.NoError(t, err)
	metricsBlob, err := json.Marshal(metrics)
	require.NoError(t, err)
	require.NoError(t, local.Save(persist.KeyConversationID, "cached-id"))
	require.NoError(t, local.Save(persist.KeyHistory, string(msgBlob)))
	require.NoError(t, local.Save(persist.KeyMetrics, string(metricsBlob)))

	gw := &mockGateway{}
	ctrl := New(gw, local, nil, time.Second)

	conv := ctrl.Snapshot()
	require.Equal(t, "cached-id", conv.ID)
	require.Len(t, conv.Messages, 5)
	require.Equal(t, "three", conv.Messages[3].Text)
	require.Equal(t, metrics, conv.Metrics)
	require.Equal(t, 0, gw.callCount(), "restore must not hit the network")
}

func TestRestoreCorruptCacheStartsFresh(t *testing.T) {
	local := persist.NewMemoryStore()
	require.NoError(t, local.Save(persist.KeyConversationID, "cached-id"))
	require.NoError(t, local.Save(persist.KeyHistory, "{not json"))

	ctrl := New(&mockGateway{}, local, nil, time.Second)

	conv := ctrl.Snapshot()
	require.NotEqual(t, "cached-id", conv.ID)
	require.Len(t, conv.Messages, 1)
	require.Equal(t, chat.Greeting, conv.Messages[0].Text)
	require.Equal(t, chat.NewMetrics(), conv.Metrics)
}

func TestSendMirrorsMessagesAndMetrics(t *testing.T) {
	rec := &recordingStore{}
	mirror := store.NewMirror(rec, 16, time.Second)
	local := persist.NewMemoryStore()
	gw := &mockGateway{replies: []string{"mirrored"}}
	ctrl := New(gw, local, mirror, time.Second)

	_, err := ctrl.Send(context.Background(), "persist me")
	require.NoError(t, err)
	mirror.Close()

	require.Len(t, rec.messages, 2)
	require.Equal(t, chat.SenderUser, rec.messages[0].Sender)
	require.Equal(t, chat.SenderBot, rec.messages[1].Sender)
	require.Len(t, rec.metrics, 1)
	require.Equal(t, uint64(2), rec.metrics[0].TotalBotMessages)
}

func TestResetDuringFlightSupersedesReply(t *testing.T) {
	block := make(chan struct{})
	gw := &mockGateway{replies: []string{"late reply"}, block: block}
	ctrl, _ := newController(gw)

	result := make(chan error, 1)
	go func() {
		_, err := ctrl.Send(context.Background(), "about to be orphaned")
		result <- err
	}()

	require.Eventually(t, ctrl.Loading, time.Second, time.Millisecond)
	fresh := ctrl.Reset()

	close(block)
	require.ErrorIs(t, <-result, ErrSessionSuperseded)

	// The late reply must not leak into the fresh session.
	conv := ctrl.Snapshot()
	require.Equal(t, fresh.ID, conv.ID)
	require.Len(t, conv.Messages, 1)
	require.Equal(t, chat.Greeting, conv.Messages[0].Text)
	require.Equal(t, chat.NewMetrics(), conv.Metrics)
	require.False(t, ctrl.Loading())
}

func TestSendGatewayTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	gw := &mockGateway{block: block}
	ctrl := New(gw, persist.NewMemoryStore(), nil, 20*time.Millisecond)

	before := ctrl.Metrics()
	reply, err := ctrl.Send(context.Background(), "slow")
	require.NoError(t, err)
	require.Equal(t, chat.ConnectionErrorReply, reply.Text)
	require.Equal(t, before, ctrl.Metrics())
}
