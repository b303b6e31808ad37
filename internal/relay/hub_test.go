package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inboundCall struct {
	sender, message, messageID string
}

type recorder struct {
	mu    sync.Mutex
	calls []inboundCall
	reply string
}

func (r *recorder) handle(ctx context.Context, sender, message, messageID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inboundCall{sender, message, messageID})
	return r.reply
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func startHub(t *testing.T, rec *recorder, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(rec.handle, opts...)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	before := hub.SessionCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.SessionCount() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestSendWithoutSessionRecordsNothing(t *testing.T) {
	hub := NewHub((&recorder{}).handle)
	defer hub.Close()

	id, ok := hub.Send([]string{"+970599000001"}, "hello")
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Empty(t, hub.Pending())
	assert.True(t, errors.Is(ErrNoSession, models.ErrNoTransport))
}

func TestSendFansOutAndConfirmationClearsPending(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	a := dial(t, hub, srv)
	b := dial(t, hub, srv)

	id, ok := hub.Send([]string{"+970599000001", "+970599000002"}, "🚨 EMERGENCY Zone 3")
	require.True(t, ok)
	assert.Regexp(t, `^WS-[0-9a-f]{8}$`, id)
	require.Len(t, hub.Pending(), 1)

	for _, conn := range []*websocket.Conn{a, b} {
		var cmd SendSMS
		readJSON(t, conn, &cmd)
		assert.Equal(t, TypeSendSMS, cmd.Type)
		assert.Equal(t, id, cmd.RequestID)
		assert.Equal(t, []string{"+970599000001", "+970599000002"}, cmd.Recipients)
		assert.Equal(t, "🚨 EMERGENCY Zone 3", cmd.Message)
	}

	require.NoError(t, a.WriteJSON(SMSSent{Type: TypeSMSSent, RequestID: id, SuccessCount: 2}))
	require.Eventually(t, func() bool { return len(hub.Pending()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownConfirmationIsNoOp(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	conn := dial(t, hub, srv)

	id, ok := hub.Send([]string{"+970599000001"}, "x")
	require.True(t, ok)
	var cmd SendSMS
	readJSON(t, conn, &cmd)

	require.NoError(t, conn.WriteJSON(SMSSent{Type: TypeSMSSent, RequestID: "WS-deadbeef", SuccessCount: 1}))
	// A ping round-trip proves the confirmation was processed before asserting.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypePing}))
	var pong Pong
	readJSON(t, conn, &pong)

	pending := hub.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].RequestID)
}

func TestIncomingSMSReplyGoesToSameSession(t *testing.T) {
	rec := &recorder{reply: "✅ Registered!"}
	hub, srv := startHub(t, rec)
	conn := dial(t, hub, srv)

	require.NoError(t, conn.WriteJSON(IncomingSMS{Type: TypeIncomingSMS, Sender: "+970599000001", Message: "HELP", Timestamp: 1706554800000}))

	var cmd SendSMS
	readJSON(t, conn, &cmd)
	assert.Equal(t, TypeSendSMS, cmd.Type)
	assert.Equal(t, []string{"+970599000001"}, cmd.Recipients)
	assert.Equal(t, "✅ Registered!", cmd.Message)
	assert.Len(t, hub.Pending(), 1)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "+970599000001:1706554800000", rec.calls[0].messageID)
}

func TestPingPong(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	conn := dial(t, hub, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	var pong Pong
	readJSON(t, conn, &pong)
	assert.Equal(t, TypePong, pong.Type)
}

func TestMalformedMessagesKeepConnectionOpen(t *testing.T) {
	rec := &recorder{}
	hub, srv := startHub(t, rec)
	conn := dial(t, hub, srv)

	for _, frame := range []string{
		`not json`,
		`{"message":"no type"}`,
		`{"type":"incoming_sms","message":"missing sender"}`,
		`{"type":"sms_sent","success_count":1}`,
		`{"type":"reboot"}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	var pong Pong
	readJSON(t, conn, &pong)
	assert.Equal(t, TypePong, pong.Type)
	assert.Equal(t, 1, hub.SessionCount())
	assert.Equal(t, 0, rec.count())
}

func TestDisconnectRemovesOnlyThatSession(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	a := dial(t, hub, srv)
	_ = dial(t, hub, srv)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, ok := hub.Send([]string{"+1"}, "still connected")
	assert.True(t, ok)
}

func TestStalePending(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	hub, srv := startHub(t, &recorder{}, WithClock(clock))
	dial(t, hub, srv)

	old, ok := hub.Send([]string{"+1"}, "old")
	require.True(t, ok)
	now = now.Add(15 * time.Minute)
	fresh, ok := hub.Send([]string{"+2"}, "fresh")
	require.True(t, ok)

	stale := hub.StalePending(10 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, old, stale[0].RequestID)

	all := hub.Pending()
	require.Len(t, all, 2)
	assert.Equal(t, fresh, all[1].RequestID)
}

func TestEffectiveStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, SMSSent{SuccessCount: 2}.EffectiveStatus())
	assert.Equal(t, StatusFailed, SMSSent{FailureCount: 2}.EffectiveStatus())
	assert.Equal(t, StatusPartial, SMSSent{SuccessCount: 1, FailureCount: 1}.EffectiveStatus())
	assert.Equal(t, StatusFailed, SMSSent{Status: "FAILED", SuccessCount: 1}.EffectiveStatus())
}

func TestProtocolWireFormat(t *testing.T) {
	data, err := json.Marshal(SendSMS{Type: TypeSendSMS, RequestID: "WS-12345678", Recipients: []string{"+1"}, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send_sms","request_id":"WS-12345678","recipients":["+1"],"message":"m"}`, string(data))

	var in IncomingSMS
	require.NoError(t, json.Unmarshal([]byte(`{"type":"incoming_sms","sender":"+249123456789","message":"HELP"}`), &in))
	assert.Empty(t, in.MessageID())
}

func TestCloseRejectsNewSessions(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	conn := dial(t, hub, srv)
	hub.Close()

	assert.Equal(t, 0, hub.SessionCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, 503, resp.StatusCode)
	}
}

func TestSendDuringAndAfterClose(t *testing.T) {
	hub, srv := startHub(t, &recorder{})
	dial(t, hub, srv)
	dial(t, hub, srv)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Send([]string{"+970599000001"}, "hello")
			}
		}()
	}

	closed := make(chan struct{})
	go func() {
		hub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while sends were in flight")
	}
	wg.Wait()

	id, ok := hub.Send([]string{"+970599000001"}, "late")
	assert.False(t, ok)
	assert.Empty(t, id)
}
