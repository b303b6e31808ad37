package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/handler"
	"github.com/BTreeMap/SafeBirth/internal/matching"
	"github.com/BTreeMap/SafeBirth/internal/messaging"
	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/relay"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRouter returns a fixed result and records what it was given.
type stubRouter struct {
	mu     sync.Mutex
	result messaging.Result
	calls  []string
}

func (s *stubRouter) Route(ctx context.Context, from, body, messageID string) messaging.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, from+"|"+body+"|"+messageID)
	return s.result
}

func postForm(t *testing.T, h http.Handler, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, PathIncoming, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIncoming_RepliesWithTwiML(t *testing.T) {
	router := &stubRouter{result: messaging.Result{Reply: "✅ Registered!"}}
	srv := NewServer(router, nil)

	rr := postForm(t, srv.Handler(), url.Values{"From": {"+970599000001"}, "To": {"+15005550006"}, "Body": {"REG MOTHER"}, "MessageSid": {"SM1"}}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, rr.Body.String(), "<Response>")
	assert.Contains(t, rr.Body.String(), "Registered!")
	require.Len(t, router.calls, 1)
	assert.Equal(t, "+970599000001|REG MOTHER|SM1", router.calls[0])
}

func TestIncoming_FailureIsBilingualApology(t *testing.T) {
	router := &stubRouter{result: messaging.Result{Reply: "❌ An error occurred. Please try again.", Failed: true}}
	srv := NewServer(router, nil)

	rr := postForm(t, srv.Handler(), url.Values{"From": {"+970599000001"}, "Body": {"EMERGENCY"}}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Message>")
	assert.Contains(t, rr.Body.String(), "حدث خطأ")
	assert.Contains(t, rr.Body.String(), "An error occurred")
}

func TestIncoming_MissingFrom(t *testing.T) {
	router := &stubRouter{}
	srv := NewServer(router, nil)

	rr := postForm(t, srv.Handler(), url.Values{"Body": {"EMERGENCY"}}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "حدث خطأ")
	assert.Empty(t, router.calls)
}

func TestIncoming_DuplicateSendsNothing(t *testing.T) {
	srv := NewServer(&stubRouter{result: messaging.Result{Duplicate: true}}, nil)

	rr := postForm(t, srv.Handler(), url.Values{"From": {"+970599000001"}, "Body": {"EMERGENCY"}, "MessageSid": {"SM1"}}, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "<Message")
}

func twilioSignature(token, u string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(u)
	for _, k := range keys {
		b.WriteString(k + form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestIncoming_SignatureValidation(t *testing.T) {
	const webhookURL = "https://safebirth.example.org/api/sms/incoming"
	router := &stubRouter{result: messaging.Result{Reply: "ok"}}
	srv := NewServer(router, nil, WithTwilioSignature("secret", webhookURL))
	form := url.Values{"From": {"+970599000001"}, "Body": {"STATUS"}, "MessageSid": {"SM9"}}

	rr := postForm(t, srv.Handler(), form, http.Header{"X-Twilio-Signature": {"bogus"}})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, router.calls)

	rr = postForm(t, srv.Handler(), form, http.Header{"X-Twilio-Signature": {twilioSignature("secret", webhookURL, form)}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, router.calls, 1)
}

func TestSimulate_Validation(t *testing.T) {
	srv := NewServer(&stubRouter{}, nil)

	req := httptest.NewRequest(http.MethodPost, PathSimulate, strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
	testutil.AssertJSONResponse(t, rr, "error")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, PathSimulate, map[string]string{"message": "EMERGENCY"})
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing from")
}

func TestHealth_WithoutRelay(t *testing.T) {
	srv := NewServer(&stubRouter{}, nil, WithMode(ModeTwilio))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, PathHealth, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, ModeTwilio, health.Mode)
	assert.Zero(t, health.RelaySessions)
	_, err := time.Parse(time.RFC3339, health.Timestamp)
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(&stubRouter{}, nil)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, PathHealth, nil))

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, PathMetrics, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "safebirth_http_requests_total")
}

// stack wires the real command pipeline behind the API with an in-memory store.
type stack struct {
	store  *store.InMemoryStore
	hub    *relay.Hub
	server *Server
	http   *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := store.NewInMemoryStore()
	states := flow.NewStateStore()
	outbound := messaging.NewMockService()

	engine := matching.NewEngine(st, st, notify.NewDispatcher(outbound))
	h := handler.New(st, engine, outbound, handler.WithStateStore(states))
	conv := flow.NewConversationService(states, h, st)
	router := messaging.NewRouter(h, conv, messaging.WithDedup(st))

	hub := relay.NewHub(router.HandleInbound)
	srv := NewServer(router, hub, WithMode(ModeRelay))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &stack{store: st, hub: hub, server: srv, http: ts}
}

func (s *stack) simulate(t *testing.T, from, message string) SimulateResponse {
	t.Helper()
	body, _ := json.Marshal(SimulateRequest{From: from, Message: message})
	resp, err := http.Post(s.http.URL+PathSimulate, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out SimulateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSimulate_EndToEnd(t *testing.T) {
	s := newStack(t)
	testutil.SeedVolunteers(t, s.store)

	reg := s.simulate(t, testutil.MotherPhone, "REG MOTHER CAMP Jabalia ZONE A RISK HIGH")
	assert.Equal(t, models.CommandRegisterMother, reg.CommandType)
	assert.Equal(t, models.LanguageEnglish, reg.DetectedLanguage)
	assert.True(t, reg.Success)
	assert.Contains(t, reg.ResponseMessage, "Registered!")
	assert.Equal(t, "A", reg.ParsedParameters[models.ParamZone])

	em := s.simulate(t, testutil.MotherPhone, "EMERGENCY")
	assert.Equal(t, models.CommandEmergency, em.CommandType)
	assert.Contains(t, em.ResponseMessage, "2 volunteer(s) have been alerted")

	ar := s.simulate(t, testutil.UnknownPhone, "حالة")
	assert.Equal(t, models.CommandStatus, ar.CommandType)
	assert.Equal(t, models.LanguageArabic, ar.DetectedLanguage)
}

func TestWebhook_JSON(t *testing.T) {
	s := newStack(t)
	body := `{"from":"+970599000001","body":"COMMANDS","messageId":"gw-1"}`

	resp, err := http.Post(s.http.URL+PathWebhook, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out WebhookResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "+970599000001", out.To)
	assert.Contains(t, out.Message, "SafeBirth")
}

func TestRelayEndpoint(t *testing.T) {
	s := newStack(t)
	wsURL := "ws" + strings.TrimPrefix(s.http.URL, "http") + PathRelayWS

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": relay.TypePing}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, relay.TypePong, pong["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": relay.TypeIncomingSMS, "sender": testutil.UnknownPhone, "message": "STATUS", "timestamp": 1700000000000,
	}))
	var reply relay.SendSMS
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, relay.TypeSendSMS, reply.Type)
	assert.Equal(t, []string{testutil.UnknownPhone}, reply.Recipients)
	assert.Contains(t, reply.Message, "not registered")

	resp, err := http.Get(s.http.URL + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, 1, health.RelaySessions)
	assert.Equal(t, 1, health.PendingRelayRequests)
	assert.Equal(t, ModeRelay, health.Mode)
}

func TestRelayURL(t *testing.T) {
	got, err := RelayURL("https://safebirth.example.org/")
	require.NoError(t, err)
	assert.Equal(t, "wss://safebirth.example.org/ws/sms-gateway", got)

	got, err = RelayURL("http://10.0.0.5:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5:8080/ws/sms-gateway", got)

	_, err = RelayURL("ftp://example.org")
	assert.Error(t, err)
	_, err = RelayURL("https://")
	assert.Error(t, err)
}

func TestPrintRelayQR(t *testing.T) {
	var b strings.Builder
	got, err := PrintRelayQR(&b, "https://safebirth.example.org")
	require.NoError(t, err)
	assert.Equal(t, "wss://safebirth.example.org/ws/sms-gateway", got)
	assert.Contains(t, b.String(), got)
	assert.Greater(t, strings.Count(b.String(), "\n"), 5)
}
