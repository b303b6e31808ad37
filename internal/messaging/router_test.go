package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/store"
)

type recordingExecutor struct {
	name     string
	mu       sync.Mutex
	calls    []models.ParsedCommand
	err      error
	delay    time.Duration
	inflight int32
	maxSeen  int32
}

func (e *recordingExecutor) run(cmd models.ParsedCommand) (string, error) {
	n := atomic.AddInt32(&e.inflight, 1)
	defer atomic.AddInt32(&e.inflight, -1)
	for {
		m := atomic.LoadInt32(&e.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&e.maxSeen, m, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.mu.Lock()
	e.calls = append(e.calls, cmd)
	e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return e.name + ":" + string(cmd.Type), nil
}

func (e *recordingExecutor) Execute(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	return e.run(cmd)
}

func (e *recordingExecutor) Handle(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	return e.run(cmd)
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func newTestRouter(opts ...RouterOption) (*Router, *recordingExecutor, *recordingExecutor) {
	h := &recordingExecutor{name: "handler"}
	c := &recordingExecutor{name: "conversation"}
	return NewRouter(h, c, opts...), h, c
}

func TestRouter_ClassifiesEveryCommandType(t *testing.T) {
	r, h, c := newTestRouter()
	for _, ct := range models.AllCommandTypes {
		matching, known := ct.RequiresMatching()
		if !known {
			t.Fatalf("command type %q is not classified", ct)
		}
		_, route, err := r.dispatch(context.Background(), models.ParsedCommand{Type: ct, Phone: "+970599000001"})
		if err != nil {
			t.Fatalf("dispatch(%q) returned error: %v", ct, err)
		}
		want := "conversation"
		if matching {
			want = "handler"
		}
		if route != want {
			t.Errorf("dispatch(%q) routed to %s, want %s", ct, route, want)
		}
	}
	if h.count()+c.count() != len(models.AllCommandTypes) {
		t.Errorf("expected every command dispatched once")
	}
	if _, _, err := r.dispatch(context.Background(), models.ParsedCommand{Type: "BOGUS"}); err == nil {
		t.Error("expected error for unclassified command type")
	}
}

func TestRouter_RoutesByCommand(t *testing.T) {
	r, h, c := newTestRouter()
	ctx := context.Background()

	res := r.Route(ctx, "+970599000001", "EMERGENCY", "")
	if res.Command.Type != models.CommandEmergency || res.Reply != "handler:EMERGENCY" {
		t.Errorf("unexpected result: %+v", res)
	}
	res = r.Route(ctx, "+970599000001", "AVAILABLE", "")
	if res.Command.Type != models.CommandAvailable || res.Reply != "conversation:AVAILABLE" {
		t.Errorf("unexpected result: %+v", res)
	}
	if h.count() != 1 || c.count() != 1 {
		t.Errorf("expected one call each, got handler=%d conversation=%d", h.count(), c.count())
	}
	if res.Command.Phone != "+970599000001" {
		t.Errorf("expected canonical phone on command, got %q", res.Command.Phone)
	}
}

func TestRouter_ErrorBecomesApology(t *testing.T) {
	r, h, _ := newTestRouter()
	h.err = errors.New("database down")

	res := r.Route(context.Background(), "+970599000001", "EMERGENCY", "")
	if !res.Failed || res.Reply != GenericError(models.LanguageEnglish) {
		t.Errorf("expected English apology, got %+v", res)
	}
	res = r.Route(context.Background(), "+970599000001", "طوارئ", "")
	if !res.Failed || res.Reply != GenericError(models.LanguageArabic) {
		t.Errorf("expected Arabic apology, got %+v", res)
	}
}

type panickingHandler struct{}

func (panickingHandler) Execute(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	panic("nil case record")
}

func TestRouter_PanicBecomesApology(t *testing.T) {
	_, _, c := newTestRouter()
	r := NewRouter(panickingHandler{}, c)

	res := r.Route(context.Background(), "+970599000001", "طوارئ", "")
	if !res.Failed || res.Reply != GenericError(models.LanguageArabic) {
		t.Errorf("expected Arabic apology after panic, got %+v", res)
	}

	// The phone lock must have been released by the failed route.
	done := make(chan Result, 1)
	go func() { done <- r.Route(context.Background(), "+970599000001", "STATUS", "") }()
	select {
	case res := <-done:
		if res.Failed {
			t.Errorf("expected follow-up message to route, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up message blocked on the phone lock")
	}
}

func TestRouter_MissingSender(t *testing.T) {
	r, h, c := newTestRouter()
	res := r.Route(context.Background(), "", "EMERGENCY", "")
	if !res.Failed {
		t.Errorf("expected failure for missing sender")
	}
	if h.count()+c.count() != 0 {
		t.Error("expected nothing dispatched")
	}
}

func TestRouter_SuppressesDuplicates(t *testing.T) {
	st := store.NewInMemoryStore()
	r, h, _ := newTestRouter(WithDedup(st))
	ctx := context.Background()

	first := r.Route(ctx, "+970599000001", "EMERGENCY", "SM123")
	if first.Duplicate || first.Reply == "" {
		t.Fatalf("expected first delivery processed, got %+v", first)
	}
	second := r.Route(ctx, "+970599000001", "EMERGENCY", "SM123")
	if !second.Duplicate || second.Reply != "" {
		t.Errorf("expected duplicate suppressed, got %+v", second)
	}
	third := r.Route(ctx, "+970599000001", "EMERGENCY", "")
	if third.Duplicate {
		t.Error("messages without id are never duplicates")
	}
	if h.count() != 2 {
		t.Errorf("expected 2 handler calls, got %d", h.count())
	}
}

func TestRouter_SamePhoneSerialized(t *testing.T) {
	r, h, _ := newTestRouter()
	h.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Route(context.Background(), "+970599000001", "EMERGENCY", "")
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&h.maxSeen); got != 1 {
		t.Errorf("expected same-phone messages to run one at a time, saw %d concurrent", got)
	}
	if h.count() != 10 {
		t.Errorf("expected 10 calls, got %d", h.count())
	}
}

func TestRouter_DifferentPhonesConcurrent(t *testing.T) {
	r, h, _ := newTestRouter()
	h.delay = 50 * time.Millisecond

	start := time.Now()
	var wg sync.WaitGroup
	for _, phone := range []string{"+970599000001", "+970599000002", "+970599000003", "+970599000004"} {
		phone := phone
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Route(context.Background(), phone, "EMERGENCY", "")
		}()
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Errorf("different phones appear serialized: took %v", elapsed)
	}
}

func TestRouter_HandleInbound(t *testing.T) {
	r, _, _ := newTestRouter()
	if got := r.HandleInbound(context.Background(), "+970599000001", "STATUS", ""); got != "conversation:STATUS" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestRouter_Consume(t *testing.T) {
	r, _, _ := newTestRouter()
	svc := NewMockService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Consume(ctx, svc)
		close(done)
	}()

	if !svc.Deliver(models.Response{From: "+970599000001", Body: "EMERGENCY", MessageID: "wa-1"}) {
		t.Fatal("failed to deliver inbound message")
	}
	deadline := time.After(2 * time.Second)
	for len(svc.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reply")
		case <-time.After(5 * time.Millisecond):
		}
	}
	sent := svc.Sent()
	if sent[0].To != "+970599000001" || sent[0].Body != "handler:EMERGENCY" {
		t.Errorf("unexpected reply: %+v", sent[0])
	}

	_ = svc.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after channel close")
	}
}
