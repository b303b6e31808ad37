package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/store"
)

// mockTestingT records failures instead of failing the real test.
type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	mt := &mockTestingT{}
	AssertHTTPStatus(mt, http.StatusOK, http.StatusOK, "match")
	if mt.failed {
		t.Errorf("expected no failure for matching status")
	}
	AssertHTTPStatus(mt, http.StatusOK, http.StatusBadRequest, "mismatch")
	if !mt.failed {
		t.Errorf("expected failure for mismatched status")
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"ok","result":{"n":1}}`)
	mt := &mockTestingT{}
	resp := AssertJSONResponse(mt, rr, "ok")
	if mt.failed {
		t.Fatalf("unexpected failure: %s", mt.errorMsg)
	}
	if resp["result"] == nil {
		t.Errorf("expected result in response")
	}

	rr = httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"error"}`)
	mt = &mockTestingT{}
	AssertJSONResponse(mt, rr, "ok")
	if !mt.failed {
		t.Errorf("expected failure for status mismatch")
	}

	rr = httptest.NewRecorder()
	rr.Body.WriteString(`not json`)
	mt = &mockTestingT{}
	AssertJSONResponse(mt, rr, "ok")
	if !mt.failed {
		t.Errorf("expected failure for invalid JSON")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/api/sms/simulate", map[string]string{"from": MotherPhone})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type")
	}
	body, _ := io.ReadAll(req.Body)
	var decoded map[string]string
	MustUnmarshalJSON(t, body, &decoded)
	if decoded["from"] != MotherPhone {
		t.Errorf("unexpected body %s", body)
	}

	empty := CreateHTTPRequest(t, http.MethodGet, "/api/sms/health", nil)
	if empty.Header.Get("Content-Type") != "" {
		t.Errorf("expected no content type without body")
	}
}

func TestSeedFixtures(t *testing.T) {
	st := store.NewInMemoryStore()
	m := SeedMother(t, st, MotherPhone)
	if m.ID == 0 || m.Zone != FixtureZone {
		t.Errorf("unexpected mother %+v", m)
	}
	vs := SeedVolunteers(t, st)
	if len(vs) != 5 {
		t.Fatalf("expected 5 volunteers, got %d", len(vs))
	}
	if vs[0].SkillType != models.SkillMidwife || vs[0].ID >= vs[1].ID {
		t.Errorf("expected registration order preserved: %+v", vs[:2])
	}

	mt := &mockTestingT{}
	SeedMother(mt, st, MotherPhone)
	if !mt.failed {
		t.Errorf("expected duplicate mother to fail")
	}
}

func TestClock(t *testing.T) {
	start := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	c := NewClock(start)
	c.Advance(5 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("unexpected time %v", got)
	}
}
