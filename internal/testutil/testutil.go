// Package testutil provides shared fixtures and HTTP helpers for SafeBirth tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/store"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Fixture phone numbers.
const (
	MotherPhone    = "+970599000001"
	MidwifePhone   = "+970599000010"
	NursePhone     = "+970599000011"
	AttendantPhone = "+970599000012"
	CommunityPhone = "+970599000013"
	FarZonePhone   = "+970599000014"
	UnknownPhone   = "+970599000099"

	FixtureCamp = "Jabalia"
	FixtureZone = "A"
)

// Clock is a manually advanced clock for deterministic timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeedMother registers a high-risk mother in FixtureZone.
func SeedMother(t TB, st store.MotherRepo, phone string) models.Mother {
	t.Helper()
	m := models.Mother{
		Phone:             phone,
		Camp:              FixtureCamp,
		Zone:              FixtureZone,
		RiskLevel:         models.RiskHigh,
		PreferredLanguage: models.LanguageEnglish,
		RegisteredAt:      time.Now(),
	}
	if err := st.CreateMother(context.Background(), &m); err != nil {
		t.Fatalf("failed to seed mother %s: %v", phone, err)
	}
	return m
}

// SeedVolunteer registers an available volunteer covering zones.
func SeedVolunteer(t TB, st store.VolunteerRepo, phone string, skill models.SkillType, zones ...string) models.Volunteer {
	t.Helper()
	v := models.Volunteer{
		Phone:             phone,
		SkillType:         skill,
		Zones:             zones,
		Availability:      models.AvailabilityAvailable,
		PreferredLanguage: models.LanguageEnglish,
		RegisteredAt:      time.Now(),
	}
	if err := st.CreateVolunteer(context.Background(), &v); err != nil {
		t.Fatalf("failed to seed volunteer %s: %v", phone, err)
	}
	return v
}

// SeedVolunteers registers one volunteer of each skill in FixtureZone, in registration
// order midwife, nurse, trained attendant, community volunteer, plus a midwife in zone Z.
func SeedVolunteers(t TB, st store.VolunteerRepo) []models.Volunteer {
	t.Helper()
	return []models.Volunteer{
		SeedVolunteer(t, st, MidwifePhone, models.SkillMidwife, FixtureZone),
		SeedVolunteer(t, st, NursePhone, models.SkillNurse, FixtureZone),
		SeedVolunteer(t, st, AttendantPhone, models.SkillTrainedAttendant, FixtureZone),
		SeedVolunteer(t, st, CommunityPhone, models.SkillCommunityVolunteer, FixtureZone),
		SeedVolunteer(t, st, FarZonePhone, models.SkillMidwife, "Z"),
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a models.APIResponse body and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Errorf("response missing or invalid 'status' field")
	} else if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		buf.Write(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
