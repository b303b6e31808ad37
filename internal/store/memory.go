package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// InMemoryStore is a Store kept entirely in process memory. It is used when no
// database is configured and throughout the tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	mothers    map[string]models.Mother
	volunteers map[string]models.Volunteer
	requests   map[string]models.HelpRequest
	dedup      map[string]DedupRecord
	motherSeq  int64
	volSeq     int64
	caseSeq    int64
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		mothers:    make(map[string]models.Mother),
		volunteers: make(map[string]models.Volunteer),
		requests:   make(map[string]models.HelpRequest),
		dedup:      make(map[string]DedupRecord),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyVolunteer(v models.Volunteer) models.Volunteer {
	v.Zones = append([]string(nil), v.Zones...)
	return v
}

func copyRequest(r models.HelpRequest) models.HelpRequest {
	r.DueDate = copyTime(r.DueDate)
	r.AcceptedAt = copyTime(r.AcceptedAt)
	r.InProgressAt = copyTime(r.InProgressAt)
	r.ClosedAt = copyTime(r.ClosedAt)
	return r
}

func (s *InMemoryStore) CreateMother(ctx context.Context, m *models.Mother) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mothers[m.Phone]; ok {
		return models.ErrAlreadyRegistered
	}
	s.motherSeq++
	m.ID = s.motherSeq
	c := *m
	c.DueDate = copyTime(m.DueDate)
	s.mothers[m.Phone] = c
	return nil
}

func (s *InMemoryStore) GetMotherByPhone(ctx context.Context, phone string) (models.Mother, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mothers[phone]
	if !ok {
		return models.Mother{}, models.ErrNotFound
	}
	m.DueDate = copyTime(m.DueDate)
	m.LastContactAt = copyTime(m.LastContactAt)
	return m, nil
}

func (s *InMemoryStore) TouchMother(ctx context.Context, phone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mothers[phone]
	if !ok {
		return models.ErrNotFound
	}
	m.LastContactAt = &at
	s.mothers[phone] = m
	return nil
}

func (s *InMemoryStore) CreateVolunteer(ctx context.Context, v *models.Volunteer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.volunteers[v.Phone]; ok {
		return models.ErrAlreadyRegistered
	}
	s.volSeq++
	v.ID = s.volSeq
	s.volunteers[v.Phone] = copyVolunteer(*v)
	return nil
}

func (s *InMemoryStore) GetVolunteerByPhone(ctx context.Context, phone string) (models.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volunteers[phone]
	if !ok {
		return models.Volunteer{}, models.ErrNotFound
	}
	return copyVolunteer(v), nil
}

func (s *InMemoryStore) UpdateVolunteer(ctx context.Context, v models.Volunteer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.volunteers[v.Phone]; !ok {
		return models.ErrNotFound
	}
	s.volunteers[v.Phone] = copyVolunteer(v)
	return nil
}

func (s *InMemoryStore) FindAvailableByZone(ctx context.Context, zone string) ([]models.Volunteer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Volunteer
	for _, v := range s.volunteers {
		if v.IsAvailable() && v.CoversZone(zone) {
			out = append(out, copyVolunteer(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) CreateHelpRequest(ctx context.Context, r *models.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseSeq++
	r.CaseID = models.FormatCaseID(s.caseSeq)
	s.requests[r.CaseID] = copyRequest(*r)
	return nil
}

func (s *InMemoryStore) GetHelpRequest(ctx context.Context, caseID string) (models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[caseID]
	if !ok {
		return models.HelpRequest{}, models.ErrNotFound
	}
	return copyRequest(r), nil
}

func (s *InMemoryStore) UpdateHelpRequest(ctx context.Context, r models.HelpRequest, from models.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.CaseID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != from {
		return ErrConflict
	}
	r.AlertsSent = cur.AlertsSent
	s.requests[r.CaseID] = copyRequest(r)
	return nil
}

func (s *InMemoryStore) IncrementAlertsSent(ctx context.Context, caseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[caseID]
	if !ok {
		return 0, models.ErrNotFound
	}
	r.AlertsSent++
	s.requests[caseID] = r
	return r.AlertsSent, nil
}

// sortedRequests returns matching requests ordered by creation, oldest first.
func (s *InMemoryStore) sortedRequests(keep func(models.HelpRequest) bool) []models.HelpRequest {
	var out []models.HelpRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CaseID, out[j].CaseID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}

func (s *InMemoryStore) LatestForMother(ctx context.Context, motherPhone string) (models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := s.sortedRequests(func(r models.HelpRequest) bool { return r.MotherPhone == motherPhone })
	if len(rs) == 0 {
		return models.HelpRequest{}, models.ErrNotFound
	}
	return rs[len(rs)-1], nil
}

func (s *InMemoryStore) ActiveForVolunteer(ctx context.Context, volunteerPhone string) ([]models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRequests(func(r models.HelpRequest) bool {
		return r.AcceptedByPhone == volunteerPhone && r.IsActive()
	}), nil
}

func (s *InMemoryStore) PendingInZone(ctx context.Context, zone string) ([]models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRequests(func(r models.HelpRequest) bool {
		return r.Status == models.StatusPending && (zone == "" || r.Zone == zone)
	}), nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, Sender: sender, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
