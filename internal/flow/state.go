// Package flow holds short-lived per-phone conversation state and the conversational
// fallback that consults it.
package flow

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// Marker records what the system expects next from a phone.
type Marker string

const (
	MarkerNone         Marker = "NONE"
	MarkerAwaitingETA  Marker = "AWAITING_ETA"
	MarkerFallbackChat Marker = "FALLBACK_CHAT"
)

// Data keys stored alongside a marker.
const (
	DataKeyCaseID     = "caseId"
	DataKeyETAMinutes = "etaMinutes"
)

// DefaultConversationTimeout is how long a conversation survives without activity.
const DefaultConversationTimeout = 30 * time.Minute

// MaxHistoryMessages bounds the history kept per phone.
const MaxHistoryMessages = 20

// ConversationMessage is one turn of fallback chat history.
type ConversationMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the dialogue context for one phone number.
type ConversationState struct {
	Phone        string                `json:"phone"`
	Marker       Marker                `json:"marker"`
	Data         map[string]string     `json:"data,omitempty"`
	History      []ConversationMessage `json:"history,omitempty"`
	Turns        int                   `json:"turns"`
	Language     models.Language       `json:"language"`
	LastActivity time.Time             `json:"last_activity"`
}

// AppendHistory adds a message, dropping the oldest beyond MaxHistoryMessages.
func (s *ConversationState) AppendHistory(role, content string, at time.Time) {
	s.History = append(s.History, ConversationMessage{Role: role, Content: content, Timestamp: at})
	if len(s.History) > MaxHistoryMessages {
		s.History = s.History[len(s.History)-MaxHistoryMessages:]
	}
}

// SetMarker replaces the marker and its data.
func (s *ConversationState) SetMarker(m Marker, data map[string]string) {
	s.Marker = m
	s.Data = data
}

func (s ConversationState) clone() ConversationState {
	c := s
	if s.Data != nil {
		c.Data = make(map[string]string, len(s.Data))
		for k, v := range s.Data {
			c.Data[k] = v
		}
	}
	c.History = append([]ConversationMessage(nil), s.History...)
	return c
}

// StateOption configures a StateStore.
type StateOption func(*StateStore)

// WithConversationTimeout sets the inactivity window after which state is discarded.
func WithConversationTimeout(d time.Duration) StateOption {
	return func(s *StateStore) {
		s.timeout = d
	}
}

// WithStateClock overrides the clock used for activity timestamps.
func WithStateClock(now func() time.Time) StateOption {
	return func(s *StateStore) {
		s.now = now
	}
}

// StateStore maps phone numbers to ConversationState. Mutations for one phone are
// serialized; different phones never contend.
type StateStore struct {
	mu      sync.RWMutex
	states  map[string]ConversationState
	locks   *KeyedMutex
	timeout time.Duration
	now     func() time.Time
}

// NewStateStore creates an empty StateStore.
func NewStateStore(opts ...StateOption) *StateStore {
	s := &StateStore{
		states:  make(map[string]ConversationState),
		locks:   NewKeyedMutex(),
		timeout: DefaultConversationTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the configured inactivity window.
func (s *StateStore) Timeout() time.Duration {
	return s.timeout
}

func (s *StateStore) expired(st ConversationState, now time.Time) bool {
	return now.Sub(st.LastActivity) > s.timeout
}

// Get returns a copy of the phone's state. Expired state is discarded and reported as absent.
func (s *StateStore) Get(phone string) (ConversationState, bool) {
	now := s.now()
	s.mu.RLock()
	st, ok := s.states[phone]
	s.mu.RUnlock()
	if !ok {
		return ConversationState{}, false
	}
	if s.expired(st, now) {
		s.mu.Lock()
		if cur, ok := s.states[phone]; ok && s.expired(cur, now) {
			delete(s.states, phone)
		}
		s.mu.Unlock()
		return ConversationState{}, false
	}
	return st.clone(), true
}

// Update applies fn to the phone's state under the phone's lock and stores the result
// with a fresh activity timestamp. Expired or missing state starts from MarkerNone.
// Returning an error from fn leaves the stored state unchanged.
func (s *StateStore) Update(phone string, fn func(*ConversationState) error) (ConversationState, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()

	st, ok := s.Get(phone)
	if !ok {
		st = ConversationState{Phone: phone, Marker: MarkerNone}
	}
	if err := fn(&st); err != nil {
		return ConversationState{}, err
	}
	st.LastActivity = s.now()

	s.mu.Lock()
	s.states[phone] = st.clone()
	s.mu.Unlock()
	return st, nil
}

// Delete removes the phone's state.
func (s *StateStore) Delete(phone string) {
	unlock := s.locks.Lock(phone)
	defer unlock()
	s.mu.Lock()
	delete(s.states, phone)
	s.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were removed.
func (s *StateStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for phone, st := range s.states {
		if s.expired(st, now) {
			delete(s.states, phone)
			removed++
			slog.Debug("StateStore.Sweep: conversation expired", "phone", util.MaskPhone(phone), "marker", st.Marker)
		}
	}
	return removed
}

// Len returns the number of stored conversations, including not-yet-swept expired ones.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// AwaitETA marks phone as expecting an ETA reply for caseID.
func (s *StateStore) AwaitETA(phone, caseID string) error {
	_, err := s.Update(phone, func(st *ConversationState) error {
		st.SetMarker(MarkerAwaitingETA, map[string]string{DataKeyCaseID: caseID})
		return nil
	})
	return err
}

// ETAsForCase returns the ETA minutes recorded for caseID, keyed by volunteer phone.
func (s *StateStore) ETAsForCase(caseID string) map[string]int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for phone, st := range s.states {
		if s.expired(st, now) || st.Marker != MarkerAwaitingETA || st.Data[DataKeyCaseID] != caseID {
			continue
		}
		if eta, ok := st.Data[DataKeyETAMinutes]; ok {
			if n, err := strconv.Atoi(eta); err == nil {
				out[phone] = n
			}
		}
	}
	return out
}
