package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/genai"
	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/parser"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// CommandExecutor runs a parsed command against domain state and returns the reply.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd models.ParsedCommand) (string, error)
}

// Generator produces a free-form reply from chat history.
type Generator interface {
	Reply(ctx context.Context, lang models.Language, history []genai.Message) (string, error)
}

// VolunteerLookup finds a volunteer by phone.
type VolunteerLookup interface {
	GetVolunteerByPhone(ctx context.Context, phone string) (models.Volunteer, error)
}

var _ Generator = (*genai.Client)(nil)

const (
	etaRecordedEN   = "Response recorded. You'll be notified if selected."
	etaRecordedAR   = "تم تسجيل ردك. سنخبرك إذا تم اختيارك."
	notVolunteerMsg = "You're not registered as a volunteer. / أنت غير مسجل كمتطوع."
)

// ConversationService handles every command that does not need matching: registrations,
// availability, status and help go straight to the executor, digit-only replies from
// alerted volunteers are recorded as ETAs, and unrecognized text goes to the generator
// when one is configured.
type ConversationService struct {
	states     *StateStore
	executor   CommandExecutor
	volunteers VolunteerLookup
	generator  Generator
	now        func() time.Time
}

// ServiceOption configures a ConversationService.
type ServiceOption func(*ConversationService)

// WithGenerator enables generated replies for unrecognized messages.
func WithGenerator(g Generator) ServiceOption {
	return func(s *ConversationService) {
		s.generator = g
	}
}

// WithServiceClock overrides the clock used for history timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ConversationService) {
		s.now = now
	}
}

// NewConversationService creates a ConversationService.
func NewConversationService(states *StateStore, executor CommandExecutor, volunteers VolunteerLookup, opts ...ServiceOption) *ConversationService {
	s := &ConversationService{
		states:     states,
		executor:   executor,
		volunteers: volunteers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseETA reports whether body is a digits-only reply (ASCII or Arabic-Indic) and returns
// its value in minutes.
func ParseETA(body string) (int, bool) {
	s := parser.FoldDigits(strings.TrimSpace(body))
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Handle produces the reply for one non-matching command.
func (s *ConversationService) Handle(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	if cmd.Type != models.CommandUnknown {
		s.clearChat(cmd.Phone)
		return s.executor.Execute(ctx, cmd)
	}

	if eta, ok := ParseETA(cmd.RawBody); ok {
		reply, handled, err := s.recordETA(ctx, cmd, eta)
		if err != nil || handled {
			return reply, err
		}
	}

	if s.generator == nil {
		return s.executor.Execute(ctx, cmd)
	}
	return s.chat(ctx, cmd)
}

func (s *ConversationService) recordETA(ctx context.Context, cmd models.ParsedCommand, eta int) (string, bool, error) {
	if _, err := s.volunteers.GetVolunteerByPhone(ctx, cmd.Phone); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return notVolunteerMsg, true, nil
		}
		return "", false, fmt.Errorf("failed to look up volunteer: %w", err)
	}

	var caseID string
	_, err := s.states.Update(cmd.Phone, func(st *ConversationState) error {
		if st.Marker != MarkerAwaitingETA {
			return errNotAwaiting
		}
		if st.Data == nil {
			st.Data = make(map[string]string)
		}
		caseID = st.Data[DataKeyCaseID]
		st.Data[DataKeyETAMinutes] = strconv.Itoa(eta)
		return nil
	})
	if errors.Is(err, errNotAwaiting) {
		slog.Debug("ConversationService.recordETA: no case awaiting ETA", "phone", util.MaskPhone(cmd.Phone))
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	slog.Info("ConversationService.recordETA: ETA recorded", "phone", util.MaskPhone(cmd.Phone), "caseID", caseID, "minutes", eta)
	if cmd.Language.IsArabic() {
		return etaRecordedAR, true, nil
	}
	return etaRecordedEN, true, nil
}

var errNotAwaiting = errors.New("not awaiting ETA")

func (s *ConversationService) chat(ctx context.Context, cmd models.ParsedCommand) (string, error) {
	var reply string
	_, err := s.states.Update(cmd.Phone, func(st *ConversationState) error {
		history := make([]genai.Message, 0, len(st.History)+1)
		for _, m := range st.History {
			history = append(history, genai.Message{Role: m.Role, Content: m.Content})
		}
		history = append(history, genai.Message{Role: "user", Content: cmd.RawBody})

		out, err := s.generator.Reply(ctx, cmd.Language, history)
		if err != nil {
			return err
		}
		if out == "" {
			return genai.ErrNoChoicesReturned
		}
		now := s.now()
		st.AppendHistory("user", cmd.RawBody, now)
		st.AppendHistory("assistant", out, now)
		st.Turns++
		st.Language = cmd.Language
		if st.Marker != MarkerAwaitingETA {
			st.SetMarker(MarkerFallbackChat, nil)
		}
		reply = out
		return nil
	})
	if err != nil {
		slog.Warn("ConversationService.chat: generator failed, using default reply", "phone", util.MaskPhone(cmd.Phone), "error", err)
		return s.executor.Execute(ctx, cmd)
	}
	return reply, nil
}

// clearChat drops fallback chat history once the sender issues a recognized command.
// An AWAITING_ETA marker is kept so an alerted volunteer can still reply with an ETA.
func (s *ConversationService) clearChat(phone string) {
	st, ok := s.states.Get(phone)
	if !ok || st.Marker != MarkerFallbackChat {
		return
	}
	_, _ = s.states.Update(phone, func(st *ConversationState) error {
		if st.Marker == MarkerFallbackChat {
			st.SetMarker(MarkerNone, nil)
			st.History = nil
		}
		return nil
	})
}
