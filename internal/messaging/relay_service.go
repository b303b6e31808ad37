package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/relay"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// RelayHub is the part of relay.Hub used for outbound delivery.
type RelayHub interface {
	Send(recipients []string, message string) (string, bool)
	SessionCount() int
}

var _ RelayHub = (*relay.Hub)(nil)

// RelayService implements Service over connected SMS relay devices. Sending is
// fire-and-forget: the sent receipt means a relay accepted the request, and delivery
// is confirmed later by sms_sent. Inbound SMS are answered by the hub directly.
type RelayService struct {
	hub    RelayHub
	events *eventChannels
}

var _ Service = (*RelayService)(nil)

// NewRelayService creates a RelayService sending through hub.
func NewRelayService(hub RelayHub) *RelayService {
	return &RelayService{hub: hub, events: newEventChannels()}
}

// ValidateAndCanonicalizeRecipient canonicalizes a phone number, keeping a leading "+".
func (s *RelayService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("RelayService", recipient)
}

// Start is a no-op; sessions are accepted by the hub's HTTP handler.
func (s *RelayService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels. The hub itself is closed by its owner.
func (s *RelayService) Stop() error {
	s.events.stop()
	return nil
}

// SendMessage hands the message to every connected relay. It returns relay.ErrNoSession,
// which matches ErrNoTransport, when none is connected.
func (s *RelayService) SendMessage(ctx context.Context, to string, body string) error {
	if s.events.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	requestID, ok := s.hub.Send([]string{canonicalTo}, body)
	if !ok {
		return relay.ErrNoSession
	}
	slog.Debug("RelayService.SendMessage: handed to relay", "to", util.MaskPhone(canonicalTo), "request_id", requestID)
	s.events.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Connected reports whether at least one relay session is open.
func (s *RelayService) Connected() bool {
	return s.hub.SessionCount() > 0
}

// Receipts returns the channel of hand-off receipts.
func (s *RelayService) Receipts() <-chan models.Receipt {
	return s.events.receipts
}

// Responses returns the (unused) inbound channel.
func (s *RelayService) Responses() <-chan models.Response {
	return s.events.responses
}
