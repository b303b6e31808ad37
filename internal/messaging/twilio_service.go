package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/twiliosms"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// TwilioService implements Service over the Twilio SMS API. Inbound SMS arrive through
// the HTTP webhook and are answered with TwiML, so Responses stays empty.
type TwilioService struct {
	client twiliosms.SMSSender // real Twilio client or MockClient
	events *eventChannels
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService sending through client.
func NewTwilioService(client twiliosms.SMSSender) *TwilioService {
	return &TwilioService{client: client, events: newEventChannels()}
}

// ValidateAndCanonicalizeRecipient canonicalizes a phone number, keeping a leading "+".
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("TwilioService", recipient)
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	if s.events.stop() {
		slog.Info("TwilioService.Stop: stopped")
	}
	return nil
}

// SendMessage sends an SMS via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.events.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.events.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	slog.Debug("TwilioService.SendMessage: sent", "to", util.MaskPhone(canonicalTo))
	return nil
}

// Receipts returns the channel for sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.events.receipts
}

// Responses returns the (unused) inbound channel.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.events.responses
}
