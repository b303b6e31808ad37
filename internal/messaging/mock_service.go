package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// MockService records sent messages and lets tests inject inbound messages.
type MockService struct {
	events *eventChannels

	mu   sync.Mutex
	sent []SentMessage
	err  error
}

// SentMessage is one message recorded by MockService.
type SentMessage struct {
	To   string
	Body string
}

var _ Service = (*MockService)(nil)

// NewMockService creates a MockService.
func NewMockService() *MockService {
	return &MockService{events: newEventChannels()}
}

// SetError makes subsequent sends fail with err (nil restores success).
func (m *MockService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("MockService", recipient)
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if m.events.isStopped() {
		return ErrServiceStopped
	}
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	m.mu.Unlock()
	m.events.emitReceipt(models.Receipt{To: to, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	m.events.stop()
	return nil
}

func (m *MockService) Receipts() <-chan models.Receipt { return m.events.receipts }

func (m *MockService) Responses() <-chan models.Response { return m.events.responses }

// Deliver injects an inbound message as if the transport had received it.
func (m *MockService) Deliver(resp models.Response) bool {
	return m.events.emitResponse(resp)
}

// Sent returns a copy of the recorded messages.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
