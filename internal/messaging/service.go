// Package messaging delivers outbound SMS over the configured transports and routes
// inbound messages to the command handler or the conversational fallback.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

const (
	// DefaultChannelBufferSize defines the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an emit may block on a full channel.
	DefaultChannelTimeout = 1 * time.Second
	// minRecipientDigits is the shortest phone number accepted for delivery.
	minRecipientDigits = 6
)

var (
	// ErrNoTransport is returned when no outbound path could take the message.
	ErrNoTransport = models.ErrNoTransport
	// ErrServiceStopped is returned by SendMessage after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., listening for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound messages received outside an HTTP request.
	Responses() <-chan models.Response
}

// canonicalizeRecipient normalizes recipient to E.164-style digits for any transport.
func canonicalizeRecipient(service, recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := util.CanonicalPhone(recipient)
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	digits := len(canonical)
	if canonical[0] == '+' {
		digits--
	}
	if digits < minRecipientDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minRecipientDigits)
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", util.MaskPhone(recipient), "canonical", util.MaskPhone(canonical))
	}
	return canonical, nil
}

// emit pushes v into ch unless the channel stays full for DefaultChannelTimeout.
func emit[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-time.After(DefaultChannelTimeout):
		return false
	}
}
