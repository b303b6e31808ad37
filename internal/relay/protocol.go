package relay

import (
	"fmt"
	"strings"
)

// Message types exchanged with the relay device.
const (
	TypeIncomingSMS = "incoming_sms"
	TypeSendSMS     = "send_sms"
	TypeSMSSent     = "sms_sent"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Delivery statuses reported in sms_sent.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// Envelope carries only the discriminator; the body is decoded again by type.
type Envelope struct {
	Type string `json:"type" validate:"required"`
}

// IncomingSMS is an SMS the device received and forwards to the server.
type IncomingSMS struct {
	Type    string `json:"type" validate:"required,eq=incoming_sms"`
	Sender  string `json:"sender" validate:"required"`
	Message string `json:"message"`
	// Timestamp is the device receive time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// MessageID identifies the SMS for duplicate suppression. It is empty when the
// device did not report a timestamp.
func (m IncomingSMS) MessageID() string {
	if m.Timestamp == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", m.Sender, m.Timestamp)
}

// SendSMS instructs the device to send message to every recipient.
type SendSMS struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"request_id"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

// SMSSent is the device's delivery report for a SendSMS.
type SMSSent struct {
	Type         string   `json:"type" validate:"required,eq=sms_sent"`
	RequestID    string   `json:"request_id" validate:"required"`
	Recipients   []string `json:"recipients"`
	SuccessCount int      `json:"success_count" validate:"gte=0"`
	FailureCount int      `json:"failure_count" validate:"gte=0"`
	Status       string   `json:"status" validate:"omitempty,oneof=success failed partial SUCCESS FAILED PARTIAL"`
}

// EffectiveStatus returns the reported status, deriving it from the counts when absent.
func (m SMSSent) EffectiveStatus() string {
	if m.Status != "" {
		return strings.ToLower(m.Status)
	}
	switch {
	case m.FailureCount == 0:
		return StatusSuccess
	case m.SuccessCount == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Pong answers an application-level ping.
type Pong struct {
	Type string `json:"type"`
}
