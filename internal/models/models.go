// Package models defines the core data structures for SafeBirth.
//
// It includes the domain records (mothers, volunteers, help requests), the closed
// command enumeration produced by the SMS parser, transport receipts, and the JSON
// envelope used by the HTTP API. These types are shared across modules.
package models

import "errors"

// Error variables for better error handling and testability
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRegistered = errors.New("phone number already registered")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAssigned       = errors.New("volunteer is not assigned to this case")
	ErrNotParticipant    = errors.New("sender is not a participant in this case")
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
	ErrMissingParameter  = errors.New("missing required parameter")

	// ErrNoTransport means no outbound path was available; the message was not handed off.
	ErrNoTransport = errors.New("no transport available")
)

// MessageStatus represents the delivery state of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt is emitted by a transport after it has handed a message off.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response is an inbound message received by a transport.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
	MessageID string `json:"message_id,omitempty"` // transport-assigned id, used for duplicate suppression
}

// APIStatus represents the status field of API responses.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for HTTP API responses.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful response carrying result.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful response with a message and optional result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error response.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
