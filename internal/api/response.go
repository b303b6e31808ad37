package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/twiliosms"
)

// Pre-rendered fallbacks so an encoding failure still produces a valid body.
var (
	fallbackErrorResponse []byte
	fallbackTwiML         []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
	twiml, err := twiliosms.ReplyTwiML(webhookErrorMessage)
	if err != nil {
		panic(fmt.Sprintf("Failed to render fallback TwiML at startup: %v", err))
	}
	fallbackTwiML = []byte(twiml)
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors are caught before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeTwiML answers a Twilio webhook: always a 200 with a well-formed document.
func writeTwiML(w http.ResponseWriter, body string) {
	doc, err := twiliosms.ReplyTwiML(body)
	out := []byte(doc)
	if err != nil {
		slog.Error("Server.writeTwiML: failed to render TwiML", "error", err)
		out = fallbackTwiML
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write(out); writeErr != nil {
		slog.Error("Server.writeTwiML: failed to write TwiML", "error", writeErr)
	}
}
