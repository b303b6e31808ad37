package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/twiliosms"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

const webhookErrorMessage = "An error occurred. Please try again. / حدث خطأ. يرجى المحاولة مرة أخرى."

// SimulateRequest is the body of POST /api/sms/simulate. Body is accepted as an
// alias of Message.
type SimulateRequest struct {
	From    string `json:"from" validate:"required"`
	Message string `json:"message"`
	Body    string `json:"body"`
}

// SimulateResponse reports how a simulated SMS was parsed and answered.
type SimulateResponse struct {
	CommandType      models.CommandType `json:"commandType"`
	DetectedLanguage models.Language    `json:"detectedLanguage"`
	ResponseMessage  string             `json:"responseMessage"`
	Success          bool               `json:"success"`
	ParsedParameters map[string]string  `json:"parsedParameters"`
}

// WebhookRequest is the JSON body posted by SMS gateway apps to /api/sms/webhook.
type WebhookRequest struct {
	From      string `json:"from" validate:"required"`
	Body      string `json:"body"`
	To        string `json:"to"`
	MessageID string `json:"messageId"`
}

// WebhookResponse carries the reply a gateway app should send back to From.
type WebhookResponse struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// HealthResponse is the body of GET /api/sms/health.
type HealthResponse struct {
	Status               string `json:"status"`
	Mode                 string `json:"mode"`
	RelaySessions        int    `json:"relaySessions"`
	PendingRelayRequests int    `json:"pendingRelayRequests"`
	StaleRelayRequests   int    `json:"staleRelayRequests"`
	Timestamp            string `json:"timestamp"`
}

// incomingHandler handles the Twilio SMS webhook (POST /api/sms/incoming).
func (s *Server) incomingHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.incomingHandler: failed to parse form", "error", err)
		writeTwiML(w, webhookErrorMessage)
		return
	}

	if s.signature != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.signature.Validate(s.opts.TwilioWebhookURL, params, r.Header.Get(twiliosms.SignatureHeader)) {
			slog.Warn("Server.incomingHandler: invalid Twilio signature", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	sid := r.PostForm.Get("MessageSid")
	if from == "" {
		slog.Warn("Server.incomingHandler: webhook without From")
		writeTwiML(w, webhookErrorMessage)
		return
	}
	slog.Info("Server.incomingHandler: SMS received", "from", util.MaskPhone(from), "to", r.PostForm.Get("To"), "sid", sid, "length", len(body))

	res := s.router.Route(r.Context(), from, body, sid)
	switch {
	case res.Duplicate:
		writeTwiML(w, "")
	case res.Failed:
		writeTwiML(w, webhookErrorMessage)
	default:
		writeTwiML(w, res.Reply)
	}
}

// simulateHandler parses and answers an SMS without any transport (POST /api/sms/simulate).
func (s *Server) simulateHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.simulateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: from"))
		return
	}
	message := req.Message
	if message == "" {
		message = req.Body
	}

	res := s.router.Route(r.Context(), req.From, message, "")
	slog.Info("Server.simulateHandler: simulated SMS", "from", util.MaskPhone(req.From), "type", res.Command.Type, "language", res.Command.Language)
	params := res.Command.Parameters
	if params == nil {
		params = map[string]string{}
	}
	writeJSONResponse(w, http.StatusOK, SimulateResponse{
		CommandType:      res.Command.Type,
		DetectedLanguage: res.Command.Language,
		ResponseMessage:  res.Reply,
		Success:          !res.Failed,
		ParsedParameters: params,
	})
}

// webhookHandler answers gateway apps that post JSON and send the reply themselves
// (POST /api/sms/webhook).
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: from"))
		return
	}

	res := s.router.Route(r.Context(), req.From, req.Body, req.MessageID)
	reply := res.Reply
	if res.Failed {
		reply = webhookErrorMessage
	}
	writeJSONResponse(w, http.StatusOK, WebhookResponse{To: req.From, Message: reply, Success: !res.Failed})
}

// healthHandler reports transport state (GET /api/sms/health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Mode:      s.opts.Mode,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	if s.hub != nil {
		resp.RelaySessions = s.hub.SessionCount()
		resp.PendingRelayRequests = len(s.hub.Pending())
		resp.StaleRelayRequests = len(s.hub.StalePending(s.opts.StalePendingAfter))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
