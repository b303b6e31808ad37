package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/parser"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

const (
	genericErrorEN = "❌ An error occurred. Please try again."
	genericErrorAR = "❌ حدث خطأ. يرجى المحاولة مرة أخرى."
	// GenericErrorBilingual is the reply used when the language of a failed message is unknown.
	GenericErrorBilingual = "An error occurred. Please try again. / حدث خطأ. يرجى المحاولة مرة أخرى."
)

// GenericError returns the apology sent when a command could not be processed.
func GenericError(lang models.Language) string {
	if lang.IsArabic() {
		return genericErrorAR
	}
	return genericErrorEN
}

// CommandHandler executes commands that need matching or case state.
type CommandHandler interface {
	Execute(ctx context.Context, cmd models.ParsedCommand) (string, error)
}

// ConversationHandler handles everything else, including free text.
type ConversationHandler interface {
	Handle(ctx context.Context, cmd models.ParsedCommand) (string, error)
}

var _ ConversationHandler = (*flow.ConversationService)(nil)

// Result is the outcome of routing one inbound message.
type Result struct {
	Command   models.ParsedCommand
	Reply     string
	Duplicate bool // already processed; Reply is empty
	Failed    bool // Reply is the generic apology
}

// Router parses inbound SMS and dispatches them. Messages from the same phone are
// processed one at a time; different phones never wait on each other.
type Router struct {
	parser       *parser.Parser
	handler      CommandHandler
	conversation ConversationHandler
	dedup        store.DedupRepo
	locks        *flow.KeyedMutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithParser overrides the parser (for a fixed clock in tests).
func WithParser(p *parser.Parser) RouterOption {
	return func(r *Router) {
		r.parser = p
	}
}

// WithDedup suppresses redelivered messages by transport message id.
func WithDedup(d store.DedupRepo) RouterOption {
	return func(r *Router) {
		r.dedup = d
	}
}

// NewRouter creates a Router dispatching to handler and conversation.
func NewRouter(handler CommandHandler, conversation ConversationHandler, opts ...RouterOption) *Router {
	r := &Router{
		parser:       parser.New(),
		handler:      handler,
		conversation: conversation,
		locks:        flow.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route processes one inbound message. The sender always gets a reply unless the
// message is a duplicate: handler errors and panics become the generic apology.
func (r *Router) Route(ctx context.Context, from, body, messageID string) (res Result) {
	var cmd models.ParsedCommand
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router.Route: panic while routing", "from", util.MaskPhone(from), "type", cmd.Type, "panic", rec, "stack", string(debug.Stack()))
			routedCounter.WithLabelValues("error").Inc()
			res = Result{Command: cmd, Reply: GenericError(cmd.Language), Failed: true}
		}
	}()

	phone := util.CanonicalPhone(from)
	cmd = r.parser.Parse(phone, body)
	if phone == "" {
		slog.Warn("Router.Route: message without a usable sender", "from", from)
		routedCounter.WithLabelValues("error").Inc()
		return Result{Command: cmd, Reply: GenericError(cmd.Language), Failed: true}
	}

	unlock := r.locks.Lock(phone)
	defer unlock()

	if r.dedup != nil && messageID != "" {
		fresh, err := r.dedup.RecordInbound(ctx, messageID, phone)
		if err != nil {
			slog.Warn("Router.Route: dedup record failed, processing anyway", "message_id", messageID, "error", err)
		} else if !fresh {
			slog.Info("Router.Route: duplicate message suppressed", "message_id", messageID, "from", util.MaskPhone(phone))
			routedCounter.WithLabelValues("duplicate").Inc()
			return Result{Command: cmd, Duplicate: true}
		}
	}

	reply, route, err := r.dispatch(ctx, cmd)
	if r.dedup != nil && messageID != "" {
		if mErr := r.dedup.MarkProcessed(ctx, messageID); mErr != nil {
			slog.Warn("Router.Route: failed to mark message processed", "message_id", messageID, "error", mErr)
		}
	}
	if err != nil {
		slog.Error("Router.Route: command failed", "type", cmd.Type, "from", util.MaskPhone(phone), "error", err)
		routedCounter.WithLabelValues("error").Inc()
		return Result{Command: cmd, Reply: GenericError(cmd.Language), Failed: true}
	}
	routedCounter.WithLabelValues(route).Inc()
	return Result{Command: cmd, Reply: reply}
}

func (r *Router) dispatch(ctx context.Context, cmd models.ParsedCommand) (string, string, error) {
	matching, known := cmd.Type.RequiresMatching()
	switch {
	case !known:
		return "", "error", fmt.Errorf("unclassified command type %q", cmd.Type)
	case matching:
		reply, err := r.handler.Execute(ctx, cmd)
		return reply, "handler", err
	default:
		reply, err := r.conversation.Handle(ctx, cmd)
		return reply, "conversation", err
	}
}

// HandleInbound adapts Route to relay.InboundHandler.
func (r *Router) HandleInbound(ctx context.Context, sender, message, messageID string) string {
	return r.Route(ctx, sender, message, messageID).Reply
}

// Consume routes every message arriving on svc.Responses and sends the reply back
// through svc. It returns when ctx is done or the channel is closed.
func (r *Router) Consume(ctx context.Context, svc Service) {
	responses := svc.Responses()
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-responses:
			if !ok {
				return
			}
			res := r.Route(ctx, resp.From, resp.Body, resp.MessageID)
			if res.Reply == "" {
				continue
			}
			if err := svc.SendMessage(ctx, resp.From, res.Reply); err != nil {
				slog.Error("Router.Consume: failed to send reply", "to", util.MaskPhone(resp.From), "error", err)
			}
		}
	}
}
