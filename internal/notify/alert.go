// Package notify builds bilingual volunteer alerts and hands them to a transport.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

const (
	alertTemplateEnglish = "🚨 %s Zone %s\nRisk: %s | Due: %s\n📞 Mother: %s\nReply: ACCEPT %s"
	alertTemplateArabic  = "🚨 %s منطقة %s\nالخطورة: %s | الموعد: %s\n📞 رقم الأم: %s\nللقبول أرسل: قبول %s"
)

// BuildAlertMessage renders the alert for one volunteer relative to the current date.
func BuildAlertMessage(v models.Volunteer, r models.HelpRequest) string {
	return BuildAlertMessageAt(v, r, time.Now())
}

// BuildAlertMessageAt renders the alert for one volunteer, bucketing the due date relative to now.
// The accept line is parseable as an ACCEPT_CASE command in both languages.
func BuildAlertMessageAt(v models.Volunteer, r models.HelpRequest, now time.Time) string {
	lang := v.PreferredLanguage
	tmpl := alertTemplateEnglish
	if lang.IsArabic() {
		tmpl = alertTemplateArabic
	}
	return fmt.Sprintf(tmpl,
		RequestTypeLabel(r.Type, lang),
		r.Zone,
		RiskLabel(r.RiskLevel, lang),
		DueDateLabel(r.DueDate, now, lang),
		r.MotherPhone,
		r.CaseID,
	)
}

// Sender delivers one text message to one phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Dispatcher builds alerts and sends them through a Sender.
type Dispatcher struct {
	sender Sender
	now    func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the clock used for due-date buckets.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a Dispatcher that sends through sender.
func NewDispatcher(sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sender: sender, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends the alert for request r to volunteer v.
func (d *Dispatcher) Notify(ctx context.Context, v models.Volunteer, r models.HelpRequest) error {
	msg := BuildAlertMessageAt(v, r, d.now())
	if err := d.sender.SendMessage(ctx, v.Phone, msg); err != nil {
		return fmt.Errorf("failed to alert volunteer %s for case %s: %w", v.FormattedID(), r.CaseID, err)
	}
	slog.Debug("Dispatcher.Notify: alert sent", "case", r.CaseID, "to", util.MaskPhone(v.Phone), "language", v.PreferredLanguage)
	return nil
}
