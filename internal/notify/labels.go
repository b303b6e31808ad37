package notify

import (
	"fmt"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

func pick(lang models.Language, en, ar string) string {
	if lang.IsArabic() {
		return ar
	}
	return en
}

// RequestTypeLabel returns the localized request type.
func RequestTypeLabel(t models.RequestType, lang models.Language) string {
	if t == models.RequestEmergency {
		return pick(lang, "EMERGENCY", "طوارئ")
	}
	return pick(lang, "SUPPORT", "مساعدة")
}

// RiskLabel returns the localized risk level.
func RiskLabel(r models.RiskLevel, lang models.Language) string {
	switch r {
	case models.RiskHigh:
		return pick(lang, "HIGH", "عالية")
	case models.RiskMedium:
		return pick(lang, "MEDIUM", "متوسطة")
	case models.RiskLow:
		return pick(lang, "LOW", "منخفضة")
	default:
		return pick(lang, "N/A", "غير محدد")
	}
}

// DueDateLabel buckets a due date relative to now: overdue/today, tomorrow, N days
// up to a week, otherwise dd/MM.
func DueDateLabel(due *time.Time, now time.Time, lang models.Language) string {
	if due == nil {
		return pick(lang, "N/A", "غير محدد")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(today).Hours() / 24)

	switch {
	case days <= 0:
		return pick(lang, "Today/Overdue", "اليوم/متأخر")
	case days == 1:
		return pick(lang, "Tomorrow", "غداً")
	case days <= 7:
		return pick(lang, fmt.Sprintf("%d days", days), fmt.Sprintf("%d أيام", days))
	default:
		return day.Format("02/01")
	}
}

// SkillLabel returns the localized skill name.
func SkillLabel(s models.SkillType, lang models.Language) string {
	switch s {
	case models.SkillMidwife:
		return pick(lang, "Midwife", "قابلة")
	case models.SkillNurse:
		return pick(lang, "Nurse", "ممرضة")
	case models.SkillTrainedAttendant:
		return pick(lang, "Trained Attendant", "مدربة")
	case models.SkillCommunityHealthWorker:
		return pick(lang, "Community Health Worker", "عامل صحة مجتمعي")
	default:
		return pick(lang, "Community Volunteer", "متطوع مجتمعي")
	}
}

// AvailabilityLabel returns the localized availability.
func AvailabilityLabel(a models.Availability, lang models.Language) string {
	switch a {
	case models.AvailabilityAvailable:
		return pick(lang, "AVAILABLE", "متاح")
	case models.AvailabilityBusy:
		return pick(lang, "BUSY", "مشغول")
	default:
		return pick(lang, "OFFLINE", "غير متاح")
	}
}

// StatusLabel returns the localized case status.
func StatusLabel(s models.RequestStatus, lang models.Language) string {
	switch s {
	case models.StatusPending:
		return pick(lang, "Waiting for a volunteer", "بانتظار متطوع")
	case models.StatusAccepted:
		return pick(lang, "Accepted", "تم القبول")
	case models.StatusInProgress:
		return pick(lang, "In progress", "قيد التنفيذ")
	case models.StatusCompleted:
		return pick(lang, "Completed", "مكتملة")
	default:
		return pick(lang, "Cancelled", "ملغاة")
	}
}
