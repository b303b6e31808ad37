package parser

import "github.com/BTreeMap/SafeBirth/internal/models"

// arabicKeywords rewrites Arabic tokens to the English keyword grammar.
var arabicKeywords = map[string]string{
	// commands
	"تسجيل":   "REG",
	"ام":      "MOTHER",
	"أم":      "MOTHER",
	"الام":    "MOTHER",
	"الأم":    "MOTHER",
	"متطوع":   "VOLUNTEER",
	"متطوعة":  "VOLUNTEER",
	"طوارئ":   "EMERGENCY",
	"طارئ":    "EMERGENCY",
	"مساعدة":  "SUPPORT",
	"مساعده":  "SUPPORT",
	"قبول":    "ACCEPT",
	"اكتمل":   "COMPLETE",
	"انهاء":   "COMPLETE",
	"إنهاء":   "COMPLETE",
	"الغاء":   "CANCEL",
	"إلغاء":   "CANCEL",
	"متاح":    "AVAILABLE",
	"متاحة":   "AVAILABLE",
	"مشغول":   "BUSY",
	"مشغولة":  "BUSY",
	"حالة":    "STATUS",
	"الاوامر": "COMMANDS",
	"الأوامر": "COMMANDS",
	"اوامر":   "COMMANDS",
	"تعليمات": "COMMANDS",

	// fields
	"مخيم":    "CAMP",
	"المخيم":  "CAMP",
	"منطقة":   "ZONE",
	"المنطقة": "ZONE",
	"مناطق":   "ZONE",
	"موعد":    "DUE",
	"الموعد":  "DUE",
	"خطورة":   "RISK",
	"الخطورة": "RISK",
	"اسم":     "NAME",
	"الاسم":   "NAME",
	"مهارة":   "SKILL",

	// risk levels
	"عالية":  "HIGH",
	"عالي":   "HIGH",
	"متوسطة": "MEDIUM",
	"متوسط":  "MEDIUM",
	"منخفضة": "LOW",
	"منخفض":  "LOW",

	// skills
	"قابلة":   "MIDWIFE",
	"ممرضة":   "NURSE",
	"ممرض":    "NURSE",
	"مدربة":   "TRAINED",
	"مدرب":    "TRAINED",
	"مجتمعي":  "COMMUNITY",
	"مجتمعية": "COMMUNITY",
}

// arabicPhrases are two-token keywords, checked before single tokens.
var arabicPhrases = map[[2]string]string{
	{"غير", "متاح"}:  "OFFLINE",
	{"غير", "متاحة"}: "OFFLINE",
}

// fieldKeywords terminate the value of the preceding field.
var fieldKeywords = map[string]bool{
	"CAMP":  true,
	"ZONE":  true,
	"ZONES": true,
	"DUE":   true,
	"RISK":  true,
	"NAME":  true,
	"SKILL": true,
}

var emergencyWords = map[string]bool{"EMERGENCY": true, "SOS": true, "URGENT": true}

// singleWordCommands must make up the whole message.
var singleWordCommands = map[string]models.CommandType{
	"HELP":        models.CommandSupport,
	"SUPPORT":     models.CommandSupport,
	"AVAILABLE":   models.CommandAvailable,
	"BUSY":        models.CommandBusy,
	"OFFLINE":     models.CommandOffline,
	"UNAVAILABLE": models.CommandOffline,
	"STATUS":      models.CommandStatus,
	"COMMANDS":    models.CommandHelp,
	"MENU":        models.CommandHelp,
	"INFO":        models.CommandHelp,
	"?":           models.CommandHelp,
}
