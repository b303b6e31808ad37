package handler

import (
	"fmt"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// msg picks the template for lang and formats it with args.
func msg(lang models.Language, en, ar string, args ...interface{}) string {
	tmpl := en
	if lang.IsArabic() {
		tmpl = ar
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

const (
	motherCampRequiredEN = "❌ Camp is required. Example: REG MOTHER CAMP A ZONE 3"
	motherCampRequiredAR = "❌ المخيم مطلوب. مثال: تسجيل ام مخيم أ منطقة 3"
	motherZoneRequiredEN = "❌ Zone is required. Example: REG MOTHER CAMP A ZONE 3"
	motherZoneRequiredAR = "❌ المنطقة مطلوبة. مثال: تسجيل ام مخيم أ منطقة 3"
	zoneInvalidEN        = "❌ Zone must be letters or numbers only. Example: ZONE 3"
	zoneInvalidAR        = "❌ يجب أن تحتوي المنطقة على حروف أو أرقام فقط. مثال: منطقة 3"
	motherRegisteredEN   = "✅ Registered! Your ID: %s\nCamp: %s, Zone: %s\nSend EMERGENCY if you need urgent help."
	motherRegisteredAR   = "✅ تم التسجيل! رقمك: %s\nالمخيم: %s، المنطقة: %s\nأرسل 'طوارئ' إذا احتجت مساعدة عاجلة."

	volunteerZoneRequiredEN = "❌ Zone is required. Example: REG VOLUNTEER NAME Ali CAMP A ZONE 3 SKILL MIDWIFE"
	volunteerZoneRequiredAR = "❌ المنطقة مطلوبة. مثال: تسجيل متطوع الاسم علي مخيم أ منطقة 3 مهارة قابلة"
	volunteerRegisteredEN   = "✅ Volunteer registered! Your ID: %s\nSkill: %s, Zones: %s\nYou are now AVAILABLE to receive alerts."
	volunteerRegisteredAR   = "✅ تم تسجيل المتطوع! رقمك: %s\nالمهارة: %s، المناطق: %s\nأنت الآن متاح لاستلام التنبيهات."

	alreadyRegisteredEN = "ℹ️ This number is already registered (ID: %s). Send STATUS to see your details."
	alreadyRegisteredAR = "ℹ️ هذا الرقم مسجل مسبقاً (الرقم: %s). أرسل 'حالة' لعرض بياناتك."

	motherNotRegisteredEN = "❌ You are not registered. Please register first: REG MOTHER CAMP [name] ZONE [number]"
	motherNotRegisteredAR = "❌ لم يتم تسجيلك. يرجى التسجيل أولاً: تسجيل ام مخيم [اسم] منطقة [رقم]"

	emergencyNoneEN = "🚨 EMERGENCY received! Case: %s\n⚠️ No volunteers available in your zone. Stay calm, we are trying to find help."
	emergencyNoneAR = "🚨 تم استلام الطوارئ! الحالة: %s\n⚠️ لا يوجد متطوعين متاحين في منطقتك. ابق هادئاً، نحاول إيجاد المساعدة."
	emergencySentEN = "🚨 EMERGENCY received! Case: %s\n✅ %d volunteer(s) have been alerted. Help is on the way. Stay calm."
	emergencySentAR = "🚨 تم استلام الطوارئ! الحالة: %s\n✅ تم إخطار %d متطوع(ين). المساعدة في الطريق. ابق هادئاً."
	supportNoneEN   = "📞 Support request received! Case: %s\n⚠️ No volunteers available right now. We will notify you when someone is available."
	supportNoneAR   = "📞 تم استلام طلب المساعدة! الحالة: %s\n⚠️ لا يوجد متطوعين متاحين حالياً. سنخبرك عندما يتوفر أحد."
	supportSentEN   = "📞 Support request received! Case: %s\n✅ %d volunteer(s) notified. Someone will contact you soon."
	supportSentAR   = "📞 تم استلام طلب المساعدة! الحالة: %s\n✅ تم إخطار %d متطوع(ين). سيتواصل معك أحدهم قريباً."

	volunteerNotRegisteredEN = "❌ You are not registered as a volunteer. Please register first."
	volunteerNotRegisteredAR = "❌ لم يتم تسجيلك كمتطوع. يرجى التسجيل أولاً."
	caseNotFoundEN           = "❌ Case %s not found."
	caseNotFoundAR           = "❌ الحالة %s غير موجودة."
	caseNotPendingEN         = "❌ Case %s is no longer open for acceptance (%s)."
	caseNotPendingAR         = "❌ الحالة %s لم تعد متاحة للقبول (%s)."
	caseNotActiveEN          = "❌ Case %s is already closed (%s)."
	caseNotActiveAR          = "❌ الحالة %s مغلقة بالفعل (%s)."
	notAssignedEN            = "❌ You are not assigned to case %s."
	notAssignedAR            = "❌ لست مسؤولاً عن الحالة %s."
	notAuthorizedCancelEN    = "❌ You are not authorized to cancel case %s."
	notAuthorizedCancelAR    = "❌ ليس لديك صلاحية لإلغاء الحالة %s."

	acceptedEN  = "✅ You have accepted case %s.\nMother in Zone %s has been notified.\nSend COMPLETE %s when finished."
	acceptedAR  = "✅ لقد قبلت الحالة %s.\nتم إخطار الأم في المنطقة %s.\nأرسل انهاء %s عند الانتهاء."
	completedEN = "✅ Case %s marked as COMPLETE.\nThank you for your help! Total cases completed: %d"
	completedAR = "✅ تم وضع علامة اكتمال على الحالة %s.\nشكراً لمساعدتك! إجمالي الحالات المكتملة: %d"
	cancelledEN = "✅ Case %s has been cancelled."
	cancelledAR = "✅ تم إلغاء الحالة %s."

	motherAcceptedEN      = "✅ Your request %s has been accepted!\nVolunteer: %s (%s)\nHelp is on the way."
	motherAcceptedAR      = "✅ تم قبول طلبك %s!\nالمتطوع: %s (%s)\nالمساعدة في الطريق."
	volunteerCaseCancelEN = "ℹ️ Case %s has been cancelled by the mother."
	volunteerCaseCancelAR = "ℹ️ تم إلغاء الحالة %s من قبل الأم."
	motherCaseCancelledEN = "ℹ️ Your case %s has been cancelled by the volunteer. Send EMERGENCY to request help again."
	motherCaseCancelledAR = "ℹ️ تم إلغاء حالتك %s من قبل المتطوع. أرسل 'طوارئ' لطلب المساعدة مرة أخرى."

	nowAvailableEN = "✅ You are now AVAILABLE. You will receive alerts for emergencies in your zones."
	nowAvailableAR = "✅ أنت الآن متاح. ستتلقى تنبيهات للطوارئ في مناطقك."
	nowBusyEN      = "✅ You are now BUSY. You will not receive new alerts until you set yourself as AVAILABLE."
	nowBusyAR      = "✅ أنت الآن مشغول. لن تتلقى تنبيهات جديدة حتى تضع نفسك متاحاً."
	nowOfflineEN   = "✅ You are now OFFLINE. You will not receive any alerts."
	nowOfflineAR   = "✅ أنت الآن غير متاح. لن تتلقى أي تنبيهات."

	motherStatusEN     = "📊 Your Status:\nID: %s\nCamp: %s, Zone: %s\nRisk: %s\nSend EMERGENCY if you need urgent help."
	motherStatusAR     = "📊 حالتك:\nالرقم: %s\nالمخيم: %s، المنطقة: %s\nالخطورة: %s\nأرسل 'طوارئ' إذا احتجت مساعدة عاجلة."
	latestCaseEN       = "\nLatest case: %s (%s)"
	latestCaseAR       = "\nآخر حالة: %s (%s)"
	volunteerStatusEN  = "📊 Your Status:\nID: %s\nStatus: %s\nSkill: %s, Zones: %s\nActive cases: %d\nCompleted: %d"
	volunteerStatusAR  = "📊 حالتك:\nالرقم: %s\nالحالة: %s\nالمهارة: %s، المناطق: %s\nالحالات النشطة: %d\nالمكتملة: %d"
	notRegisteredAnyEN = "❓ You are not registered. Register as:\n• Mother: REG MOTHER CAMP [name] ZONE [number]\n• Volunteer: REG VOLUNTEER NAME [name] CAMP [name] ZONE [number] SKILL [type]"
	notRegisteredAnyAR = "❓ لم يتم تسجيلك. للتسجيل:\n• أم: تسجيل ام مخيم [اسم] منطقة [رقم]\n• متطوع: تسجيل متطوع الاسم [اسم] مخيم [اسم] منطقة [رقم] مهارة [نوع]"

	unknownEN = "❓ Unknown command. Send COMMANDS for available commands."
	unknownAR = "❓ أمر غير معروف. أرسل 'الأوامر' للحصول على الأوامر المتاحة."
)

func caseIDRequired(lang models.Language, verbEN, verbAR string) string {
	return msg(lang, "❌ Case ID is required. Example: %s HR-0042", "❌ رقم الحالة مطلوب. مثال: %s HR-0042", pickVerb(lang, verbEN, verbAR))
}

func pickVerb(lang models.Language, en, ar string) string {
	if lang.IsArabic() {
		return ar
	}
	return en
}

const helpMenuEN = `📱 SafeBirth Commands:

REGISTRATION:
• REG MOTHER CAMP [name] ZONE [number] DUE [dd/mm] RISK [level]
• REG VOLUNTEER NAME [name] CAMP [name] ZONE [number] SKILL [type]

REQUESTS:
• EMERGENCY - Request urgent help
• HELP - Request non-urgent support

VOLUNTEER:
• ACCEPT HR-xxxx - Accept a case
• COMPLETE HR-xxxx - Complete a case
• CANCEL HR-xxxx - Cancel a case
• AVAILABLE / BUSY / OFFLINE - Change status

• STATUS - Check your status
• COMMANDS - Show this message`

const helpMenuAR = `📱 أوامر SafeBirth:

التسجيل:
• تسجيل ام مخيم [اسم] منطقة [رقم] موعد [يوم/شهر] خطورة [مستوى]
• تسجيل متطوع الاسم [اسم] مخيم [اسم] منطقة [رقم] مهارة [نوع]

الطلبات:
• طوارئ - طلب مساعدة عاجلة
• مساعدة - طلب دعم غير عاجل

المتطوعين:
• قبول HR-xxxx - قبول حالة
• انهاء HR-xxxx - إنهاء حالة
• الغاء HR-xxxx - إلغاء حالة
• متاح / مشغول / غير متاح - تغيير الحالة

• حالة - التحقق من حالتك
• الأوامر - عرض هذه الرسالة`
