package models

// Language is the language an SMS was written in, and the language replies are sent in.
type Language string

const (
	LanguageEnglish Language = "ENGLISH"
	LanguageArabic  Language = "ARABIC"
)

// IsArabic reports whether l is Arabic.
func (l Language) IsArabic() bool { return l == LanguageArabic }

// ParseLanguage maps a stored language value back to a Language, defaulting to English.
func ParseLanguage(s string) Language {
	if Language(s) == LanguageArabic {
		return LanguageArabic
	}
	return LanguageEnglish
}

// CommandType is the closed set of commands the SMS parser can produce.
type CommandType string

const (
	CommandRegisterMother    CommandType = "REGISTER_MOTHER"
	CommandRegisterVolunteer CommandType = "REGISTER_VOLUNTEER"
	CommandEmergency         CommandType = "EMERGENCY"
	CommandSupport           CommandType = "SUPPORT"
	CommandAcceptCase        CommandType = "ACCEPT_CASE"
	CommandCompleteCase      CommandType = "COMPLETE_CASE"
	CommandCancelCase        CommandType = "CANCEL_CASE"
	CommandAvailable         CommandType = "AVAILABLE"
	CommandBusy              CommandType = "BUSY"
	CommandOffline           CommandType = "OFFLINE"
	CommandStatus            CommandType = "STATUS"
	CommandHelp              CommandType = "HELP"
	CommandUnknown           CommandType = "UNKNOWN"
)

// AllCommandTypes lists every CommandType. Routing code is tested against this list,
// so a new command type must be added here and classified by RequiresMatching.
var AllCommandTypes = []CommandType{
	CommandRegisterMother,
	CommandRegisterVolunteer,
	CommandEmergency,
	CommandSupport,
	CommandAcceptCase,
	CommandCompleteCase,
	CommandCancelCase,
	CommandAvailable,
	CommandBusy,
	CommandOffline,
	CommandStatus,
	CommandHelp,
	CommandUnknown,
}

// RequiresMatching reports whether a command needs authoritative zone/volunteer lookups
// and must therefore be routed to the command handler instead of the conversational fallback.
// The second return value is false for values outside the closed set.
func (c CommandType) RequiresMatching() (bool, bool) {
	switch c {
	case CommandEmergency, CommandSupport, CommandAcceptCase, CommandCompleteCase, CommandCancelCase:
		return true, true
	case CommandRegisterMother, CommandRegisterVolunteer, CommandAvailable, CommandBusy,
		CommandOffline, CommandStatus, CommandHelp, CommandUnknown:
		return false, true
	default:
		return false, false
	}
}

// Parameter keys populated by the parser.
const (
	ParamRaw       = "raw"
	ParamCamp      = "camp"
	ParamZone      = "zone"
	ParamZones     = "zones"
	ParamDueDate   = "dueDate"
	ParamRiskLevel = "riskLevel"
	ParamName      = "name"
	ParamSkillType = "skillType"
	ParamCaseID    = "caseId"
	ParamReason    = "reason"
)

// ParsedCommand is the structured form of one inbound SMS.
type ParsedCommand struct {
	Type       CommandType       `json:"commandType"`
	Language   Language          `json:"detectedLanguage"`
	Parameters map[string]string `json:"parsedParameters"`
	Phone      string            `json:"phone"`
	RawBody    string            `json:"rawBody"`
}

// Param returns the named parameter, or "" when absent.
func (c ParsedCommand) Param(key string) string {
	if c.Parameters == nil {
		return ""
	}
	return c.Parameters[key]
}

// HasParam reports whether the named parameter was extracted.
func (c ParsedCommand) HasParam(key string) bool {
	_, ok := c.Parameters[key]
	return ok
}
