// Package parser turns raw bilingual (English/Arabic) SMS text into typed commands.
//
// Parsing never fails and never touches domain state: unrecognized input becomes
// an UNKNOWN command carrying the raw body, and malformed parameter lists populate
// only the parameters that could be extracted.
package parser

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/BTreeMap/SafeBirth/internal/models"
	"github.com/BTreeMap/SafeBirth/internal/util"
	"golang.org/x/text/unicode/norm"
)

// ArabicThreshold is the share of Arabic letters above which a message is tagged ARABIC.
const ArabicThreshold = 0.2

var caseIDPattern = regexp.MustCompile(`(?i)(?:HR\s*-?\s*)?(\d+)`)

// Parser parses SMS bodies. The zero value is not usable; use New.
type Parser struct {
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the clock used to resolve due dates without a year.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse parses body using the default parser.
func Parse(phone, body string) models.ParsedCommand {
	return defaultParser.Parse(phone, body)
}

// Parse turns one SMS body into a ParsedCommand.
func (p *Parser) Parse(phone, body string) models.ParsedCommand {
	cmd := models.ParsedCommand{
		Type:       models.CommandUnknown,
		Language:   models.LanguageEnglish,
		Parameters: make(map[string]string),
		Phone:      phone,
		RawBody:    body,
	}

	text := strings.TrimSpace(norm.NFC.String(body))
	if text == "" {
		slog.Debug("Parser.Parse: empty message", "from", util.MaskPhone(phone))
		cmd.Parameters[models.ParamRaw] = body
		return cmd
	}
	cmd.Language = DetectLanguage(text)

	orig, upper := tokenize(text)
	if len(upper) > 0 {
		cmd.Type = p.classify(orig, upper, cmd.Parameters)
	}
	if cmd.Type == models.CommandUnknown {
		cmd.Parameters[models.ParamRaw] = body
	}

	slog.Debug("Parser.Parse: parsed command", "from", util.MaskPhone(phone), "type", cmd.Type, "language", cmd.Language, "params", len(cmd.Parameters))
	return cmd
}

func (p *Parser) classify(orig, upper []string, params map[string]string) models.CommandType {
	first := upper[0]
	switch {
	case first == "REG" || first == "REGISTER":
		if len(upper) < 2 {
			return models.CommandUnknown
		}
		switch upper[1] {
		case "MOTHER":
			p.extractMother(orig[2:], upper[2:], params)
			return models.CommandRegisterMother
		case "VOLUNTEER":
			extractVolunteer(orig[2:], upper[2:], params)
			return models.CommandRegisterVolunteer
		}
		return models.CommandUnknown
	case emergencyWords[first]:
		return models.CommandEmergency
	case first == "ACCEPT":
		extractCaseID(orig[1:], params, false)
		return models.CommandAcceptCase
	case first == "COMPLETE":
		extractCaseID(orig[1:], params, false)
		return models.CommandCompleteCase
	case first == "CANCEL":
		extractCaseID(orig[1:], params, true)
		return models.CommandCancelCase
	}

	if len(upper) == 1 {
		if ct, ok := singleWordCommands[first]; ok {
			return ct
		}
	}
	return models.CommandUnknown
}

// DetectLanguage tags text ARABIC when more than ArabicThreshold of its letters are Arabic.
func DetectLanguage(text string) models.Language {
	var letters, arabic int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters > 0 && float64(arabic) > float64(letters)*ArabicThreshold {
		return models.LanguageArabic
	}
	return models.LanguageEnglish
}

// FoldDigits rewrites Arabic-Indic and Eastern Arabic-Indic digits to ASCII.
func FoldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// tokenize splits text on whitespace and list separators, rewrites Arabic keywords to
// their English equivalents, and returns the tokens in original and upper case.
func tokenize(text string) (orig, upper []string) {
	text = FoldDigits(text)
	text = strings.NewReplacer(",", " ", "،", " ", ";", " ", "؛", " ").Replace(text)
	fields := strings.Fields(text)

	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if i+1 < len(fields) {
			if kw, ok := arabicPhrases[[2]string{tok, fields[i+1]}]; ok {
				orig = append(orig, kw)
				upper = append(upper, kw)
				i++
				continue
			}
		}
		if kw, ok := arabicKeywords[tok]; ok {
			tok = kw
		}
		orig = append(orig, tok)
		upper = append(upper, strings.ToUpper(tok))
	}
	return orig, upper
}

// extractCaseID finds the first case number in tokens. With withReason, the text after the
// case number is stored as the cancellation reason.
func extractCaseID(tokens []string, params map[string]string, withReason bool) {
	joined := strings.Join(tokens, " ")
	loc := caseIDPattern.FindStringSubmatchIndex(joined)
	if loc == nil {
		return
	}
	if id := models.NormalizeCaseID(joined[loc[2]:loc[3]]); id != "" {
		params[models.ParamCaseID] = id
	}
	if withReason {
		if reason := strings.TrimSpace(joined[loc[1]:]); reason != "" {
			params[models.ParamReason] = reason
		}
	}
}
