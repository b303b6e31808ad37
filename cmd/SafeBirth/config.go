package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/SafeBirth/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SafeBirth state data
	DefaultStateDir = "/var/lib/safebirth"
	// DefaultAppDBFileName is the default SQLite database filename for case data
	DefaultAppDBFileName = "safebirth.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the WhatsApp device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"

	DefaultTransport                  = "relay"
	DefaultConversationTimeoutMinutes = 30
	DefaultMatchingWindowMinutes      = 5
	DefaultRelayWriteTimeoutSeconds   = 10
	DefaultLogLevel                   = "debug"
)

// Transports accepted by SMS_TRANSPORT.
var validTransports = []string{"relay", "twilio", "whatsapp"}

// Config holds environment configuration
type Config struct {
	StateDir         string
	ApplicationDBDSN string
	WhatsAppDBDSN    string
	APIAddr          string
	OpenAIKey        string
	OpenAIModel      string
	Transport        string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioWebhookURL string

	ConversationTimeoutMinutes int
	MatchingWindowMinutes      int
	RelayWriteTimeoutSeconds   int
	RelayPublicURL             string
	ShowRelayQR                bool
	LogLevel                   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir            *string
	dbDSN               *string
	waDSN               *string
	apiAddr             *string
	openaiKey           *string
	openaiModel         *string
	transport           *string
	qrOutput            *string
	numeric             *bool
	showRelayQR         *bool
	relayPublicURL      *string
	conversationTimeout *time.Duration
	matchingWindow      *time.Duration
	relayWriteTimeout   *time.Duration
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:                   os.Getenv("SAFEBIRTH_STATE_DIR"),
		ApplicationDBDSN:           os.Getenv("DATABASE_DSN"),
		WhatsAppDBDSN:              os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:                    os.Getenv("API_ADDR"),
		OpenAIKey:                  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:                os.Getenv("OPENAI_MODEL"),
		Transport:                  strings.ToLower(strings.TrimSpace(os.Getenv("SMS_TRANSPORT"))),
		TwilioAccountSID:           os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:            os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:           os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL:           os.Getenv("TWILIO_WEBHOOK_URL"),
		ConversationTimeoutMinutes: util.ParseIntEnv("CONVERSATION_TIMEOUT_MINUTES", DefaultConversationTimeoutMinutes),
		MatchingWindowMinutes:      util.ParseIntEnv("MATCHING_WINDOW_MINUTES", DefaultMatchingWindowMinutes),
		RelayWriteTimeoutSeconds:   util.ParseIntEnv("RELAY_WRITE_TIMEOUT_SECONDS", DefaultRelayWriteTimeoutSeconds),
		RelayPublicURL:             os.Getenv("RELAY_PUBLIC_URL"),
		ShowRelayQR:                util.ParseBoolEnv("SHOW_RELAY_QR", false),
		LogLevel:                   os.Getenv("LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SAFEBIRTH_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// DATABASE_URL is accepted when DATABASE_DSN is not set
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	// The WhatsApp device store never shares the application database
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}

	if config.Transport == "" {
		config.Transport = DefaultTransport
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	slog.Debug("environment variables loaded",
		"SAFEBIRTH_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SMS_TRANSPORT", config.Transport,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_WEBHOOK_URL", config.TwilioWebhookURL,
		"CONVERSATION_TIMEOUT_MINUTES", config.ConversationTimeoutMinutes,
		"MATCHING_WINDOW_MINUTES", config.MatchingWindowMinutes,
		"SHOW_RELAY_QR", config.ShowRelayQR,
		"LOG_LEVEL", config.LogLevel)

	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, config Config, args []string) (Flags, error) {
	flags := Flags{
		stateDir:            fs.String("state-dir", config.StateDir, "state directory for SafeBirth data (overrides $SAFEBIRTH_STATE_DIR)"),
		dbDSN:               fs.String("db-dsn", config.ApplicationDBDSN, "case database DSN, SQLite path or Postgres URL (overrides $DATABASE_DSN or $DATABASE_URL)"),
		waDSN:               fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "WhatsApp device store DSN (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:             fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		openaiKey:           fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:         fs.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		transport:           fs.String("transport", config.Transport, "fallback SMS transport: relay, twilio or whatsapp (overrides $SMS_TRANSPORT)"),
		qrOutput:            fs.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:             fs.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		showRelayQR:         fs.Bool("show-relay-qr", config.ShowRelayQR, "print the relay pairing QR code on startup (overrides $SHOW_RELAY_QR)"),
		relayPublicURL:      fs.String("relay-public-url", config.RelayPublicURL, "public base URL the gateway phone connects to (overrides $RELAY_PUBLIC_URL)"),
		conversationTimeout: fs.Duration("conversation-timeout", time.Duration(config.ConversationTimeoutMinutes)*time.Minute, "inactivity window for conversation state"),
		matchingWindow:      fs.Duration("matching-window", time.Duration(config.MatchingWindowMinutes)*time.Minute, "wait before re-matching a pending case"),
		relayWriteTimeout:   fs.Duration("relay-write-timeout", time.Duration(config.RelayWriteTimeoutSeconds)*time.Second, "write deadline for relay frames"),
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	// A relocated state dir moves the default databases with it
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.waDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated default DSNs for state directory", "state_dir", *flags.stateDir)
	}

	*flags.transport = strings.ToLower(*flags.transport)
	if !isValidTransport(*flags.transport) {
		return flags, fmt.Errorf("unsupported SMS transport %q (want one of %s)", *flags.transport, strings.Join(validTransports, ", "))
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"transport", *flags.transport,
		"showRelayQR", *flags.showRelayQR,
		"conversationTimeout", *flags.conversationTimeout,
		"matchingWindow", *flags.matchingWindow)
	return flags, nil
}

func isValidTransport(t string) bool {
	for _, v := range validTransports {
		if t == v {
			return true
		}
	}
	return false
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to debug.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelDebug
	}
	return level
}
