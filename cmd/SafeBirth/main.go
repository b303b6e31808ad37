package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/SafeBirth/internal/api"
	"github.com/BTreeMap/SafeBirth/internal/flow"
	"github.com/BTreeMap/SafeBirth/internal/genai"
	"github.com/BTreeMap/SafeBirth/internal/handler"
	"github.com/BTreeMap/SafeBirth/internal/lockfile"
	"github.com/BTreeMap/SafeBirth/internal/matching"
	"github.com/BTreeMap/SafeBirth/internal/messaging"
	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/recovery"
	"github.com/BTreeMap/SafeBirth/internal/relay"
	"github.com/BTreeMap/SafeBirth/internal/scheduler"
	"github.com/BTreeMap/SafeBirth/internal/store"
	"github.com/BTreeMap/SafeBirth/internal/twiliosms"
	"github.com/BTreeMap/SafeBirth/internal/util"
	"github.com/BTreeMap/SafeBirth/internal/whatsapp"
)

func main() {
	// Debug until LOG_LEVEL is known
	initializeLogger(slog.LevelDebug)

	config := loadEnvironmentConfig()
	initializeLogger(parseLogLevel(config.LogLevel))

	flags, err := parseCommandLineFlags(flag.CommandLine, config, os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SafeBirth", "transport", *flags.transport, "state_dir", *flags.stateDir)
	if err := run(ctx, config, flags); err != nil {
		slog.Error("SafeBirth failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SafeBirth exited successfully")
}

// initializeLogger sets up structured logging at level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "error", err)
		}
	}()

	if err := ensureDatabaseDir(*flags.dbDSN); err != nil {
		return err
	}
	st, err := store.Open(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	states := flow.NewStateStore(flow.WithConversationTimeout(*flags.conversationTimeout))
	timer := flow.NewSimpleTimer()
	defer timer.Stop()

	// The relay handler is bound once the router exists
	var router *messaging.Router
	hub := relay.NewHub(func(ctx context.Context, sender, message, messageID string) string {
		return router.HandleInbound(ctx, sender, message, messageID)
	}, relay.WithWriteTimeout(*flags.relayWriteTimeout))
	defer hub.Close()

	chain := messaging.NewChainSender().Add(api.ModeRelay, messaging.NewRelayService(hub))
	fallback, err := buildFallbackService(config, flags)
	if err != nil {
		return err
	}
	var services []messaging.Service
	if fallback != nil {
		chain.Add(*flags.transport, fallback)
		services = append(services, fallback)
	}

	engine := matching.NewEngine(st, st, notify.NewDispatcher(chain))
	rematcher := handler.NewRematcher(st, engine, timer,
		handler.WithMatchingWindow(*flags.matchingWindow),
		handler.WithRematchStates(states))
	h := handler.New(st, engine, chain,
		handler.WithStateStore(states),
		handler.WithRematcher(rematcher))

	var convOpts []flow.ServiceOption
	if gen := buildGenerator(flags); gen != nil {
		convOpts = append(convOpts, flow.WithGenerator(gen))
	}
	conv := flow.NewConversationService(states, h, st, convOpts...)
	router = messaging.NewRouter(h, conv, messaging.WithDedup(st))

	rm := recovery.NewRecoveryManager(st)
	rm.RegisterRematchRecovery(rematcher.Schedule)
	rm.RegisterRecoverable(recovery.PendingCaseRecovery{})
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Warn("Recovery finished with errors", "error", err)
	}

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s transport: %w", *flags.transport, err)
		}
		defer svc.Stop()
		go router.Consume(ctx, svc)
		go drainReceipts(ctx, svc)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	maintenance := scheduler.Maintenance{States: states, Relay: hub}
	if err := maintenance.Register(sched); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}

	server := api.NewServer(router, hub, buildAPIOptions(config, flags)...)
	if *flags.showRelayQR {
		if _, err := api.PrintRelayQR(os.Stdout, *flags.relayPublicURL); err != nil {
			slog.Warn("Failed to print relay pairing QR", "error", err)
		}
	}
	slog.Info("SafeBirth ready", "transports", chain.Len(), "jobs", sched.Jobs())
	return server.ListenAndServe(ctx)
}

// ensureDatabaseDir creates the parent directory of a file-based DSN
func ensureDatabaseDir(dsn string) error {
	if store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	slog.Debug("Creating directory for file-based database", "dir", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// buildStoreOptions selects the store backend from the DSN
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildFallbackService creates the transport used when no relay gateway is connected.
// It returns nil when the relay is the only transport.
func buildFallbackService(config Config, flags Flags) (messaging.Service, error) {
	switch *flags.transport {
	case api.ModeTwilio:
		client, err := twiliosms.NewClient(
			twiliosms.WithAccountSID(config.TwilioAccountSID),
			twiliosms.WithAuthToken(config.TwilioAuthToken),
			twiliosms.WithFromNumber(config.TwilioFromNumber))
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case api.ModeWhatsApp:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, nil
	}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildGenerator returns the generated-reply client, or nil when no API key is set.
func buildGenerator(flags Flags) flow.Generator {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key, unrecognized messages get the static help reply")
		return nil
	}
	opts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		opts = append(opts, genai.WithModel(*flags.openaiModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Warn("Failed to create GenAI client, continuing without generated replies", "error", err)
		return nil
	}
	return client
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	apiOpts := []api.Option{api.WithMode(*flags.transport)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.TwilioAuthToken != "" && config.TwilioWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithTwilioSignature(config.TwilioAuthToken, config.TwilioWebhookURL))
	}
	return apiOpts
}

// drainReceipts logs delivery receipts so the service never blocks on a full channel.
func drainReceipts(ctx context.Context, svc messaging.Service) {
	receipts := svc.Receipts()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-receipts:
			if !ok {
				return
			}
			slog.Debug("Delivery receipt", "to", util.MaskPhone(r.To), "status", r.Status)
		}
	}
}
