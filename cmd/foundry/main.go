package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agent-foundry/internal/adapter/audit"
	"agent-foundry/internal/adapter/httpapi"
	"agent-foundry/internal/adapter/skill"
	"agent-foundry/internal/adapter/store"
	"agent-foundry/internal/adapter/toolgateway"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/logger"
	"agent-foundry/internal/infra/tracer"
	"agent-foundry/internal/usecase"
	"agent-foundry/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") || os.Args[1] == "serve" {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	case "encrypt":
		if err := runEncrypt(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'foundry --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`foundry - agent foundry API server

USAGE:
    foundry [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the HTTP API (default)
    doctor      Run health checks on your setup
    encrypt     Encrypt a secret for config.yaml (needs FOUNDRY_CONFIG_KEY)

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Credentials: .env.local, .env (GEMINI_API_KEY, OPENAI_API_KEY)
    Environment: FOUNDRY_* variables override config`)
}

// configPath resolves --config, then FOUNDRY_CONFIG, then ./config.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("FOUNDRY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	skills := skill.Builtin()
	extra, err := skill.LoadDir(cfg.Skills.Dir, skills)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}
	catalog := skill.NewCatalog(append(skills, extra...)...)
	log.Info("skill catalog ready", "skills", len(catalog.List()), "custom", len(extra))

	gw := toolgateway.New(cfg.Gateway, logger.Component(log, "toolgateway"))
	if cfg.Gateway.DiscoverOnStart {
		if err := gw.Discover(ctx); err != nil {
			log.Warn("tool gateway discovery failed, continuing with platform tools only", "error", err)
		}
	}

	llmc, err := initLLM(ctx, cfg, catalog, gw, log)
	if err != nil {
		return err
	}

	bus := eventbus.New(logger.Component(log, "events"))
	closeAudit := func() {}
	if cfg.Audit.Enabled {
		if closeAudit, err = openAudit(cfg.Audit, bus, logger.Component(log, "audit")); err != nil {
			bus.Close()
			return err
		}
	}
	defer func() {
		bus.Close()
		closeAudit()
	}()

	locks := usecase.NewAgentLocker()
	agents := usecase.NewAgentService(st, catalog, logger.Component(log, "agents"),
		usecase.WithAgentLocker(locks),
		usecase.WithAgentEvents(bus),
	)
	chat := usecase.NewChatService(st, llmc.Router, llmc.Pricing, logger.Component(log, "chat"),
		usecase.WithChatLocker(locks),
		usecase.WithChatEvents(bus),
	)

	deps := httpapi.Deps{
		Agents:    agents,
		Chat:      chat,
		Catalog:   catalog,
		Gateway:   gw,
		Providers: llmc.Router,
	}
	if llmc.Ollama != nil {
		deps.Ollama = llmc.Ollama
	}

	srv := httpapi.NewServer(cfg.HTTP, deps, logger.Component(log, "api"))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// openAudit opens the activity log, compacts it once and subscribes it to
// bus. The returned func closes the file; call it after the bus is closed.
func openAudit(cfg config.AuditConfig, bus *eventbus.Bus, log *slog.Logger) (func(), error) {
	maxSize, err := audit.ParseSize(cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("audit max_size: %w", err)
	}
	al, err := audit.Open(cfg.Path, audit.Retention{MaxAge: cfg.MaxAge, MaxSize: maxSize}, log)
	if err != nil {
		return nil, err
	}
	if removed, err := al.Compact(time.Now().UTC()); err != nil {
		log.Warn("audit compaction failed", "error", err)
	} else if removed > 0 {
		log.Info("audit log compacted", "removed", removed)
	}
	al.Attach(bus)
	log.Info("audit log enabled", "path", cfg.Path)
	return func() {
		if err := al.Close(); err != nil {
			log.Warn("audit close", "error", err)
		}
	}, nil
}

// runEncrypt prints the enc: form of each argument for use in config.yaml.
func runEncrypt(args []string) error {
	passphrase := os.Getenv("FOUNDRY_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("FOUNDRY_CONFIG_KEY is not set")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: foundry encrypt VALUE...")
	}
	for _, v := range args {
		enc, err := config.EncryptValue(v, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("enc:%s\n", enc)
	}
	return nil
}
