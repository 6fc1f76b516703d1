package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/marketcycle/orchestrator/internal/app"
	"github.com/marketcycle/orchestrator/internal/config"
	"github.com/marketcycle/orchestrator/internal/journal"
	"github.com/marketcycle/orchestrator/internal/metrics"
	"github.com/marketcycle/orchestrator/internal/portfolio"
)

// Exit codes per spec.md §6: 0 success, 1 any other error, 2 invalid
// configuration, 3 a fatal provider auth failure discovered at startup.
const (
	exitOK            = 0
	exitError         = 1
	exitConfigInvalid = 2
	exitAuthFailure   = 3
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	config.InitLogger(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "console"))

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitError)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	switch cmd {
	case "run":
		code = runCmd(args)
	case "trigger":
		code = triggerCmd(args)
	case "validate-config":
		code = validateConfigCmd(args)
	case "dump-journal":
		code = dumpJournalCmd(args)
	default:
		usage()
		code = exitError
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: orchestrator <run|trigger <pair>|validate-config|dump-journal --since <ts>> [flags]")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig reads the raw YAML first so a malformed file reports a
// yaml.v3 syntax error rather than viper's less specific one, then
// delegates to config.Load for defaults, env overrides, and validation.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		var probe map[string]any
		if err := yaml.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("config: %s is not valid YAML: %w", path, err)
		}
	}
	return config.Load(path)
}

// reportConfigError prints a ConfigInvalid failure the way validate-config
// and every other subcommand that loads configuration report it.
func reportConfigError(err error) int {
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprint(os.Stderr, verrs.Error())
	} else {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}
	return exitConfigInvalid
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	log := config.NewLogger("main")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return reportConfigError(err)
	}

	if _, err := config.LoadAllProviderCredentials(cfg.Providers); err != nil {
		log.Error().Err(err).Msg("fatal: provider credentials missing at startup")
		return exitAuthFailure
	}

	// No live exchange connector ships with the core — providers are an
	// external collaborator's concern (spec.md §1). Until one is wired in
	// here, the registry runs with zero bound implementations and every
	// cycle degrades to DataUnavailable, which is still a valid, observable
	// run of the decision pipeline end to end.
	application, err := app.New(cfg, app.Providers{}, portfolio.NewFake(portfolio.State{}), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire application")
		return exitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect analyst collaborators")
		application.Shutdown()
		return exitError
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log)
		metricsServer.SetReporter(application)
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start metrics server")
			application.Shutdown()
			return exitError
		}
	}

	application.Scheduler.Start()
	log.Info().Int("pairs", len(application.Pairs)).Msg("orchestrator running")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")

	application.Shutdown()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server did not shut down cleanly")
		}
	}
	return exitOK
}

func triggerCmd(args []string) int {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: orchestrator trigger <pair>  (e.g. BTC/USD)")
		return exitError
	}
	pairArg := fs.Arg(0)

	log := config.NewLogger("main")
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return reportConfigError(err)
	}

	application, err := app.New(cfg, app.Providers{}, portfolio.NewFake(portfolio.State{}), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire application")
		return exitError
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := application.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect analyst collaborators")
		return exitError
	}

	pair, err := application.PairByName(pairArg)
	if err != nil {
		log.Error().Err(err).Msg("unknown pair")
		return exitError
	}
	if err := application.Scheduler.TriggerNow(pair); err != nil {
		log.Error().Err(err).Msg("trigger failed")
		return exitError
	}
	log.Info().Str("pair", pair.String()).Msg("triggered one cycle")
	return exitOK
}

func validateConfigCmd(args []string) int {
	fs := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	if _, err := loadConfig(*configPath); err != nil {
		return reportConfigError(err)
	}
	fmt.Println("configuration is valid")
	return exitOK
}

func dumpJournalCmd(args []string) int {
	fs := flag.NewFlagSet("dump-journal", flag.ContinueOnError)
	journalPath := fs.String("path", "", "path to the journal JSONL file (defaults to journal.path from config)")
	configPath := fs.String("config", "", "path to config.yaml")
	since := fs.String("since", "", "RFC3339 timestamp; only records at or after this fire_time are printed")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	path := *journalPath
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return reportConfigError(err)
		}
		path = cfg.Journal.Path
	}

	sinceTime := time.Time{}
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "--since must be RFC3339: %v\n", err)
			return exitError
		}
		sinceTime = t
	}

	records, err := journal.ReadSince(path, sinceTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump-journal: %v\n", err)
		return exitError
	}

	enc := json.NewEncoder(os.Stdout)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			fmt.Fprintf(os.Stderr, "dump-journal: %v\n", err)
			return exitError
		}
	}
	return exitOK
}
