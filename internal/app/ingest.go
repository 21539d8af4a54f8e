package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"candid.fyi/huntline/internal/cli"
	"candid.fyi/huntline/internal/config"
	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/logging"
	signalschema "candid.fyi/huntline/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	user := fs.String("user", "", "User the signal belongs to")
	payload := fs.String("payload", "", "Signal payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file (overrides --payload)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*user) == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	sig, err := signalschema.ValidateSignalPayload(json.RawMessage(payloadJSON))
	if err != nil {
		if errors.Is(err, signalschema.ErrNotJobRelated) {
			fmt.Println("ignored: signal is not job related")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	judge, err := buildJudge(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build oracle: %v\n", err)
		return 1
	}
	resolver := buildResolver(cfg, pool, judge, logger)

	outcome, err := resolver.Resolve(ctx, *user, sig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resolution failed: %v\n", err)
		return 1
	}

	fmt.Printf("application_uuid=%s created=%t layer=%s confidence=%s\n",
		outcome.Application.ApplicationUUID, outcome.Created, outcome.Layer, outcome.Confidence)
	fmt.Printf("company=%q role=%q status=%s\n",
		outcome.Application.Company, outcome.Application.RoleTitle, outcome.Application.Status)
	if strings.TrimSpace(outcome.Reasoning) != "" {
		fmt.Printf("reasoning=%s\n", outcome.Reasoning)
	}
	return 0
}
