package app

import (
	"context"
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
)

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	user := fs.String("user", "", "User to scan")
	kind := fs.String("kind", "duplicates", "Scan kind: duplicates, ghosts or drift")
	apply := fs.Bool("apply", false, "Apply fixes (ghost scan only; default is report-only)")

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

	scanKind := strings.ToLower(strings.TrimSpace(*kind))
	switch scanKind {
	case "duplicates", "ghosts", "drift":
	default:
		fmt.Fprintf(os.Stderr, "unknown scan kind: %s (expected duplicates, ghosts or drift)\n", *kind)
		return 2
	}
	if *apply && scanKind != "ghosts" {
		fmt.Fprintln(os.Stderr, "--apply is only valid with --kind ghosts")
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
	consolidator := buildConsolidator(cfg, pool, judge, logger)

	progress := func(line string) { fmt.Println(line) }

	switch scanKind {
	case "duplicates":
		result, err := consolidator.ScanDuplicates(ctx, *user, progress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Duplicate scan failed: %v\n", err)
			return 1
		}
		fmt.Printf("groups=%d would_merge=%d\n", result.GroupsScanned, result.MergesApplied)
	case "ghosts":
		findings, err := consolidator.ScanGhosts(ctx, *user, !*apply, progress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ghost scan failed: %v\n", err)
			return 1
		}
		marked := 0
		for _, finding := range findings {
			if finding.Marked {
				marked++
			}
		}
		fmt.Printf("stale=%d marked=%d apply=%t\n", len(findings), marked, *apply)
	case "drift":
		findings, err := consolidator.ScanDrift(ctx, *user, progress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Drift scan failed: %v\n", err)
			return 1
		}
		fmt.Printf("drift_findings=%d\n", len(findings))
	}
	return 0
}
