package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candid.fyi/huntline/internal/cli"
	"candid.fyi/huntline/internal/config"
	"candid.fyi/huntline/internal/consolidate"
	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/logging"
)

func runConsolidate(args []string) int {
	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	user := fs.String("user", "", "User to consolidate")
	allUsers := fs.Bool("all", false, "Consolidate every user with live applications")
	dryRun := fs.Bool("dry-run", false, "Report merges without applying them")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*user) == "" && !*allUsers {
		fmt.Fprintln(os.Stderr, "--user or --all is required")
		return 2
	}
	if strings.TrimSpace(*user) != "" && *allUsers {
		fmt.Fprintln(os.Stderr, "--user and --all are mutually exclusive")
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

	// Ctrl-C finishes the current company group, then stops.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

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

	opts := consolidate.Options{
		DryRun:   *dryRun,
		Progress: func(line string) { fmt.Println(line) },
	}

	if *allUsers {
		results, err := consolidator.RunAll(ctx, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Consolidation failed: %v\n", err)
			return 1
		}
		var groups, merges int
		var emails int64
		for _, result := range results {
			groups += result.GroupsScanned
			merges += result.MergesApplied
			emails += result.EmailsReassigned
		}
		fmt.Printf("users=%d groups=%d merges=%d emails_reassigned=%d dry_run=%t\n",
			len(results), groups, merges, emails, *dryRun)
		return 0
	}

	result, err := consolidator.Run(ctx, *user, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Consolidation failed: %v\n", err)
		return 1
	}

	fmt.Printf("groups=%d merges=%d emails_reassigned=%d group_errors=%d dry_run=%t\n",
		result.GroupsScanned, result.MergesApplied, result.EmailsReassigned, result.GroupErrors, result.DryRun)
	if result.RunUUID != "" {
		fmt.Printf("run_uuid=%s\n", result.RunUUID)
	}
	return 0
}
