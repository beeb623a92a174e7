package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mooc-session-miner/internal/app"
	"github.com/noah-isme/mooc-session-miner/internal/manifest"
	"github.com/noah-isme/mooc-session-miner/internal/models"
	"github.com/noah-isme/mooc-session-miner/internal/service"
	"github.com/noah-isme/mooc-session-miner/pkg/config"
	"github.com/noah-isme/mooc-session-miner/pkg/logger"
	"github.com/noah-isme/mooc-session-miner/pkg/storage"
)

const usage = `usage: session-miner <command> [flags]

commands:
  run      segment every course run of a manifest
  export   write a collection to CSV
  cleanup  delete old CSV exports
  token    issue an operator token for the runs API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = runCommand(cfg, os.Args[2:])
	case "export":
		code = exportCommand(cfg, os.Args[2:])
	case "cleanup":
		code = cleanupCommand(cfg, os.Args[2:])
	case "token":
		code = tokenCommand(cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

func runCommand(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	manifestPath := fs.String("manifest", cfg.Pipeline.ManifestPath, "Path to the run manifest (YAML)")
	only := fs.String("only", "", "Process only the run with this name")
	_ = fs.Parse(args)

	validate := validator.New()
	m, err := manifest.Load(*manifestPath, validate)
	if err != nil {
		log.Printf("load manifest: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a, closeApp, err := wire(ctx, cfg)
	if err != nil {
		log.Printf("wire services: %v", err)
		return 1
	}
	defer closeApp()

	var results []models.Run
	for _, req := range m.Runs {
		if *only != "" && req.Name != *only {
			continue
		}
		run, err := a.Runs.Execute(ctx, req)
		if err != nil {
			log.Printf("run %s: %v", req.Name, err)
			return 1
		}
		results = append(results, *run)
		if ctx.Err() != nil {
			break
		}
	}

	printReport(os.Stdout, results)
	for _, run := range results {
		if run.Status != models.RunStatusFinished {
			return 1
		}
	}
	return 0
}

func exportCommand(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	collection := fs.String("collection", models.CollectionSessions, "Collection to export")
	filter := fs.String("filter", "", `JSON containment filter, e.g. {"course_learner_id":"..."}`)
	limit := fs.Int("limit", 0, "Maximum rows, 0 for all")
	_ = fs.Parse(args)

	req := service.ExportRequest{Collection: *collection, Limit: *limit}
	if *filter != "" {
		if err := json.Unmarshal([]byte(*filter), &req.Filter); err != nil {
			log.Printf("parse filter: %v", err)
			return 2
		}
	}

	ctx := context.Background()
	a, closeApp, err := wire(ctx, cfg)
	if err != nil {
		log.Printf("wire services: %v", err)
		return 1
	}
	defer closeApp()

	result, err := a.Exports.Export(ctx, req)
	if err != nil {
		log.Printf("export %s: %v", *collection, err)
		return 1
	}
	fmt.Printf("%d rows written to %s\n", result.Rows, result.RelativePath)
	return 0
}

func cleanupCommand(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 7*24*time.Hour, "Delete exports older than this")
	_ = fs.Parse(args)

	files, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		log.Printf("open export dir: %v", err)
		return 1
	}
	deleted, err := service.NewExportService(nil, files, nil, nil).Cleanup(*olderThan)
	if err != nil {
		log.Printf("cleanup: %v", err)
		return 1
	}
	for _, name := range deleted {
		fmt.Println(name)
	}
	return 0
}

func tokenCommand(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "operator", "Token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = fs.Parse(args)

	token, expires, err := service.NewTokenService(cfg.JWT.Secret).Issue(*subject, *ttl)
	if err != nil {
		log.Printf("issue token: %v", err)
		return 1
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return 0
}

func wire(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		_ = logr.Sync()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		_ = logr.Sync()
	}, nil
}

func printReport(w io.Writer, runs []models.Run) {
	fmt.Fprintln(w, "Course Run Report")
	fmt.Fprintln(w, "=================")
	for _, run := range runs {
		var took time.Duration
		if run.StartedAt != nil && run.FinishedAt != nil {
			took = run.FinishedAt.Sub(*run.StartedAt).Round(time.Millisecond)
		}
		fmt.Fprintf(w, "[%s] %s (%s)\n", run.Status, run.Request.Name, took)
		fmt.Fprintf(w, "  Files: %d | Events: %d | Posts: %d | Unresolved: %d | Late: %d\n",
			run.Stats.Files, run.Stats.Events, run.Stats.Posts, run.Stats.Unresolved, run.Stats.Late)
		if len(run.Stats.Malformed) > 0 {
			fmt.Fprintf(w, "  Malformed: %s\n", formatCounts(run.Stats.Malformed))
		}
		if len(run.Stats.Written) > 0 {
			fmt.Fprintf(w, "  Written: %s\n", formatCounts(run.Stats.Written))
		}
		if len(run.Stats.Failed) > 0 {
			fmt.Fprintf(w, "  Failed: %s\n", formatCounts(run.Stats.Failed))
		}
		if run.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", run.Error)
		}
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}
