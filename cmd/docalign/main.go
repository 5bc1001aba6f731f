package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/Anya-org/docalign/internal"
	"github.com/Anya-org/docalign/internal/apperr"
	"github.com/Anya-org/docalign/internal/report"
	pkgconfig "github.com/Anya-org/docalign/pkg/config"
)

// Exit codes: 0 success or no drift, 1 validation failure, 2 unexpected
// I/O error.
const (
	exitOK         = 0
	exitValidation = 1
	exitIOError    = 2
)

func loadPipeline(cmd *cli.Command) (*internal.Pipeline, *internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if v := cmd.String("source-root"); v != "" {
		cfg.Source.Root = v
	}
	if v := cmd.String("docs-root"); v != "" {
		cfg.Docs.Root = v
	}

	p, err := internal.NewPipeline(internal.WithConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

func printReport(data report.Data, format string) error {
	out, err := report.Render(data, format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	outcome, err := p.Sync(ctx, cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	data := report.Data{Plan: outcome.Plan, Apply: outcome.Apply, GeneratedAt: time.Now()}
	for _, e := range outcome.ScanErrors {
		data.Errors = append(data.Errors, e.Error())
	}
	if summary := outcome.Apply.ErrorSummary(); summary != nil {
		data.Errors = append(data.Errors, summary.Error())
	}
	return printReport(data, cmd.String("format"))
}

func runValidate(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	plan, err := p.Validate(ctx)
	if plan != nil {
		// A structured summary is printed even on failure so the caller
		// can see the exact diff.
		if printErr := printReport(report.Data{Plan: plan, GeneratedAt: time.Now()}, cmd.String("format")); printErr != nil {
			return printErr
		}
	}
	return err
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	module := cmd.String("module")
	if module == "" {
		return fmt.Errorf("migrate: --module is required")
	}
	migrated, err := p.MigrateModule(ctx, module)
	if err != nil {
		return err
	}
	return printReport(report.Data{Migrated: migrated, GeneratedAt: time.Now()}, cmd.String("format"))
}

func runDuplication(ctx context.Context, cmd *cli.Command) error {
	p, cfg, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("strategy"); v != "" {
		cfg.Duplication.Strategy = v
	}
	if cmd.IsSet("threshold") {
		cfg.Duplication.SimilarityThreshold = cmd.Float("threshold")
	}
	strict := cfg.Duplication.Strict || cmd.Bool("strict")

	groups, err := p.Duplication(ctx, strict)
	if groups != nil || err == nil {
		if printErr := printReport(report.Data{Duplicates: groups, GeneratedAt: time.Now()}, cmd.String("format")); printErr != nil {
			return printErr
		}
	}
	return err
}

func runReport(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	out, err := p.Report(ctx, cmd.String("format"), int(cmd.Int("history")))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runClean(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	removed, err := p.Clean(ctx)
	if err != nil {
		return err
	}
	for _, r := range removed {
		fmt.Fprintf(os.Stdout, "removed %s\n", r)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	p, _, err := loadPipeline(cmd)
	if err != nil {
		return err
	}
	return p.Watch(ctx)
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: markdown or json",
		Value:   report.FormatMarkdown,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "docalign",
		Usage: "Keep a documentation tree in verifiable 1:1 correspondence with a source tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "docalign.yaml",
				Sources: cli.EnvVars("DOCALIGN_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "source-root",
				Usage: "Override the source tree root",
			},
			&cli.StringFlag{
				Name:  "docs-root",
				Usage: "Override the documentation tree root",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Reconcile the doc tree with the source tree",
				Action: runSync,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Plan and report without touching disk",
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "Check alignment read-only; exits 1 on drift",
				Action: runValidate,
				Flags:  []cli.Flag{formatFlag()},
			},
			{
				Name:   "migrate",
				Usage:  "Archive substantive legacy content for one module",
				Action: runMigrate,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:  "module",
						Usage: "Doc module path the legacy content belongs to",
					},
				},
			},
			{
				Name:   "duplication",
				Usage:  "Scan active docs for duplicate content",
				Action: runDuplication,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Exit 1 when duplicates are found",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Detection strategy: exact or similarity",
					},
					&cli.FloatFlag{
						Name:  "threshold",
						Usage: "Similarity threshold for the similarity strategy",
					},
				},
			},
			{
				Name:   "report",
				Usage:  "Render a full alignment and duplication report",
				Action: runReport,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.IntFlag{
						Name:  "history",
						Usage: "Include the last N ledger runs",
					},
				},
			},
			{
				Name:   "clean",
				Usage:  "Remove leftover temp files and empty directories from the docs tree",
				Action: runClean,
			},
			{
				Name:   "watch",
				Usage:  "Re-plan on filesystem changes and log drift",
				Action: runWatch,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		code := exitIOError
		if errors.Is(err, apperr.ErrDrift) || errors.Is(err, apperr.ErrDuplicates) {
			code = exitValidation
		}
		slog.Error("docalign failed", slog.String("error", err.Error()))
		os.Exit(code)
	}
	os.Exit(exitOK)
}
