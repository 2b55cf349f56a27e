// Command reportctl runs report maintenance tasks against the same database
// and cache the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/app"
	reportapp "github.com/orchard/backend/internal/application/report"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/infrastructure/auth"
	"github.com/orchard/backend/internal/infrastructure/config"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/infrastructure/warmup"
	"go.uber.org/zap"
)

func main() {
	var (
		envFile  string
		logLevel string
	)
	flag.StringVar(&envFile, "env-file", ".env", "Optional .env file to load before the environment")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.LoadFrom(envFile)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// token needs no database
	if command == "token" {
		if err := runToken(cfg, args[1:], os.Stdout); err != nil {
			log.Fatal("Failed to issue token", zap.Error(err))
		}
		return
	}

	ctx := context.Background()
	components, err := app.New(ctx, cfg, log, app.Options{SkipPDF: command != "export"})
	if err != nil {
		log.Fatal("Failed to build report engine", zap.Error(err))
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Error("Error closing report engine", zap.Error(err))
		}
	}()

	switch command {
	case "migrate":
		err = components.DB.Migrate(ctx)
		if err == nil {
			log.Info("Farm tables migrated")
		}
	case "export":
		err = runExport(ctx, components, args[1:], log)
	case "invalidate":
		err = runInvalidate(ctx, components, args[1:], log)
	case "warm":
		err = runWarm(ctx, cfg, components, args[1:], log)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Error("Command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "User id (random when empty)")
	role := fs.String("role", string(identity.RoleOwner), "Role: administrator or owner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, err := parseCaller(*user, *role)
	if err != nil {
		return err
	}
	token, expiresAt, err := auth.NewJWTService(cfg.JWT).GenerateAccessToken(caller.UserID, caller.Role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n# user %s, role %s, expires %s\n",
		token, caller.UserID, caller.Role, expiresAt.UTC().Format(time.RFC3339))
	return err
}

func runExport(ctx context.Context, c *app.Components, args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", string(report.FormatSpreadsheet), "Export format: spreadsheet or document")
	from := fs.String("from", "", "Start date (YYYY-MM-DD), orchard reports only")
	to := fs.String("to", "", "End date (YYYY-MM-DD), orchard reports only")
	refresh := fs.Bool("refresh", false, "Recompute instead of serving from cache")
	out := fs.String("out", "", "Write the artifact to this file")
	store := fs.Bool("store", false, "Publish the artifact to the configured storage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: reportctl export [flags] <type> <id>")
	}

	req, err := buildRequest(fs.Arg(0), fs.Arg(1), *from, *to)
	if err != nil {
		return err
	}
	req.ForceRefresh = *refresh
	f, err := report.ParseFormat(*format)
	if err != nil {
		return err
	}

	result, err := c.Service.Export(ctx, identity.SystemCaller(), req, f)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := os.WriteFile(*out, result.Artifact.Data, 0o644); err != nil {
			return err
		}
		log.Info("Artifact written", zap.String("path", *out), zap.Int("bytes", len(result.Artifact.Data)))
	}
	if *store {
		stored, err := c.Pipeline.Publish(ctx, result.Result.Key, result.Artifact)
		if err != nil {
			return err
		}
		log.Info("Artifact published", zap.String("location", stored.Location))
	}
	if *out == "" && !*store {
		_, err = os.Stdout.Write(result.Artifact.Data)
	}
	return err
}

func runInvalidate(ctx context.Context, c *app.Components, args []string, log *zap.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reportctl invalidate <type>")
	}
	reportType, err := report.ParseReportType(args[0])
	if err != nil {
		return err
	}
	if c.Cache.Redis == nil {
		log.Warn("Report cache is local to this process; running servers keep their entries",
			zap.String("backend", c.Cache.Name))
	}
	if err := c.Cache.Versions.Sync(ctx); err != nil {
		return err
	}

	version, err := c.Service.Invalidate(ctx, identity.SystemCaller(), reportType)
	if err != nil {
		return err
	}
	log.Info("Report type invalidated",
		zap.String("type", reportType.String()),
		zap.String("version", version),
	)
	return nil
}

func runWarm(ctx context.Context, cfg *config.Config, c *app.Components, args []string, log *zap.Logger) error {
	warmCfg := cfg.Warmup
	if len(args) > 0 {
		warmCfg.OrchardIDs = args
	}
	if err := c.Cache.Versions.Sync(ctx); err != nil {
		return err
	}

	warmer, err := warmup.NewWarmer(warmCfg, c.Service, c.Repo, log)
	if err != nil {
		return err
	}
	result := warmer.RunOnce(ctx)
	log.Info("Warm-up finished",
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	if result.Failed > 0 {
		return fmt.Errorf("%d orchards failed to warm", result.Failed)
	}
	return nil
}

func parseCaller(user, role string) (identity.Caller, error) {
	r, err := identity.ParseRole(role)
	if err != nil {
		return identity.Caller{}, err
	}
	id := uuid.New()
	if user != "" {
		if id, err = uuid.Parse(user); err != nil {
			return identity.Caller{}, fmt.Errorf("invalid user id %q: %w", user, err)
		}
	}
	return identity.NewCaller(id, r), nil
}

func buildRequest(typ, id, from, to string) (reportapp.Request, error) {
	reportType, err := report.ParseReportType(typ)
	if err != nil {
		return reportapp.Request{}, err
	}
	scopeID, err := uuid.Parse(id)
	if err != nil {
		return reportapp.Request{}, fmt.Errorf("invalid report id %q: %w", id, err)
	}
	req := reportapp.Request{Type: reportType, ID: scopeID}
	if req.DateRange.From, err = parseDay(from); err != nil {
		return reportapp.Request{}, err
	}
	if req.DateRange.To, err = parseDay(to); err != nil {
		return reportapp.Request{}, err
	}
	return req, nil
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: reportctl [flags] <command> [args]

Commands:
  migrate                         Create or update the farm tables
  token [-user id] [-role role]   Issue an access token for local testing
  export [flags] <type> <id>      Render a report (-format, -from, -to, -refresh, -out, -store)
  invalidate <type>               Bump the cache version of a report type
  warm [orchard-id ...]           Recompute orchard reports once

Flags:
`)
	flag.PrintDefaults()
}
