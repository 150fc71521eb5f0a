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

	"horse.fit/tgewatch/internal/cli"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/globaltime"
	"horse.fit/tgewatch/internal/logging"
	registryschema "horse.fit/tgewatch/schema"
)

func runRegistry(args []string) int {
	if len(args) == 0 {
		printRegistryUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printRegistryUsage()
		return 0
	case "validate":
		return runRegistryValidate(args[1:])
	case "import":
		return runRegistryImport(args[1:])
	case "list":
		return runRegistryList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown registry subcommand: %s\n\n", args[0])
		printRegistryUsage()
		return 2
	}
}

func printRegistryUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tgewatch registry <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  validate  Check an import file against the v1 registry schema")
	fmt.Fprintln(os.Stderr, "  import    Validate and upsert companies, keywords, and sources")
	fmt.Fprintln(os.Stderr, "  list      Print the current registry as JSON")
}

func runRegistryValidate(args []string) int {
	fs := flag.NewFlagSet("registry validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	file := fs.String("file", "", "Path to the registry import JSON file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	doc, code := loadImportDocument(*file)
	if code != 0 {
		return code
	}

	fmt.Printf(
		"ok: %s is valid (companies=%d keywords=%d sources=%d)\n",
		*file, len(doc.Companies), len(doc.Keywords), len(doc.Sources),
	)
	return 0
}

func runRegistryImport(args []string) int {
	fs := flag.NewFlagSet("registry import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to the registry import JSON file")
	timeout := fs.Duration("timeout", 30*time.Second, "Import timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	doc, code := loadImportDocument(*file)
	if code != 0 {
		return code
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
		logger.Error().Err(err).Msg("import failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	now := globaltime.UTC()

	for _, company := range doc.Companies {
		aliases, err := json.Marshal(nonNilStrings(company.Aliases))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode aliases for %q: %v\n", company.Name, err)
			return 1
		}
		tokens, err := json.Marshal(nonNilStrings(company.Tokens))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode tokens for %q: %v\n", company.Name, err)
			return 1
		}
		priority := company.Priority
		if priority == "" {
			priority = "medium"
		}
		if err := pool.UpsertCompany(ctx, company.Name, aliases, tokens, priority, now); err != nil {
			logger.Error().Err(err).Str("company", company.Name).Msg("company upsert failed")
			fmt.Fprintf(os.Stderr, "Failed to upsert company %q: %v\n", company.Name, err)
			return 1
		}
	}

	for _, keyword := range doc.Keywords {
		if err := pool.UpsertKeywordRule(ctx, keyword.Tier, keyword.Phrase, now); err != nil {
			logger.Error().Err(err).Str("phrase", keyword.Phrase).Msg("keyword upsert failed")
			fmt.Fprintf(os.Stderr, "Failed to upsert keyword %q: %v\n", keyword.Phrase, err)
			return 1
		}
	}

	for _, source := range doc.Sources {
		tier := int16(3)
		if source.PriorityTier != nil {
			tier = int16(*source.PriorityTier)
		}
		if err := pool.UpsertSource(ctx, source.Kind, source.Label, source.Endpoint, source.Account, tier, now); err != nil {
			logger.Error().Err(err).Str("label", source.Label).Msg("source upsert failed")
			fmt.Fprintf(os.Stderr, "Failed to upsert source %q: %v\n", source.Label, err)
			return 1
		}
	}

	logger.Info().
		Int("companies", len(doc.Companies)).
		Int("keywords", len(doc.Keywords)).
		Int("sources", len(doc.Sources)).
		Msg("registry import completed")
	fmt.Printf(
		"ok: imported companies=%d keywords=%d sources=%d\n",
		len(doc.Companies), len(doc.Keywords), len(doc.Sources),
	)
	return 0
}

func runRegistryList(args []string) int {
	fs := flag.NewFlagSet("registry list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Query timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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
		logger.Error().Err(err).Msg("list failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	companies, err := pool.ListEnabledCompanies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load companies: %v\n", err)
		return 1
	}
	keywords, err := pool.ListEnabledKeywordRules(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load keyword rules: %v\n", err)
		return 1
	}
	sources, err := pool.ListSources(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load sources: %v\n", err)
		return 1
	}

	return printJSON(map[string]any{
		"companies": companies,
		"keywords":  keywords,
		"sources":   sources,
	})
}

func loadImportDocument(path string) (*registryschema.ImportDocument, int) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return nil, 2
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", trimmed, err)
		return nil, 1
	}

	doc, err := registryschema.ValidateImportPayload(json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", trimmed, err)
		return nil, 1
	}
	return doc, 0
}

func printJSON(value any) int {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		return 1
	}
	return 0
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
