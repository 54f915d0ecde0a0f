package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/docreg/internal"
	pkgconfig "github.com/starford/docreg/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Registry.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Check(ctx,
		internal.WithConfig(cfg),
		internal.WithOutput(os.Stdout),
		internal.WithStrict(cmd.Bool("strict")),
	)
}

func main() {
	cmd := &cli.Command{
		Name:    "docreg",
		Usage:   "Read-only registry of agent, command, skill and template documents with reference resolution",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Document root (overrides registry.root)",
				Sources: cli.EnvVars("DOCREG_ROOT"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API, watching the root for changes",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve registry tools over MCP on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:   "check",
				Usage:  "Load the root once and report load errors and diagnostics",
				Action: check,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Also fail when dangling references or cycles exist",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
