package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/feta/internal"
	"github.com/starford/feta/internal/exportservice"
	pkgconfig "github.com/starford/feta/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOrDefault(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	return cfg, nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := exportservice.Request{
		Root:        cmd.String("root"),
		Destination: cmd.String("out"),
	}
	if cmd.IsSet("tag") {
		tag := cmd.String("tag")
		req.RequiredTag = &tag
	}
	if cmd.IsSet("frontmatter-key") {
		key := cmd.String("frontmatter-key")
		req.RequiredFrontmatterKey = &key
	}
	if cmd.IsSet("html") {
		html := cmd.Bool("html")
		req.RenderHTML = &html
	}

	res, err := internal.Export(ctx, req, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if !res.Outcome.Saved() {
		return fmt.Errorf("export: save %s: %w", res.Outcome.Destination, res.Outcome.Err)
	}
	fmt.Printf("Exported %d notes.\n", res.Export.Count())
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("watch") {
		cfg.Watch.Enabled = true
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, internal.WithConfig(cfg))
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version))
}

func main() {
	// Root flags are inherited by subcommands.
	exportFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "root",
			Usage: "Folder to export, relative to the vault",
		},
		&cli.StringFlag{
			Name:  "tag",
			Usage: "Only export notes carrying this tag (--tag \"\" disables the configured one)",
		},
		&cli.StringFlag{
			Name:  "frontmatter-key",
			Usage: "Only export notes whose frontmatter has this key",
		},
		&cli.BoolFlag{
			Name:  "html",
			Usage: "Export rendered HTML instead of Markdown",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Output file, relative to the vault",
		},
	}

	cmd := &cli.Command{
		Name:    "feta",
		Usage:   "Export a folder of Markdown notes into a single JSON document",
		Version: version,
		Action:  runExport,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault directory (overrides vault.path)",
				Sources: cli.EnvVars("FETA_VAULT"),
			},
		}, exportFlags...),
		Commands: []*cli.Command{
			{
				Name:   "export",
				Usage:  "Export once and exit",
				Action: runExport,
			},
			{
				Name:  "serve",
				Usage: "Serve the HTTP API and export events",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Re-export when notes change",
					},
				},
				Action: runServe,
			},
			{
				Name:   "watch",
				Usage:  "Re-export whenever notes change",
				Action: runWatch,
			},
			{
				Name:   "mcp",
				Usage:  "Serve export tools over MCP on stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
