package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vfsindex",
		Usage: "Full-text index and search over a file tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				EnvVars: []string{"VS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Index backend: disk, memory, sqlite or postgres (overrides config)",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Index directory for the disk backend (overrides config)",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			closer := logger.Setup(cfg.Logging)
			c.App.Metadata = map[string]any{"config": cfg, "logCloser": closer}
			return nil
		},
		After: func(c *cli.Context) error {
			if closer, ok := c.App.Metadata["logCloser"].(interface{ Close() error }); ok {
				return closer.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			indexCommand(),
			searchCommand(),
			serveCommand(),
			loadtestCommand(),
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("backend"); v != "" {
		cfg.Index.Backend = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.Index.DataDir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}
