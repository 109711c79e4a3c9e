package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/okra-platform/schemagen/internal/commands"
	"github.com/okra-platform/schemagen/internal/diag"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	ctrl := &commands.Controller{
		Flags: &commands.Flags{},
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "schemagen",
		Usage:   "Generate API schemas, typed models, table definitions and resolver contracts from declarative entity files",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("SCHEMAGEN_LOG_LEVEL"),
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to schemagen.yaml (default: search upward from the working directory)",
				Sources: cli.EnvVars("SCHEMAGEN_CONFIG"),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)
			ctrl.Flags.LogLevel = c.String("log-level")
			ctrl.Flags.Config = c.String("config")
			ctrl.Logger = log.Logger

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Render every configured artifact",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "only",
						Usage: "restrict generation to one kind (model-python, model-ts, schema-doc, table-definition, resolver-contract)",
					},
					&cli.BoolFlag{
						Name:  "check",
						Usage: "render and compare without writing; fail when any file would change",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite generated files that were edited by hand",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "regenerate whenever schema files, templates or the configuration change",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Generate(ctx, commands.GenerateOptions{
						Only:  c.String("only"),
						Check: c.Bool("check"),
						Force: c.Bool("force"),
						Watch: c.Bool("watch"),
					})
				},
			},
			{
				Name:  "init",
				Usage: "Create schemagen.yaml and an example entity",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Init(ctx)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		report(err)
		stop()
		os.Exit(1)
	}
}

// report prints one line per diagnostic so every problem is visible at once
func report(err error) {
	var de *diag.Error
	if !errors.As(err, &de) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	for _, d := range de.Diagnostics {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	fmt.Fprintf(os.Stderr, "%d problem(s) found\n", len(de.Diagnostics))
}
