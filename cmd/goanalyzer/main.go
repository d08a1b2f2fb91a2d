// Command goanalyzer runs the Go source analyzer as a Language Server
// Protocol server over stdio, following the teacher's cmd/lci CLI
// shape (urfave/cli app + flags overriding config) adapted to a single
// long-running `serve` action instead of one-shot search/index
// commands.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/goanalyzer/internal/config"
	"github.com/standardbeagle/goanalyzer/internal/logx"
	"github.com/standardbeagle/goanalyzer/internal/server"
)

// Version is set by the release build; left as a placeholder for
// local builds.
var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "goanalyzer",
		Usage:   "Go source structural/concurrency analyzer, served over LSP",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, or error",
			},
			&cli.IntFlag{
				Name:  "cache-size",
				Usage: "maximum parsed trees held in the buffer cache",
			},
			&cli.BoolFlag{
				Name:  "no-semantic-helper",
				Usage: "disable the optional semantic helper subprocess",
			},
			&cli.StringFlag{
				Name:  "semantic-helper-path",
				Usage: "path to the semantic helper binary",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log the raw JSON-RPC traffic glsp exchanges with the client",
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "goanalyzer: %v\n", err)
		os.Exit(1)
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logx.SetLevel(cfg.LogLevel)
	// LSP frames stdout; all diagnostic logging goes to stderr
	// regardless of level, matching the teacher's MCPMode convention
	// of never writing to stdout once a stdio protocol owns it.
	logx.SetOutput(os.Stderr)

	// notify is nil here: over stdio there is a real glsp connection,
	// and the Analyzer captures it off the first request's Context and
	// sends goanalyzer/progress, goanalyzer/indexingStatus and
	// goanalyzer/parseInfo straight to it. The callback only exists so
	// tests can observe notifications without a transport.
	analyzer, err := server.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("starting analyzer: %w", err)
	}
	defer analyzer.Close()

	glspServer := server.NewGLSPServer(analyzer, c.Bool("debug"))
	return glspServer.RunStdio()
}

func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.LogLevel = logx.ParseLevel(c.String("log-level"))
	}
	if c.IsSet("cache-size") {
		cfg.CacheSize = c.Int("cache-size")
	}
	if c.IsSet("no-semantic-helper") {
		cfg.SemanticEnabled = !c.Bool("no-semantic-helper")
	}
	if c.IsSet("semantic-helper-path") {
		cfg.SemanticPath = c.String("semantic-helper-path")
	}
}
