package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/iotedge/kube-agent/pkg/config"
)

// version is set at build time via -ldflags.
var version = "dev"

// New returns the root edge-agent command.
func New() *cli.Command {
	return &cli.Command{
		Name:    "edge-agent",
		Usage:   "Project an IoT Edge module deployment onto a Kubernetes cluster",
		Version: version,
		Commands: []*cli.Command{
			runCmd(),
		},
	}
}

// Main runs the root command and exits non-zero on failure.
func Main() {
	if err := New().Run(context.Background(), os.Args); err != nil {
		slog.Error("edge-agent failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration from the optional
// config file and flags, then installs the slog handler at the resolved
// level.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := cmd.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if v := cmd.String("kubeconfig"); v != "" {
		cfg.Kubeconfig = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := cmd.String("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))

	return cfg, cfg.Validate()
}
