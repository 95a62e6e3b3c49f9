package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/iotedge/kube-agent/pkg/controller"
	"github.com/iotedge/kube-agent/pkg/k8s/client"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the reconciliation controller for one edge device",
		Description: `Starts the EdgeDeployment and Pod watches and keeps the device's module
workloads converged. Identity comes from IOTEDGE_IOTHUBHOSTNAME and
IOTEDGE_DEVICEID (or the config file); cluster credentials are discovered
from the in-cluster service account or the local kubeconfig.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML config file"},
			&cli.StringFlag{Name: "kubeconfig", Usage: "path to kubeconfig (default: auto-detect)"},
			&cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "listen address for /metrics (empty disables)"},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	clientset, dyn, _, err := client.BuildKubeClients(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to build kubernetes clients: %w", err)
	}

	tracker := controller.NewStatusTracker()
	reconciler := controller.NewReconciler(clientset, cfg.Namespace, cfg.HubHostname, cfg.DeviceID, controller.Settings{
		ProxyImage:         cfg.ProxyImage,
		RuntimeLogLevel:    cfg.LogLevel,
		EdgeDeviceHostname: cfg.DeviceHostname,
	})
	supervisor := controller.NewSupervisor(clientset, dyn, cfg.Namespace, reconciler, tracker)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	slog.Info("edge agent running",
		slog.String("hub", cfg.HubHostname),
		slog.String("device", cfg.DeviceID),
		slog.String("namespace", cfg.Namespace))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-supervisor.Fatal():
		// Crash on fatal handler failures; the orchestrator restarts us.
		return fmt.Errorf("fatal controller failure: %w", err)
	case sig := <-signals:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return supervisor.Close(closeCtx)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics listener failed", slog.String("error", err.Error()))
	}
}
