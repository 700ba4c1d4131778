package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/stepflow-dev/stepflow"
	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/internal/metrics"
	httpadapter "github.com/stepflow-dev/stepflow/pkg/adapters/http"
	redisadapter "github.com/stepflow-dev/stepflow/pkg/adapters/redis"
	"github.com/stepflow-dev/stepflow/pkg/adapters/sqlite"
	"github.com/stepflow-dev/stepflow/pkg/flowcfg"
	"github.com/stepflow-dev/stepflow/pkg/persistence/middleware"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the step form runtime over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for progress persistence (empty: in-memory)")
	serveCmd.Flags().String("db", "", "SQLite database path for leads (empty: in-memory)")
	serveCmd.Flags().String("progress-key", "", "Hex-encoded 32-byte key to encrypt stored progress (empty: plaintext)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("flows")
	addr, _ := cmd.Flags().GetString("addr")
	redisAddr, _ := cmd.Flags().GetString("redis")
	dbPath, _ := cmd.Flags().GetString("db")

	logger := logging.NewJSON(parseLevel(cmd))

	flows, err := flowcfg.LoadDir(dir)
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		return fmt.Errorf("no flow configs found in %s", dir)
	}

	reg := prometheus.NewRegistry()
	opts := []stepflow.Option{
		stepflow.WithLogger(logger),
		stepflow.WithMetrics(metrics.New(reg)),
	}

	if redisAddr != "" {
		store := redisadapter.New(redisAddr, "", 0)
		defer store.Close()
		progress := ports.ProgressStore(store)
		if keyHex, _ := cmd.Flags().GetString("progress-key"); keyHex != "" {
			key, err := hex.DecodeString(keyHex)
			if err != nil || len(key) != 32 {
				return fmt.Errorf("progress-key must be 64 hex characters (32 bytes)")
			}
			progress = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})(progress)
		}
		opts = append(opts, stepflow.WithProgressStore(progress))
	}
	if dbPath != "" {
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, stepflow.WithLeadStore(store), stepflow.WithDispatchStore(store))
	}

	engine, err := stepflow.New(flows, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", httpadapter.NewHandler(engine, logger))

	logger.Info("starting stepflow runtime", "addr", addr, "flows", len(flows))
	return http.ListenAndServe(addr, mux)
}

func parseLevel(cmd *cobra.Command) slog.Level {
	level, _ := cmd.Flags().GetString("log-level")
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
