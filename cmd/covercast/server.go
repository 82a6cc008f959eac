package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/covercast/internal/api"
	"github.com/kalambet/covercast/internal/config"
	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/events"
	"github.com/kalambet/covercast/internal/ingest"
	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/reasoning"
	"github.com/kalambet/covercast/internal/reranking"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/retrieval"
	"github.com/kalambet/covercast/internal/staffing"
	"github.com/kalambet/covercast/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the covercast server",
	RunE: func(cmd *cobra.Command, args []string) error {
		foreground, _ := cmd.Flags().GetBool("foreground")
		if foreground {
			return runServer()
		}
		return startDaemon()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running covercast server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show covercast system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("foreground", false, "run in the foreground instead of daemonizing")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "covercast.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// startDaemon re-execs the binary with --foreground, detached from the
// terminal, then waits for the health endpoint to come up.
func startDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidFilePath(cfg.Storage.DataDir)); pidErr == nil {
			printWarning("covercast is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("covercast is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	logPath := filepath.Join(cfg.Storage.DataDir, "covercast.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	daemon := exec.Command(exe, "start", "--foreground")
	daemon.Stdout = logFile
	daemon.Stderr = logFile
	daemon.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("starting server process: %w", err)
	}

	printStep("Starting covercast (PID %d)...", daemon.Process.Pid)
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		resp, err := healthClient.Get(healthURL)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printSuccess("covercast running on port %d (logs: %s)", cfg.Server.Port, logPath)
			return nil
		}
	}
	return fmt.Errorf("server did not become healthy within 30s; check %s", logPath)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "covercast version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API token exists in the platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if a server is already running via the health
	// endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Select and ready the inference backend. Model pulls only apply to
	// backends that manage models locally.
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		RemoteBaseURL: cfg.Remote.BaseURL,
		RemoteAPIKey:  cfg.Remote.APIKey,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	chatModel, embedModel := cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel
	if _, remote := eng.(*engine.RemoteEngine); remote {
		chatModel, embedModel = cfg.Remote.ChatModel, cfg.Remote.EmbedModel
	}
	if err := engine.EnsureReady(ctx, eng, chatModel, embedModel, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Pattern embeddings live in SQLite by default; Postgres with pgvector
	// serves larger corpora.
	var vectors retrieval.VectorStore
	switch cfg.Storage.VectorBackend {
	case "", "sqlite":
		vectors = retrieval.NewSQLiteStore(store.DB())
	case "postgres":
		pg, err := retrieval.NewPgVectorStore(ctx, cfg.Storage.PostgresURL, cfg.Storage.VectorDim)
		if err != nil {
			return fmt.Errorf("opening pgvector store: %w", err)
		}
		defer pg.Close()
		vectors = pg
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.Storage.VectorBackend)
	}

	// Build the prediction pipeline.
	embedder := retrieval.NewEmbedder(eng, embedModel)
	predictor := predict.NewPredictor(store, vectors, embedder, cfg.Retrieval.TopK)
	rerankTimeout, err := time.ParseDuration(cfg.Retrieval.RerankTimeout)
	if err != nil {
		slog.Warn("invalid rerank timeout, using default 5s", "value", cfg.Retrieval.RerankTimeout, "error", err)
		rerankTimeout = 5 * time.Second
	}
	reranker := reranking.NewReranker(
		eng,
		chatModel,
		cfg.Retrieval.RerankEnabled,
		rerankTimeout,
		cfg.Retrieval.RerankThreshold,
		cfg.Retrieval.TopK,
	)
	generator := reasoning.NewGenerator(eng, chatModel, 0)
	restaurants := restaurant.NewManager(store)
	ratios, err := staffing.LoadRatios(cfg.Staffing.RatiosPath)
	if err != nil {
		return fmt.Errorf("loading staffing ratios: %w", err)
	}
	coordinator := pipeline.NewCoordinator(predictor, reranker, generator, restaurants, store, ratios)

	// Build the HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Store:       store,
		Coordinator: coordinator,
		Predictor:   predictor,
		Vectors:     vectors,
		Restaurants: restaurants,
		Token:       apiToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the embedding and event-extraction worker.
	worker := ingest.NewWorker(store, embedder, vectors, events.NewExtractor(eng, chatModel), 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start the MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:       store,
		Coordinator: coordinator,
		Predictor:   predictor,
		Restaurants: restaurants,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start the server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "covercast listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("covercast is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop covercast (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	// Signal 0 probes whether the process is still alive.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			printSuccess("covercast stopped (PID %d)", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	printWarning("covercast (PID %d) did not exit within 5s", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	if pid, err := readPIDFile(pidFilePath(cfg.Storage.DataDir)); err == nil {
		printStatus("PID", "%d", pid)
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			running = true
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the inference backend.
	printStatus("Engine", "%s", cfg.Engine.Backend)
	if cfg.Remote.APIKey != "" {
		printStatus("Remote", "%s (chat %s, embed %s)", cfg.Remote.BaseURL, cfg.Remote.ChatModel, cfg.Remote.EmbedModel)
	}
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s (chat %s, embed %s)", cfg.Ollama.BaseURL, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel)
	}

	// Show pattern and prediction counts if the server is running.
	if running {
		if c, err := newAPIClient(); err == nil {
			if resp, err := c.get(ctx, "/patterns?limit=200"); err == nil {
				var list struct {
					Patterns []struct {
						Indexed bool `json:"indexed"`
					} `json:"patterns"`
					Count int `json:"count"`
				}
				if decodeJSON(resp, &list) == nil {
					indexed := 0
					for _, p := range list.Patterns {
						if p.Indexed {
							indexed++
						}
					}
					printStatus("Patterns", "%s (%s indexed)", countLabel(list.Count, 200), countLabel(indexed, 200))
				}
			}
			if resp, err := c.get(ctx, "/predictions?limit=100"); err == nil {
				var list struct {
					Count int `json:"count"`
				}
				if decodeJSON(resp, &list) == nil {
					printStatus("Predictions", "%s", countLabel(list.Count, 100))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
