// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/bot"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/filestore"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/processor"
	"github.com/hyperjump/kotae/internal/queue"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A .env file next to the resolved config is loaded into the environment before
// secrets are read. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	resolved := path
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				resolved = fallback
			}
		}
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, "", err
	}
	if err := loadDotEnv(filepath.Dir(resolved)); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// loadDotEnv loads dir/.env when present. Variables already set are kept.
func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "worker":
		runWorker()
	case "process":
		runProcess()
	case "reindex":
		runReindex()
	case "chat":
		runChat()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, utils.WithFile(utils.LogFile{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}))
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	publisher, err := queue.NewPublisher(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to initialize queue", zap.Error(err))
	}
	components.Publisher = publisher

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	if consumer, ok := publisher.(queue.Consumer); ok {
		go func() {
			if err := consumer.Run(queueCtx, jobHandler(components.Processor, logger)); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("queue workers stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("documents are processed by `kotae worker`", zap.String("queue", cfg.Queue.Type))
	}

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		uploads := watcher.NewUploads(components.Files, components.Storage, publisher, logger)
		watchSvc = watcher.NewWatcher(
			cfg.Storage.FilesRoot,
			cfg.Watch.Extensions,
			func(path string) { uploads.FileChanged(watchCtx, path) },
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Bot,
		components.Indexer,
		components.Storage,
		publisher,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	// Drain queued jobs before the workers lose their context.
	components.Close()
	queueCancel()
}

func runWorker() {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	consumer, err := queue.NewConsumer(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to initialize consumer", zap.Error(err))
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		_ = consumer.Close()
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", zap.String("queue", cfg.Queue.Type), zap.String("topic", cfg.Queue.Topic))
	if err := consumer.Run(ctx, jobHandler(components.Processor, logger)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", zap.Error(err))
	}
	_ = consumer.Close()
	logger.Info("worker stopped")
}

// jobHandler processes the document a job names. Jobs for deleted documents are dropped.
func jobHandler(p *processor.Processor, logger *zap.Logger) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		err := p.Process(ctx, job.DocumentID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Info("dropping job for missing document", zap.Int64("document_id", job.DocumentID), zap.String("reason", job.Reason))
			return nil
		}
		return err
	}
}

func runProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: kotae process [flags] <doc-id>")
		os.Exit(1)
	}
	docID, err := parseID(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid document id: %v\n", err)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	processErr := components.Processor.Process(ctx, docID)
	doc, err := components.Storage.GetDocument(ctx, docID)
	if err != nil {
		fmt.Printf("Processing failed: %v\n", processErr)
		components.Close()
		os.Exit(1)
	}
	if err := cli.WriteDocument(os.Stdout, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
	}
	if processErr != nil {
		components.Close()
		os.Exit(1)
	}
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: kotae reindex [flags] <tenant-id>")
		os.Exit(1)
	}
	tenantID, err := parseID(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid tenant id: %v\n", err)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Indexer.ReindexAll(context.Background(), tenantID)
	if err != nil {
		fmt.Printf("Reindex failed: %v\n", err)
		components.Close()
		os.Exit(1)
	}
	if err := cli.WriteReindexReport(os.Stdout, tenantID, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
	}
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer locally)")
	tenant := fs.Int64("tenant", 0, "tenant id (required)")
	sessionID := fs.String("session", "", "session id to continue a conversation")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	message := buildMessage(fs.Args())
	if message == "" || *tenant <= 0 {
		fmt.Println("Usage: kotae chat -tenant N [-session S] [flags] <message...>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	req := models.ChatRequest{Message: message, TenantID: *tenant, SessionID: *sessionID}

	var answer *models.Answer
	if *serverURL != "" {
		answer, err = chatViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		answer = components.Bot.Chat(context.Background(), req)
	}

	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// chatViaHTTP posts req to a running server's chat endpoint.
func chatViaHTTP(serverURL string, req models.ChatRequest) (*models.Answer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/api/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

// buildMessage joins positional args so a question works with or without shell quoting.
func buildMessage(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after positional arguments to the front so that
// flag.Parse sees them; Go's flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return id, nil
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Vectors   vector.Store
	Sessions  session.Store
	Files     *filestore.Store
	Indexer   *indexer.Indexer
	Processor *processor.Processor
	Bot       *bot.Bot
	Publisher queue.Publisher
}

// Close releases every service. The publisher goes first so queued jobs can still
// reach storage while they drain.
func (c *Components) Close() {
	if c.Publisher != nil {
		_ = c.Publisher.Close()
		c.Publisher = nil
	}
	if c.Sessions != nil {
		_ = c.Sessions.Close()
		c.Sessions = nil
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
		c.Vectors = nil
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
		c.Embedder = nil
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
		c.Storage = nil
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = db

	c.Embedder, err = embedding.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Vectors, err = vector.NewStore(ctx, cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Info("vector store initialized",
		zap.String("type", cfg.VectorStore.Type),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	c.Indexer = indexer.NewIndexer(c.Embedder, c.Vectors,
		indexer.WithCollection(cfg.VectorStore.Collection),
		indexer.WithChunker(indexer.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)),
		indexer.WithRepositories(c.Storage, c.Storage, c.Storage),
		indexer.WithLogger(logger),
	)
	if err = c.Indexer.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	c.Files = filestore.New(cfg.Storage.FilesRoot)
	c.Processor = processor.NewProcessor(c.Storage, c.Files,
		extract.NewExtractor(extract.WithLogger(logger)),
		c.Indexer,
		processor.WithLogger(logger),
	)

	c.Sessions, err = session.NewStore(ctx, cfg.Session, cfg.Bot.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	chain := llm.NewFailoverFromConfig(ctx, cfg.LLM, logger)
	if len(chain.Providers()) == 0 {
		logger.Warn("no llm providers configured; every answer will use the fallback reply")
	}
	c.Bot = bot.NewBot(c.Embedder, c.Vectors, chain,
		bot.WithCollection(cfg.VectorStore.Collection),
		bot.WithConfig(cfg.Bot),
		bot.WithSessions(c.Sessions),
		bot.WithTenants(c.Storage),
		bot.WithLLMOptions(llm.Options{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens}),
		bot.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Multi-tenant knowledge base answering service

Usage:
  kotae server [flags]                          Start the HTTP server (and local queue workers)
  kotae worker [flags]                          Consume document jobs from Kafka
  kotae process [flags] <doc-id>                Extract, chunk and index one document
  kotae reindex [flags] <tenant-id>             Rebuild a tenant's knowledge in the vector store
  kotae chat -tenant N [flags] <message...>     Ask the bot a question
  kotae version                                 Show version
  kotae help                                    Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)

Server/Worker Flags:
  --debug            Enable debug logging

Process/Reindex Flags:
  --output string    Output format: text or json (default: text)

Chat Flags:
  --tenant int       Tenant id (required)
  --session string   Session id returned by a previous answer
  --server string    Server URL; empty answers locally from the configured stores
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae process 42
  kotae reindex 7 --output json
  kotae chat -tenant 7 do you ship to Canada?
  kotae chat -tenant 7 -session 3f2a... -server http://localhost:8080 and to Mexico?`)
}
