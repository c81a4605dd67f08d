package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/handler"
	"github.com/xxxsen/medrag/internal/ingest"
	"github.com/xxxsen/medrag/internal/middleware"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "medrag",
		Short: "medical retrieval-augmented question answering",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env file is fine, the environment may already be set.
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	loadApp := func() (*app, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return newApp(cfg)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest documents into the vector index",
	}
	ingestDirCmd := &cobra.Command{
		Use:   "dir <path>",
		Short: "ingest every .txt and .md paper in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			docs, err := ingest.LoadPapers(ctx, args[0], time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd, a.ingestion.IngestBatch(ctx, docs))
		},
	}
	ingestURLCmd := &cobra.Command{
		Use:   "url <url>...",
		Short: "fetch and ingest web pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			reqs := make([]ingest.URLRequest, 0, len(args))
			for _, u := range args {
				reqs = append(reqs, ingest.URLRequest{URL: u})
			}
			return printJSON(cmd, a.urls.IngestMultipleURLs(ctx, reqs))
		},
	}
	var (
		pubmedTerm    string
		pubmedMax     int
		pubmedBaseURL string
	)
	ingestPubMedCmd := &cobra.Command{
		Use:   "pubmed",
		Short: "search PubMed Central and ingest the matching articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			client := ingest.NewPubMedClient(pubmedBaseURL, &http.Client{Timeout: 30 * time.Second})
			summary, err := ingest.IngestPubMed(ctx, client, a.urls, pubmedTerm, pubmedMax)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	ingestPubMedCmd.Flags().StringVar(&pubmedTerm, "term", ingest.DefaultPubMedTerm, "search term")
	ingestPubMedCmd.Flags().IntVar(&pubmedMax, "max", ingest.DefaultPubMedMax, "maximum number of articles")
	ingestPubMedCmd.Flags().StringVar(&pubmedBaseURL, "base-url", ingest.DefaultPubMedBaseURL, "E-utilities base url")
	ingestCmd.AddCommand(ingestDirCmd, ingestURLCmd, ingestPubMedCmd)

	askCmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "answer a single question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.searchService()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return printJSON(cmd, svc.Search(ctx, strings.Join(args, " "), a.searchOptions()))
		},
	}

	rootCmd.AddCommand(runCmd, ingestCmd, askCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.Bool("ingest_api", cfg.Server.EnableIngestAPI),
	)

	chat := handler.NewChatHandler(nil, a.searchOptions())
	if svc, err := a.searchService(); err != nil {
		logutil.GetLogger(context.Background()).Error("search service unavailable", zap.Error(err))
	} else {
		chat = handler.NewChatHandler(svc, a.searchOptions())
	}
	deps := handler.RouterDeps{
		Chat:          chat,
		ChatRateLimit: time.Duration(cfg.Server.ChatRateLimitMs) * time.Millisecond,
	}
	if cfg.Server.EnableIngestAPI {
		deps.Ingest = handler.NewIngestHandler(a.ingestion, a.urls)
	}
	if a.archive != nil {
		deps.Archive = handler.NewArchiveHandler(a.archive)
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Server.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := a.scheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
