package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"conductor/agent"
	"conductor/api"
	"conductor/common"
	"conductor/engine"
	"conductor/index"
	"conductor/llm"
	"conductor/logger"
	"conductor/srv/sqlite"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Warning: failed to load .env file")
		}
	}

	cmd := &cli.Command{
		Name:  "conductord",
		Usage: "Run the request orchestration server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the orchestration server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(version)
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("conductord failed")
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return err
	}

	lgr := logger.Get()

	db, err := sqlite.OpenDB(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.Migrate(db, "conductor"); err != nil {
		return err
	}
	store := sqlite.NewStorage(db)

	idx, err := index.NewChromemIndex(cfg.Index.Path, embeddingFunc(cfg))
	if err != nil {
		return err
	}

	if cfg.Completion.APIKey == "" {
		lgr.Warn().Msg("no completion API key configured; executor calls will fail until one is set")
	}
	completer := llm.NewOpenAIClient(cfg.Completion)

	registry := agent.NewRegistry()
	registry.Register(agent.NewChatExecutor(completer))
	registry.Register(agent.NewDocQAExecutor(completer, idx, 5))
	registry.Register(agent.NewStructuredQueryExecutor(completer))
	registry.Register(agent.NewCodeExecutor(completer))
	registry.Register(agent.NewResearchExecutor(completer))

	opts, err := engine.OptionsFromConfig(cfg.Engine)
	if err != nil {
		return err
	}
	eng, err := engine.NewEngine(store, registry, engine.NewKeywordClassifier(), engine.ThresholdGate{Threshold: opts.RiskThreshold}, opts)
	if err != nil {
		return err
	}

	ctrl := api.NewController(store, eng, idx)
	server := api.RunServer(cfg.Server.Port, ctrl)
	lgr.Info().Int("port", cfg.Server.Port).Str("db", cfg.Storage.DBPath).Msg("conductord started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	lgr.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// embeddingFunc picks the knowledge-index embedder: the configured
// OpenAI-compatible endpoint when one is set, the OpenAI default otherwise.
func embeddingFunc(cfg common.Config) chromem.EmbeddingFunc {
	if cfg.Completion.BaseURL != "" {
		normalized := true
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.Completion.BaseURL, cfg.Completion.APIKey, cfg.Index.EmbeddingModel, &normalized)
	}
	return chromem.NewEmbeddingFuncOpenAI(cfg.Completion.APIKey, chromem.EmbeddingModelOpenAI(cfg.Index.EmbeddingModel))
}
