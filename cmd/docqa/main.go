package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docqa/internal/cache"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/llmservice"
	"docqa/internal/rag"
	"docqa/internal/reader"
	"docqa/internal/server"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file")
	question := flag.String("question", "", "Question to answer against the document")
	questionsPath := flag.String("questions", "", "Path to a JSON file with questions")
	topK := flag.Int("top-k", 0, "Number of chunks to retrieve per question (0 = config default)")
	forceReindex := flag.Bool("force-reindex", false, "Rebuild the index even if a cached one exists")
	serveAddr := flag.String("serve", "", "Run the HTTP server on this address instead of the CLI")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := buildPipeline(ctx, cfg)

	switch {
	case *serveAddr != "":
		if err := server.New(pipeline, *serveAddr).Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case *filePath != "":
		identity := indexDocument(ctx, pipeline, *filePath, *forceReindex)
		switch {
		case *question != "":
			answerOne(ctx, pipeline, identity, *question, *topK)
		case *questionsPath != "":
			answerMany(ctx, pipeline, identity, *questionsPath, *topK)
		}
	default:
		log.Fatal().Msg("Provide a document with -file, or run the server with -serve")
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config) *rag.RAG {
	splitter, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunking parameters")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	llm, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM client")
	}

	var indexer rag.Indexer
	switch cfg.RAG.Backend {
	case "postgres":
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB, cfg.Database.VectorSize); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		indexer = cache.NewPostgresIndexer(bunDB, splitter, embedder)
	default:
		store, err := cache.NewFSStore(cfg.RAG.CacheDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating cache store")
		}
		indexer = cache.New(store, splitter, embedder)
	}

	return rag.New(indexer, embedder, llm, cfg.RAG.TopK)
}

func indexDocument(ctx context.Context, pipeline *rag.RAG, path string, force bool) string {
	doc, err := reader.Read(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading document")
	}

	identity := reader.Identity(path)
	summary, err := pipeline.Index(ctx, identity, doc.FullText, doc.Metadata.ToMap(), force)
	if err != nil {
		log.Fatal().Err(err).Msg("Error indexing document")
	}

	log.Info().
		Str("identity", identity).
		Bool("freshly_built", summary.FreshlyBuilt).
		Int("chunks", summary.Stats.NumChunks).
		Msg("Document indexed")
	return identity
}

func answerOne(ctx context.Context, pipeline *rag.RAG, identity, question string, topK int) {
	record, err := pipeline.AnswerOne(ctx, identity, question, topK)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}
	helper.PrettyPrint(record)
}

func answerMany(ctx context.Context, pipeline *rag.RAG, identity, questionsPath string, topK int) {
	questions, err := loadQuestions(questionsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading questions")
	}

	records, stats, err := pipeline.AnswerMany(ctx, identity, questions, topK)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering questions")
	}
	helper.PrettyPrint(map[string]any{
		"answers": records,
		"stats":   stats,
	})
}

// loadQuestions accepts either a bare JSON array of strings or an object
// with a "questions" field.
func loadQuestions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}
	var wrapped struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Questions, nil
}
