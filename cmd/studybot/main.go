package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"studybot/internal/batch"
	"studybot/internal/chunker"
	"studybot/internal/config"
	"studybot/internal/embedding"
	"studybot/internal/llm"
	"studybot/internal/naming"
	"studybot/internal/pipeline"
	"studybot/internal/schema"
	"studybot/internal/service"
	"studybot/internal/vectorstore/milvus"
	"studybot/pkg/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "path to the YAML configuration")
		mode        = flag.String("mode", "query", "one of: ingest, ingest-summary, ingest-qa, query, batch")
		file        = flag.String("file", "", "input file (document text, summary text, or QA bank JSON)")
		name        = flag.String("name", "", "source document name the namespace derives from")
		topic       = flag.String("topic", "", "topic for summary/QA ingestion and batch runs")
		set         = flag.String("set", "A", "question bank set")
		question    = flag.String("question", "", "query text")
		contextKind = flag.String("context", "qa", "grounding for batch runs: qa or summary")
		resultsDir  = flag.String("results", "results", "directory batch reports are written to")
	)
	flag.Parse()

	// .env is optional; real deployments inject the variables directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	log := logger.New("studybot")
	log.Info("Starting study-bot core")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is not set")
	}

	ctx := context.Background()

	store, err := milvus.Dial(ctx, cfg.Milvus.Address, logger.New("milvus"))
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Milvus")
	}
	defer store.Close()
	if err := store.HealthCheck(ctx); err != nil {
		log.WithError(err).Fatal("Milvus health check failed")
	}

	embedder := embedding.NewOpenAIEmbedder(apiKey, cfg.OpenAI.EmbeddingModel)
	chat := llm.NewOpenAI(apiKey, cfg.OpenAI.ChatModel)
	splitter := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)

	indexing := pipeline.NewIndexingPipeline(splitter, embedder, store, logger.New("indexing"))
	retrieval := pipeline.NewRetrievalPipeline(embedder, store, logger.New("retrieval"))
	if cfg.Retrieval.TopK > 0 {
		retrieval.TopK = cfg.Retrieval.TopK
	}
	if cfg.Retrieval.CharBudget > 0 {
		retrieval.CharBudget = cfg.Retrieval.CharBudget
	}
	synthesis := pipeline.NewSynthesisPipeline(chat, logger.New("synthesis"))

	svc := service.New(indexing, retrieval, synthesis, store, log)

	switch *mode {
	case "ingest":
		text := mustReadFile(log, *file)
		docName := *name
		if docName == "" {
			docName = filepath.Base(*file)
		}
		if err := svc.IngestDocument(ctx, naming.StudyBotIndex(), docName, text); err != nil {
			log.WithError(err).Fatal("Ingestion failed")
		}
		log.Info("Ingestion finished")

	case "ingest-summary":
		text := mustReadFile(log, *file)
		if err := svc.IngestSummary(ctx, *topic, text); err != nil {
			log.WithError(err).Fatal("Summary ingestion failed")
		}
		log.Info("Summary ingestion finished")

	case "ingest-qa":
		bank := mustReadBank(log, *file)
		if err := svc.IngestQuestionBank(ctx, *topic, *set, bank); err != nil {
			log.WithError(err).Fatal("QA bank ingestion failed")
		}
		log.Info("QA bank ingestion finished")

	case "query":
		result := svc.Query(ctx, *name, *question, naming.IndexStudyBot)
		out, _ := json.Marshal(result)
		fmt.Println(string(out))
		if result.Code != 200 {
			os.Exit(1)
		}

	case "batch":
		runBatch(ctx, log, cfg, svc, *topic, *file, *contextKind, *resultsDir)

	default:
		log.Fatal(fmt.Sprintf("Unknown mode %q", *mode))
	}
}

func runBatch(ctx context.Context, log *logger.Logger, cfg *config.AppConfig, svc *service.Service, topic, bankFile, contextKind, resultsDir string) {
	kind := service.ContextQA
	outputFile := "qa_results.json"
	if contextKind == "summary" {
		kind = service.ContextSummary
		outputFile = "summary_results.json"
	}

	bank := mustReadBank(log, bankFile)
	tasks := make([]batch.Task, len(bank))
	for i, qa := range bank {
		tasks[i] = batch.Task{
			Topic:    topic,
			Question: schema.Question{Question: qa.Question, Options: qa.Options},
			Expected: qa.Answer,
		}
	}

	driver := batch.NewDriver(svc, kind, logger.New("batch"))
	if cfg.Batch.MaxParallel > 0 {
		driver.MaxParallel = int64(cfg.Batch.MaxParallel)
	}
	if cfg.Batch.TaskTimeoutSec > 0 {
		driver.TaskTimeout = time.Duration(cfg.Batch.TaskTimeoutSec) * time.Second
	}
	if cfg.Batch.PacingDelayMs > 0 {
		driver.PacingDelay = time.Duration(cfg.Batch.PacingDelayMs) * time.Millisecond
	}

	report := driver.Run(ctx, tasks)
	log.Info(fmt.Sprintf("Batch finished: %d answered (%d correct), %d failed",
		len(report.Results), report.Correct(), len(report.Failed)))

	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create results directory")
	}
	writeJSON(log, filepath.Join(resultsDir, outputFile), report.Results)
	if len(report.Failed) > 0 {
		writeJSON(log, filepath.Join(resultsDir, "failed_ques_file.json"), report.Failed)
	}
}

func mustReadFile(log *logger.Logger, path string) string {
	if path == "" {
		log.Fatal("No input file given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to read input file")
	}
	return string(data)
}

func mustReadBank(log *logger.Logger, path string) []schema.QuestionAnswer {
	data := mustReadFile(log, path)
	var bank []schema.QuestionAnswer
	if err := json.Unmarshal([]byte(data), &bank); err != nil {
		log.WithError(err).Fatal("Failed to parse QA bank JSON")
	}
	return bank
}

func writeJSON(log *logger.Logger, path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.WithError(err).Fatal("Failed to marshal results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.WithError(err).Fatal("Failed to write results file")
	}
	log.Info("Results saved to " + path)
}
