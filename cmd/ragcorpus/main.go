// Command ragcorpus ingests PDFs into a local corpus and answers
// questions against them with retrieval-augmented chat.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ragcorpus/corpus"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addCorpus := flag.String("add-corpus", "", "Path to a PDF or directory of PDFs to ingest")
	query := flag.String("query", "", "Question to ask against the corpus")
	corpusDir := flag.String("corpus-dir", "", "Corpus directory (overrides config)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := ragcorpus.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		err = json.NewDecoder(f).Decode(&cfg)
		f.Close()
		if err != nil {
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
	}
	if *corpusDir != "" {
		cfg.CorpusDir = *corpusDir
	}

	engine, err := ragcorpus.InitializeSystem(cfg, "", "")
	if err != nil {
		slog.Error("initializing system", "error", err)
		os.Exit(1)
	}
	defer engine.CleanupSystem()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *addCorpus != "":
		runAddCorpus(ctx, engine, *addCorpus)
	case *query != "":
		runQuery(ctx, engine, *query)
	default:
		fmt.Fprintln(os.Stderr, "usage: ragcorpus -add-corpus <path> | -query <question> [-corpus-dir <dir>]")
		os.Exit(2)
	}
}

func runAddCorpus(ctx context.Context, engine *ragcorpus.Engine, path string) {
	start := time.Now()
	results, err := engine.AddCorpus(ctx, path)
	if err != nil {
		slog.Error("add corpus failed", "path", path, "error", err)
		os.Exit(1)
	}

	failed := 0
	for file, r := range results {
		if r.IsError {
			failed++
			slog.Warn("ingest failed", "file", file, "error", r.ErrorMessage)
		} else {
			slog.Info("ingest ok", "file", file, "message", r.ResultMessage)
		}
	}
	slog.Info("add corpus complete",
		"files", len(results), "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))
}

func runQuery(ctx context.Context, engine *ragcorpus.Engine, question string) {
	result, err := engine.QueryRag(ctx, question)
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(result.Response)
	fmt.Fprintf(os.Stderr, "\n(%d chunks, %d documents referenced)\n",
		len(result.ContextChunks), result.ReferencedDocumentCount)
}
