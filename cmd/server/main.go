package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rehabmohamed2/CodeGuard-project/internal/api"
	"github.com/rehabmohamed2/CodeGuard-project/internal/config"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/labels"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
	"github.com/rehabmohamed2/CodeGuard-project/internal/pipeline"
	"github.com/rehabmohamed2/CodeGuard-project/internal/tokenizer"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runToken(os.Args[2:], os.Stdout, os.Stderr))
	}
	serve()
}

func serve() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	vocab, err := tokenizer.Load(cfg.TokenizerFile, cfg.TokenizersLibPath)
	if err != nil {
		log.Error("load tokenizer", "path", cfg.TokenizerFile, "error", err)
		os.Exit(1)
	}
	defer vocab.Close()
	vocab.AddToken(inference.ClsTypeToken)

	stmtVocab := vocab
	if p := cfg.StatementTokenizerFile; p != "" && p != cfg.TokenizerFile {
		if stmtVocab, err = tokenizer.Load(p, cfg.TokenizersLibPath); err != nil {
			log.Error("load statement tokenizer", "path", p, "error", err)
			os.Exit(1)
		}
		defer stmtVocab.Close()
	}

	lm := labels.Default()
	if cfg.LabelsFile != "" {
		if lm, err = labels.Load(cfg.LabelsFile); err != nil {
			log.Error("load labels", "path", cfg.LabelsFile, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	stats := model.NewStats(time.Hour)
	client := model.NewClient(cfg.ModelURL, cfg.ModelAPIKey, cfg.ModelTimeout, stats)

	svc, err := inference.NewService(vocab, stmtVocab, client, lm, cfg.Inference(), log)
	if err != nil {
		log.Error("init inference", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, svc, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(svc, orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ModelTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		client.Close()
	}()

	log.Info("starting codeguard",
		"port", cfg.Port,
		"model_url", cfg.ModelURL,
		"vocab_size", vocab.Size(),
		"statement_vocab_size", stmtVocab.Size(),
		"sequence_length", cfg.SequenceLength,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runToken prints a signed bearer token for the API.
func runToken(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(errOut)
	id := fs.String("id", "", "user id placed in the token")
	role := fs.String("role", api.RoleUser, "role: admin or user")
	ttl := fs.Duration("ttl", 0, "token lifetime (default JWT_EXPIRY)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *id == "" {
		fmt.Fprintln(errOut, "token: -id is required")
		return 2
	}

	cfg := config.Load()
	if *ttl <= 0 {
		*ttl = cfg.JWTExpiry
	}
	tok, err := api.IssueToken(cfg.JWTSecret, *id, *role, *ttl)
	if err != nil {
		fmt.Fprintf(errOut, "token: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, tok)
	return 0
}
