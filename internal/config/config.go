package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rehabmohamed2/CodeGuard-project/internal/chunker"
	"github.com/rehabmohamed2/CodeGuard-project/internal/explain"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/statement"
)

type Config struct {
	Port string

	// Auth
	APIKey    string
	JWTSecret string
	JWTExpiry time.Duration

	// Model server
	ModelURL     string
	ModelAPIKey  string
	ModelTimeout time.Duration

	// Assets
	TokenizerFile          string
	StatementTokenizerFile string // Empty or equal to TokenizerFile shares it.
	TokenizersLibPath      string
	LabelsFile             string

	// Model input shape
	SequenceLength     int
	AttentionSlices    int
	MaxStatements      int
	MaxStatementLength int
	MaxBatchSize       int

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentInfer int

	// Upload limits
	MaxUploadBytes int64

	// Chunking
	ChunkTokens int

	// Job state
	JobTTL          time.Duration
	AnalysisTimeout time.Duration
	AnalysisDevice  string

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey:    os.Getenv("CODEGUARD_API_KEY"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", time.Hour),

		ModelURL:     envOr("MODEL_URL", "http://localhost:8500"),
		ModelAPIKey:  os.Getenv("MODEL_API_KEY"),
		ModelTimeout: envDuration("MODEL_TIMEOUT", 120*time.Second),

		TokenizerFile:          envOr("TOKENIZER_FILE", "./inference-common/tokenizer/tokenizer.json"),
		StatementTokenizerFile: envOr("STATEMENT_TOKENIZER_FILE", "./inference-common/statement_t5_tokenizer/tokenizer.json"),
		TokenizersLibPath:      os.Getenv("TOKENIZERS_LIB_PATH"),
		LabelsFile:             os.Getenv("LABELS_FILE"),

		SequenceLength:     envInt("SEQUENCE_LENGTH", 512),
		AttentionSlices:    envInt("ATTENTION_SLICES", 0),
		MaxStatements:      envInt("MAX_STATEMENTS", 155),
		MaxStatementLength: envInt("MAX_STATEMENT_LENGTH", 20),
		MaxBatchSize:       envInt("MAX_BATCH_SIZE", 16),

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentInfer: envInt("MAX_CONCURRENT_INFER", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		ChunkTokens: envInt("CHUNK_TOKENS", 480),

		JobTTL:          envDuration("JOB_TTL", 1*time.Hour),
		AnalysisTimeout: envDuration("ANALYSIS_TIMEOUT", 5*time.Minute),
		AnalysisDevice:  envOr("ANALYSIS_DEVICE", "cpu"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.JWTExpiry <= 0 {
		cfg.JWTExpiry = time.Hour
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 120 * time.Second
	}
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = 512
	}
	if cfg.AttentionSlices < 0 {
		cfg.AttentionSlices = 0
	}
	if cfg.MaxStatements <= 0 {
		cfg.MaxStatements = 155
	}
	if cfg.MaxStatementLength <= 0 {
		cfg.MaxStatementLength = 20
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 16
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentInfer <= 0 {
		cfg.MaxConcurrentInfer = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10485760
	}
	if cfg.ChunkTokens <= 0 {
		cfg.ChunkTokens = 480
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 5 * time.Minute
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" && c.JWTSecret == "" {
		return fmt.Errorf("CODEGUARD_API_KEY or JWT_SECRET is required")
	}
	if c.ModelURL == "" {
		return fmt.Errorf("MODEL_URL is required")
	}
	if c.TokenizerFile == "" {
		return fmt.Errorf("TOKENIZER_FILE is required")
	}
	if c.SequenceLength < 4 {
		return fmt.Errorf("SEQUENCE_LENGTH must be at least 4, got %d", c.SequenceLength)
	}
	if c.AnalysisDevice != "cpu" && c.AnalysisDevice != "gpu" {
		return fmt.Errorf("ANALYSIS_DEVICE must be cpu or gpu, got %q", c.AnalysisDevice)
	}
	return nil
}

// Explain returns the explainability settings for the configured model.
func (c Config) Explain() explain.Config {
	ec := explain.DefaultConfig()
	ec.SequenceLength = c.SequenceLength
	ec.ExpectedSlices = c.AttentionSlices
	return ec
}

// Statements returns the segmenter grid shape.
func (c Config) Statements() statement.Config {
	return statement.Config{
		MaxStatements:      c.MaxStatements,
		MaxStatementLength: c.MaxStatementLength,
	}
}

// Chunker returns the snippet splitting settings. The budget never exceeds
// the model window minus its sentinels.
func (c Config) Chunker() chunker.Config {
	cc := chunker.DefaultConfig()
	cc.MaxTokens = min(c.ChunkTokens, c.SequenceLength-2)
	return cc
}

func (c Config) Inference() inference.Config {
	ic := inference.DefaultConfig()
	ic.SequenceLength = c.SequenceLength
	ic.MaxBatchSize = c.MaxBatchSize
	ic.Explain = c.Explain()
	ic.Statements = c.Statements()
	return ic
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
