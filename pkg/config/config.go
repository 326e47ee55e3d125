package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Milvus   MilvusConfig
	Redis    RedisConfig
	Cache    CacheConfig
	LLM      LLMConfig
	Rerank   RerankConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int

	// Chat turns run embeddings, retrieval and a completion, so they draw
	// more of a caller's budget than reads do.
	RatePerMinute int
	ChatTurnCost  int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig selects the summary cache backend. "redis" uses the shared
// store; "local" keeps summaries in process memory and loses them on restart,
// which the cache contract tolerates.
type CacheConfig struct {
	Backend   string
	LocalSize int
	TTLSec    int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	EmbeddingDim   int
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type RerankConfig struct {
	Enabled    bool
	Endpoint   string
	TimeoutSec int
	BatchSize  int
	MaxTokens  int
}

// PipelineConfig carries every tunable of the context assembly pipeline.
// The chars-per-token heuristic and the RRF constant are configuration on
// purpose; their defaults are not load-bearing.
type PipelineConfig struct {
	RRFK                int
	RetrievalCandidates int
	FusedTopK           int
	RerankTopK          int

	CharsPerToken int

	CompressionRatio     float64
	MaxInputTokens       int
	HistoryLimit         int
	MinMessages          int
	TriggerRatio         float64
	VerbatimMessageCount int

	MaxInputChars      int
	AnswerReserveChars int
	ChunkFloor         int
	MessageFloor       int
	SummaryCharCeiling int

	EarlyPageCount   int
	ShortChunkChars  int
	LongChunkChars   int
	MatchThreshold   float64
	EntityThreshold  float64
	UnderstandingSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dealsense")

	viper.SetEnvPrefix("DEALSENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 20971520)
	viper.SetDefault("server.ratePerMinute", 120)
	viper.SetDefault("server.chatTurnCost", 5)

	viper.SetDefault("sqlite.path", "./data/dealsense.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "deal_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.backend", "redis")
	viper.SetDefault("cache.localSize", 1024)
	viper.SetDefault("cache.ttlSec", 86400)

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("rerank.enabled", true)
	viper.SetDefault("rerank.endpoint", "http://localhost:8501/rerank")
	viper.SetDefault("rerank.timeoutSec", 10)
	viper.SetDefault("rerank.batchSize", 32)
	viper.SetDefault("rerank.maxTokens", 512)

	viper.SetDefault("pipeline.rrfK", 60)
	viper.SetDefault("pipeline.retrievalCandidates", 50)
	viper.SetDefault("pipeline.fusedTopK", 24)
	viper.SetDefault("pipeline.rerankTopK", 10)
	viper.SetDefault("pipeline.charsPerToken", 4)
	viper.SetDefault("pipeline.compressionRatio", 0.6)
	viper.SetDefault("pipeline.maxInputTokens", 8192)
	viper.SetDefault("pipeline.historyLimit", 30)
	viper.SetDefault("pipeline.minMessages", 6)
	viper.SetDefault("pipeline.triggerRatio", 0.5)
	viper.SetDefault("pipeline.verbatimMessageCount", 4)
	viper.SetDefault("pipeline.maxInputChars", 48000)
	viper.SetDefault("pipeline.answerReserveChars", 8000)
	viper.SetDefault("pipeline.chunkFloor", 2)
	viper.SetDefault("pipeline.messageFloor", 2)
	viper.SetDefault("pipeline.summaryCharCeiling", 3000)
	viper.SetDefault("pipeline.earlyPageCount", 2)
	viper.SetDefault("pipeline.shortChunkChars", 100)
	viper.SetDefault("pipeline.longChunkChars", 1000)
	viper.SetDefault("pipeline.matchThreshold", 0.6)
	viper.SetDefault("pipeline.entityThreshold", 0.5)
	viper.SetDefault("pipeline.understandingSec", 8)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
