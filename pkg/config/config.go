package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Crawler CrawlerConfig
	Chunker ChunkerConfig
	Store   StoreConfig
	Milvus  MilvusConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Search  SearchConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type CrawlerConfig struct {
	SeedURL         string
	MaxDepth        int
	MaxPages        int
	ContentMaxChars int
	FetchTimeoutSec int
	RequestsPerSec  float64
	PagesPath       string
}

type ChunkerConfig struct {
	MaxTokens int
}

type StoreConfig struct {
	// Backend selects the vector store implementation: "file" or "milvus".
	Backend string
	Path    string
	TopK    int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey          string
	Model           string
	EmbeddingModel  string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSec      int
}

type SearchConfig struct {
	// Azure Cognitive Search, the alternate full-text retrieval backend.
	Enabled    bool
	Endpoint   string
	APIKey     string
	IndexName  string
	MaxResults int
	TimeoutSec int
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
	viper.AddConfigPath("/etc/adgm-assist")

	viper.SetEnvPrefix("ADGM_ASSIST")
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
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("crawler.seedURL", "https://www.adgm.com")
	viper.SetDefault("crawler.maxDepth", 2)
	viper.SetDefault("crawler.maxPages", 2000)
	viper.SetDefault("crawler.contentMaxChars", 3000)
	viper.SetDefault("crawler.fetchTimeoutSec", 10)
	viper.SetDefault("crawler.requestsPerSec", 2.0)
	viper.SetDefault("crawler.pagesPath", "./data/pages.json")

	viper.SetDefault("chunker.maxTokens", 500)

	viper.SetDefault("store.backend", "file")
	viper.SetDefault("store.path", "./data/vectors.json")
	viper.SetDefault("store.topK", 5)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "adgm_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/adgm.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.topP", 1.0)
	viper.SetDefault("llm.maxOutputTokens", 800)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("search.enabled", false)
	viper.SetDefault("search.indexName", "adgm-pages")
	viper.SetDefault("search.maxResults", 5)
	viper.SetDefault("search.timeoutSec", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
