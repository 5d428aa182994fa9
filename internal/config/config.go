package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig configures one OpenAI-compatible or Ollama endpoint.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai" or "ollama"
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// RAGConfig controls chunking, retrieval and index caching.
type RAGConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	CacheDir     string `yaml:"cache_dir"`
	// Backend selects where chunk vectors live: "memory" keeps a chromem
	// index per document with an on-disk cache, "postgres" stores rows in
	// pgvector and searches in SQL.
	Backend string `yaml:"backend"`
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	Debug      bool   `yaml:"debug"`
	VectorSize int    `yaml:"vector_size"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RAG      RAGConfig      `yaml:"rag"`
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	Database DatabaseConfig `yaml:"database"`
}

// LoadConfig reads the YAML config at path, falling back to defaults when the
// file does not exist. Secrets come from the environment (a .env file is
// loaded first when present) and override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		RAG: RAGConfig{
			ChunkSize:    1200,
			ChunkOverlap: 200,
			TopK:         5,
			CacheDir:     "output/cache",
			Backend:      "memory",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://openrouter.ai/api",
			Model:       "perplexity/sonar",
			Temperature: 0.2,
			MaxTokens:   4000,
			TimeoutSecs: 60,
		},
		EmbedLLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "nomic-embed-text",
			TimeoutSecs: 30,
		},
		Database: DatabaseConfig{VectorSize: 768},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = def.RAG.ChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / 6
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.CacheDir == "" {
		cfg.RAG.CacheDir = def.RAG.CacheDir
	}
	if cfg.RAG.Backend == "" {
		cfg.RAG.Backend = def.RAG.Backend
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.TimeoutSecs <= 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = def.EmbedLLM.Provider
	}
	if cfg.EmbedLLM.TimeoutSecs <= 0 {
		cfg.EmbedLLM.TimeoutSecs = def.EmbedLLM.TimeoutSecs
	}
	if cfg.Database.VectorSize <= 0 {
		cfg.Database.VectorSize = def.Database.VectorSize
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DOCQA_LLM_KEY"); v != "" {
		cfg.LLM.Key = v
	}
	if v := os.Getenv("DOCQA_EMBED_KEY"); v != "" {
		cfg.EmbedLLM.Key = v
	}
	if v := os.Getenv("DOCQA_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DOCQA_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
}
